// Package app provides the main application logic and lifecycle management.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gemini-shim/internal/services"
	"gemini-shim/internal/store"
	"gemini-shim/internal/types"
	"gemini-shim/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"gorm.io/gorm"
)

// App holds all services and manages the application lifecycle.
type App struct {
	engine            *gin.Engine
	configManager     types.ConfigManager
	requestLogService *services.RequestLogService
	storage           store.Store
	db                *gorm.DB
	httpServer        *http.Server
}

// AppParams defines the dependencies for the App.
type AppParams struct {
	dig.In
	Engine            *gin.Engine
	ConfigManager     types.ConfigManager
	RequestLogService *services.RequestLogService
	Storage           store.Store
	DB                *gorm.DB
}

// NewApp is the constructor for App, with dependencies injected by dig.
func NewApp(params AppParams) *App {
	return &App{
		engine:            params.Engine,
		configManager:     params.ConfigManager,
		requestLogService: params.RequestLogService,
		storage:           params.Storage,
		db:                params.DB,
	}
}

// Start launches the background services and the HTTP server.
func (a *App) Start() error {
	a.requestLogService.Start()

	serverConfig := a.configManager.GetEffectiveServerConfig()
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
		Handler:      a.engine,
		ReadTimeout:  time.Duration(serverConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(serverConfig.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(serverConfig.IdleTimeout) * time.Second,
	}

	a.configManager.DisplayServerConfig()

	go func() {
		logrus.Infof("gemini-shim %s listening on %s", version.Version, a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server and background services down within ctx's deadline.
func (a *App) Stop(ctx context.Context) {
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logrus.Errorf("Server forced to shutdown: %v", err)
		}
	}

	a.requestLogService.Stop(ctx)

	if err := a.storage.Close(); err != nil {
		logrus.Errorf("Failed to close store: %v", err)
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logrus.Errorf("Failed to close database: %v", err)
			}
		}
	}

	logrus.Info("Shutdown complete")
}
