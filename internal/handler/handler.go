// Package handler implements the management API endpoints.
package handler

import (
	"context"
	"strconv"
	"time"

	app_errors "gemini-shim/internal/errors"
	"gemini-shim/internal/response"
	"gemini-shim/internal/services"
	"gemini-shim/internal/store"
	"gemini-shim/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Server bundles the dependencies of the management endpoints.
type Server struct {
	DB                *gorm.DB
	Store             store.Store
	RequestLogService *services.RequestLogService
	ConfigManager     types.ConfigManager
}

// NewServer creates a management API server.
func NewServer(db *gorm.DB, s store.Store, logService *services.RequestLogService, configManager types.ConfigManager) *Server {
	return &Server{
		DB:                db,
		Store:             s,
		RequestLogService: logService,
		ConfigManager:     configManager,
	}
}

// Health reports liveness plus the state of the attached database.
func (s *Server) Health(c *gin.Context) {
	healthStatus := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	uptime := "unknown"
	if startTime, exists := c.Get("serverStartTime"); exists {
		if st, ok := startTime.(time.Time); ok {
			uptime = time.Since(st).Round(time.Second).String()
		}
	}
	healthStatus["uptime"] = uptime

	statusCode := 200
	if s.DB != nil {
		healthStatus["database"] = "ok"
		if sqlDB, err := s.DB.DB(); err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := sqlDB.PingContext(ctx); err != nil {
				logrus.WithError(err).Warn("Health check database ping failed")
				healthStatus["status"] = "degraded"
				healthStatus["database"] = "unreachable"
				statusCode = 503
			}
		}
	}

	c.JSON(statusCode, healthStatus)
}

// ListLogs returns one page of the request audit log.
func (s *Server) ListLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	statusCode, _ := strconv.Atoi(c.Query("status_code"))

	logs, total, err := s.RequestLogService.List(services.LogQuery{
		ConversationID: c.Query("conversation_id"),
		Model:          c.Query("model"),
		StatusCode:     statusCode,
		Page:           page,
		PageSize:       pageSize,
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to query request logs")
		response.Error(c, app_errors.ErrDatabase)
		return
	}

	response.Success(c, gin.H{
		"items": logs,
		"total": total,
		"page":  page,
	})
}

// GetSettings exposes the resolved shim settings for diagnostics. The
// upstream credential never appears here.
func (s *Server) GetSettings(c *gin.Context) {
	shimSettings := s.ConfigManager.GetShimSettings()
	upstream := s.ConfigManager.GetUpstreamConfig()

	response.Success(c, gin.H{
		"shim": shimSettings,
		"upstream": gin.H{
			"base_url":        upstream.BaseURL,
			"request_timeout": upstream.RequestTimeout,
		},
	})
}
