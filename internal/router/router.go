// Package router wires the HTTP surface: the health probe, the management
// API under /api, and the relay under /v1.
package router

import (
	"time"

	"gemini-shim/internal/handler"
	"gemini-shim/internal/middleware"
	"gemini-shim/internal/proxy"
	"gemini-shim/internal/types"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func NewRouter(
	serverHandler *handler.Server,
	proxyServer *proxy.ProxyServer,
	configManager types.ConfigManager,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(configManager.GetCORSConfig()))
	startTime := time.Now()
	router.Use(func(c *gin.Context) {
		c.Set("serverStartTime", startTime)
		c.Next()
	})

	registerSystemRoutes(router, serverHandler)
	registerAPIRoutes(router, serverHandler, configManager)
	registerRelayRoutes(router, proxyServer)

	return router
}

func registerSystemRoutes(router *gin.Engine, serverHandler *handler.Server) {
	router.GET("/health", serverHandler.Health)
}

// registerAPIRoutes registers the management API. Relay traffic must not
// pass through gzip here, so compression is scoped to this group.
func registerAPIRoutes(router *gin.Engine, serverHandler *handler.Server, configManager types.ConfigManager) {
	api := router.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	api.Use(middleware.Auth(configManager.GetAuthConfig()))

	api.GET("/logs", serverHandler.ListLogs)
	api.GET("/settings", serverHandler.GetSettings)
}

// registerRelayRoutes forwards everything under /v1 to the upstream.
func registerRelayRoutes(router *gin.Engine, proxyServer *proxy.ProxyServer) {
	router.Any("/v1/*path", proxyServer.HandleProxy)
}
