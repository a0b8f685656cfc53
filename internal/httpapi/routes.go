package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/dpays/jefferson/internal/config"
	"github.com/dpays/jefferson/internal/httpapi/handlers"
	"github.com/dpays/jefferson/internal/httpapi/middleware"
)

// registerProxyRoutes wires the unauthenticated JSON-RPC entry point
// and liveness checks onto the public listener.
func registerProxyRoutes(engine *gin.Engine, h *handlers.Handler) {
	engine.POST("/", h.RPC)
	engine.GET("/health", h.Health)
	engine.GET("/.well-known/healthcheck.json", h.WellKnownHealthcheck)
}

// registerAdminRoutes wires the read-only admin surface onto the
// management listener, gated by an API key when one is configured.
func registerAdminRoutes(engine *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	group := engine.Group("/api/v1")
	if cfg.API.APIKey != "" {
		group.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}
	group.GET("/stats", h.Stats)
	group.GET("/config", h.GetConfig)
}
