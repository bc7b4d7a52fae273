package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/listingd/api/handler"
	"github.com/use-agent/listingd/api/middleware"
	"github.com/use-agent/listingd/config"
	"github.com/use-agent/listingd/models"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:   Recovery → Logger
//	/extract: Auth (if enabled) → RateLimit (if enabled)
//
// /health and /stats stay outside auth so probes always work.
// ctx bounds the background goroutines of the middleware.
func NewRouter(ctx context.Context, ex handler.Extractor, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("panic while serving request", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
	}))
	r.Use(gin.Logger())

	r.GET("/health", handler.Health())
	r.GET("/stats", handler.Stats(ex))

	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	if cfg.RateLimit.Enabled {
		protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))
	}
	protected.POST("/extract", handler.Extract(ex))

	return r
}
