package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/listingd/models"
)

// Health returns a handler for GET /health. It is a liveness probe only.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
	}
}

// Stats returns a handler for GET /stats: pool utilisation and the active field table.
func Stats(ex Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ex.Stats())
	}
}
