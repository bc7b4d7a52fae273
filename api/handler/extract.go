package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/pipeline"
)

// Extractor runs one extraction. *scraper.Scraper implements it.
type Extractor interface {
	Extract(ctx context.Context, req *models.ExtractRequest) (*models.ExtractResult, error)
	Stats() models.StatsResponse
}

// Extract returns a handler for POST /extract.
//
// A body that is not JSON or has no "url" is rejected with 400 before any
// browser work. Success is the flat field object; any fatal error is
// {"error": message} only, with 504 for timeouts and 500 otherwise.
func Extract(ex Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.MsgMissingURL})
			return
		}
		if err := req.Validate(); err != nil {
			respondError(c, err)
			return
		}
		req.Defaults()

		res, err := ex.Extract(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, pipeline.Assemble(res, req.Debug))
	}
}

func respondError(c *gin.Context, err error) {
	var xe *models.ExtractError
	if !errors.As(err, &xe) {
		xe = models.NewExtractError(models.ErrCodeInternal, err.Error(), nil)
	}
	c.JSON(mapErrorToStatus(xe), pipeline.AssembleError(xe))
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ExtractError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
