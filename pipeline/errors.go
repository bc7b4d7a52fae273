package pipeline

import (
	"context"
	"errors"

	"github.com/use-agent/listingd/models"
)

// CategorizeError maps an underlying error to an ExtractError with a code.
// Context errors become TIMEOUT; existing ExtractErrors pass through unchanged.
func CategorizeError(err error, msg string) *models.ExtractError {
	var xe *models.ExtractError
	if errors.As(err, &xe) {
		return xe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewExtractError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewExtractError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewExtractError(models.ErrCodeNavigation, msg, err)
	}
}
