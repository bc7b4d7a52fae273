package pipeline

import (
	"errors"

	"github.com/use-agent/listingd/models"
)

// Assemble flattens res into the response object: every field keyed by name
// (nil kept as JSON null), plus redirected_url and the submitted url.
// Per-field outcomes are added under field_outcomes when debug is set.
func Assemble(res *models.ExtractResult, debug bool) map[string]any {
	out := make(map[string]any, len(res.Values)+3)
	for name, v := range res.Values {
		if v == nil {
			out[name] = nil
			continue
		}
		out[name] = *v
	}
	out[models.KeyRedirectedURL] = res.RedirectedURL
	out[models.KeyURL] = res.SubmittedURL
	if debug && len(res.Outcomes) > 0 {
		out[models.KeyOutcomes] = res.Outcomes
	}
	return out
}

// AssembleError renders a fatal error. No partial field data is included.
func AssembleError(err error) models.ErrorResponse {
	var xe *models.ExtractError
	if errors.As(err, &xe) {
		if xe.Err != nil {
			return models.ErrorResponse{Error: xe.Message + ": " + xe.Err.Error()}
		}
		return models.ErrorResponse{Error: xe.Message}
	}
	if err == nil {
		return models.ErrorResponse{Error: "unknown error"}
	}
	return models.ErrorResponse{Error: err.Error()}
}
