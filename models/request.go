package models

import (
	"net/url"
	"strings"
)

// Fetch modes accepted in ExtractRequest.FetchMode.
const (
	FetchModeBrowser = "browser"
	FetchModeHTTP    = "http"
)

// ExtractRequest is the payload for POST /extract.
type ExtractRequest struct {
	// URL is the listing page to extract. Required.
	URL string `json:"url"`

	// FetchMode selects how the page is loaded.
	// "browser" (default): headless Chrome with client-side rendering.
	// "http": plain HTTP fetch, parsed statically (no JavaScript, no consent clicks).
	FetchMode string `json:"fetch_mode,omitempty"`

	// MaxAge enables the result cache: a cached result younger than MaxAge
	// milliseconds is returned without opening a browser. 0 disables lookup.
	MaxAge int `json:"max_age,omitempty"`

	// Debug adds the per-field outcome map to the response.
	Debug bool `json:"debug,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ExtractRequest) Defaults() {
	if r.FetchMode == "" {
		r.FetchMode = FetchModeBrowser
	}
}

// Validate checks the request before any browser work starts.
func (r *ExtractRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return NewExtractError(ErrCodeInvalidInput, MsgMissingURL, nil)
	}
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewExtractError(ErrCodeInvalidInput, MsgInvalidURL, nil)
	}
	r.URL = u.String()
	switch r.FetchMode {
	case "", FetchModeBrowser, FetchModeHTTP:
	default:
		return NewExtractError(ErrCodeInvalidInput, `Invalid "fetch_mode" field`, nil)
	}
	if r.MaxAge < 0 {
		return NewExtractError(ErrCodeInvalidInput, `Invalid "max_age" field`, nil)
	}
	return nil
}
