package models

import "time"

// Reserved keys of an extraction result. Field tables may not use them as field names.
const (
	KeyRedirectedURL = "redirected_url"
	KeyURL           = "url"
	KeyError         = "error"
	KeyOutcomes      = "field_outcomes"
)

// Outcome statuses for a single field.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// Outcome records how a field was (or was not) resolved.
type Outcome struct {
	Status   string `json:"status"`
	Selector string `json:"selector,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Row is one title/value pair of a repeated characteristics list.
type Row struct {
	Title string
	Value string
}

// ExtractResult holds every configured field value (nil when unresolved)
// together with the URL the browser ended up on.
type ExtractResult struct {
	Values        map[string]*string
	Outcomes      map[string]Outcome
	RedirectedURL string
	SubmittedURL  string
	TableVersion  string
	PageHTML      string
}

// NullCount returns how many fields resolved to nil.
func (r *ExtractResult) NullCount() int {
	n := 0
	for _, v := range r.Values {
		if v == nil {
			n++
		}
	}
	return n
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response for GET /stats.
type StatsResponse struct {
	Uptime       string    `json:"uptime"`
	PoolStats    PoolStats `json:"pool_stats"`
	FieldVersion string    `json:"field_version"`
	FieldCount   int       `json:"field_count"`
	StartedAt    time.Time `json:"started_at"`
}

// PoolStats reports the state of the browser session pool.
type PoolStats struct {
	MaxSessions    int `json:"max_sessions"`
	ActiveSessions int `json:"active_sessions"`
	IdleBrowsers   int `json:"idle_browsers"`
	LiveBrowsers   int `json:"live_browsers"`
}
