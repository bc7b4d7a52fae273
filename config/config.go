package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultUserAgent is a current desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Pipeline  PipelineConfig
	Extract   ExtractConfig
	Resolver  ResolverConfig
	Fields    FieldsConfig
	Drift     DriftConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls Chromium processes and session setup.
type BrowserConfig struct {
	Headless  bool   // default: true
	NoSandbox bool   // default: true
	Bin       string // overrides the Chromium binary path
	Proxy     string

	UserAgent      string
	AcceptLanguage string // default: "fr-FR,fr;q=0.9,en;q=0.8"
	ViewportWidth  int    // default: 1920
	ViewportHeight int    // default: 1080

	// BlockedResourceTypes lists resource types aborted at the network layer.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
	BlockTrackers        bool // default: true
	Stealth              bool // default: true

	// PoolSize is the number of warm browsers; 0 launches one per request.
	PoolSize int // default: 2
	// MaxSessions bounds concurrent sessions when PoolSize is 0.
	MaxSessions int // default: 4
}

// PipelineConfig tunes the extraction stages.
type PipelineConfig struct {
	NavigationTimeout time.Duration // default: 30s
	WaitUntil         string        // "load" or "domcontentloaded"; default: "load"
	ContainerSelector string        // default: "main"
	ContainerTimeout  time.Duration // default: 15s
	GracePeriod       time.Duration // default: 3s
	ConsentTimeout    time.Duration // default: 2s
	SelectorTimeout   time.Duration // default: 2s
}

// ExtractConfig controls request-level behaviour.
type ExtractConfig struct {
	// RequestTimeout is the overall deadline of one extraction.
	RequestTimeout time.Duration // default: 40s

	// ResolveRedirects runs the HTTP redirect pre-pass before navigation.
	ResolveRedirects bool // default: true
}

// ResolverConfig controls the HTTP redirect resolver and the http fetch mode.
type ResolverConfig struct {
	Timeout time.Duration // default: 10s
}

// FieldsConfig locates the field table.
type FieldsConfig struct {
	// File is a JSON field table; empty uses the embedded default.
	File string
	// Watch reloads File whenever it changes on disk.
	Watch bool // default: true
}

// DriftConfig controls the schema drift detector.
type DriftConfig struct {
	Enabled       bool    // default: true
	NullRatio     float64 // default: 0.5
	MaxDistance   int     // default: 12
	WebhookURL    string
	WebhookSecret string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	APIKeys []string
}

// RateLimitConfig controls per-identity rate limiting.
type RateLimitConfig struct {
	Enabled bool // default: false

	// RequestsPerSecond is the sustained rate per identity.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per identity.
	Burst int // default: 5
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	MaxEntries int           // default: 1000
	TTL        time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("LISTING_HOST", "0.0.0.0"),
			Port: envIntOr("LISTING_PORT", 8080),
			Mode: envOr("LISTING_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("LISTING_HEADLESS", true),
			NoSandbox:      envBoolOr("LISTING_NO_SANDBOX", true),
			Bin:            os.Getenv("LISTING_BROWSER_BIN"),
			Proxy:          os.Getenv("LISTING_PROXY"),
			UserAgent:      envOr("LISTING_USER_AGENT", DefaultUserAgent),
			AcceptLanguage: envOr("LISTING_ACCEPT_LANGUAGE", "fr-FR,fr;q=0.9,en;q=0.8"),
			ViewportWidth:  envIntOr("LISTING_VIEWPORT_WIDTH", 1920),
			ViewportHeight: envIntOr("LISTING_VIEWPORT_HEIGHT", 1080),
			BlockedResourceTypes: envSliceOr("LISTING_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			BlockTrackers: envBoolOr("LISTING_BLOCK_TRACKERS", true),
			Stealth:       envBoolOr("LISTING_STEALTH", true),
			PoolSize:      envIntOr("LISTING_POOL_SIZE", 2),
			MaxSessions:   envIntOr("LISTING_MAX_SESSIONS", 4),
		},
		Pipeline: PipelineConfig{
			NavigationTimeout: envDurationOr("LISTING_NAV_TIMEOUT", 30*time.Second),
			WaitUntil:         envOr("LISTING_WAIT_UNTIL", "load"),
			ContainerSelector: envOr("LISTING_CONTAINER_SELECTOR", "main"),
			ContainerTimeout:  envDurationOr("LISTING_CONTAINER_TIMEOUT", 15*time.Second),
			GracePeriod:       envDurationOr("LISTING_GRACE_PERIOD", 3*time.Second),
			ConsentTimeout:    envDurationOr("LISTING_CONSENT_TIMEOUT", 2*time.Second),
			SelectorTimeout:   envDurationOr("LISTING_SELECTOR_TIMEOUT", 2*time.Second),
		},
		Extract: ExtractConfig{
			RequestTimeout:   envDurationOr("LISTING_REQUEST_TIMEOUT", 40*time.Second),
			ResolveRedirects: envBoolOr("LISTING_RESOLVE_REDIRECTS", true),
		},
		Resolver: ResolverConfig{
			Timeout: envDurationOr("LISTING_RESOLVE_TIMEOUT", 10*time.Second),
		},
		Fields: FieldsConfig{
			File:  os.Getenv("LISTING_FIELDS_FILE"),
			Watch: envBoolOr("LISTING_FIELDS_WATCH", true),
		},
		Drift: DriftConfig{
			Enabled:       envBoolOr("LISTING_DRIFT_ENABLED", true),
			NullRatio:     envFloatOr("LISTING_DRIFT_NULL_RATIO", 0.5),
			MaxDistance:   envIntOr("LISTING_DRIFT_MAX_DISTANCE", 12),
			WebhookURL:    os.Getenv("LISTING_DRIFT_WEBHOOK_URL"),
			WebhookSecret: os.Getenv("LISTING_DRIFT_WEBHOOK_SECRET"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("LISTING_AUTH_ENABLED", false),
			APIKeys: envSliceOr("LISTING_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			Enabled:           envBoolOr("LISTING_RATE_ENABLED", false),
			RequestsPerSecond: envFloatOr("LISTING_RATE_RPS", 1.0),
			Burst:             envIntOr("LISTING_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("LISTING_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("LISTING_CACHE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("LISTING_LOG_LEVEL", "info"),
			Format: envOr("LISTING_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
