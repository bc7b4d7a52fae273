// Package scraper ties the extraction stages together for one request:
// cache lookup, redirect resolution, session checkout, pipeline run, drift
// check and session release.
package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/listingd/cache"
	"github.com/use-agent/listingd/drift"
	"github.com/use-agent/listingd/fields"
	"github.com/use-agent/listingd/htmldoc"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/page"
	"github.com/use-agent/listingd/pipeline"
	"github.com/use-agent/listingd/resolver"
)

// DefaultRequestTimeout bounds one extraction end to end.
const DefaultRequestTimeout = 40 * time.Second

// Browser hands out live pages. *browser.Pool implements it.
type Browser interface {
	Open(ctx context.Context) (page.Page, func(ok bool), error)
	Stats() models.PoolStats
}

// Config holds the Scraper dependencies. Browser, Resolver and Fields are
// required; Cache and Drift are optional.
type Config struct {
	Browser  Browser
	Resolver *resolver.Resolver
	Fields   *fields.Store
	Cache    *cache.Cache
	Drift    *drift.Detector

	Pipeline pipeline.Options

	// RequestTimeout is the overall deadline of one extraction.
	RequestTimeout time.Duration
	// ResolveRedirects follows HTTP redirects before navigating.
	ResolveRedirects bool
}

// Scraper runs extractions. It is safe for concurrent use.
type Scraper struct {
	cfg     Config
	live    *pipeline.Pipeline
	static  *pipeline.Pipeline
	started time.Time
}

// New creates a Scraper.
func New(cfg Config) *Scraper {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	staticOpts := cfg.Pipeline
	staticOpts.ContainerTimeout = 0
	staticOpts.GracePeriod = 0
	staticOpts.ConsentTimeout = 0
	staticOpts.ConsentSettle = 0
	staticOpts.ExpandSettle = 0

	return &Scraper{
		cfg:     cfg,
		live:    pipeline.New(cfg.Pipeline),
		static:  pipeline.New(staticOpts),
		started: time.Now(),
	}
}

// Extract runs the full extraction for req. The returned error is always a
// *models.ExtractError; on error no field data is returned.
func (s *Scraper) Extract(ctx context.Context, req *models.ExtractRequest) (*models.ExtractResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	table := s.cfg.Fields.Current()

	key := cache.Key(req.URL, req.FetchMode, table.Version)
	if s.cfg.Cache != nil {
		if res, ok := s.cfg.Cache.Get(key, req.MaxAge); ok {
			slog.Info("extract: cache hit", "url", req.URL, "table_version", table.Version)
			return res, nil
		}
	}

	target := req.URL
	if s.cfg.ResolveRedirects {
		target = s.cfg.Resolver.Resolve(ctx, req.URL)
		if target != req.URL {
			slog.Debug("extract: redirect resolved", "url", req.URL, "target", target)
		}
	}

	var (
		res *models.ExtractResult
		err error
	)
	switch req.FetchMode {
	case models.FetchModeHTTP:
		res, err = s.static.Run(ctx, htmldoc.New(s.cfg.Resolver.Fetch), table, target)
	default:
		res, err = s.extractLive(ctx, table, target)
	}
	if err != nil {
		xe := pipeline.CategorizeError(err, "extraction failed")
		slog.Error("extract: failed",
			"url", req.URL,
			"code", xe.Code,
			"error", xe,
			"duration", time.Since(start).String(),
		)
		return nil, xe
	}
	res.SubmittedURL = req.URL

	if s.cfg.Drift != nil {
		s.cfg.Drift.Observe(ctx, res)
	}

	out := *res
	out.PageHTML = ""
	if s.cfg.Cache != nil {
		s.cfg.Cache.Set(key, &out)
	}

	slog.Info("extract: done",
		"url", req.URL,
		"redirected_url", out.RedirectedURL,
		"fetch_mode", req.FetchMode,
		"nulls", out.NullCount(),
		"duration", time.Since(start).String(),
	)
	return &out, nil
}

// extractLive runs the pipeline on a browser session. The session is released
// on every path, panics included; a failed or panicking run counts against
// the browser's health.
func (s *Scraper) extractLive(ctx context.Context, table *fields.Table, target string) (*models.ExtractResult, error) {
	pg, release, err := s.cfg.Browser.Open(ctx)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() { release(ok) }()

	res, err := s.live.Run(ctx, pg, table, target)
	ok = err == nil
	return res, err
}

// Stats returns pool and field table state for the /stats endpoint.
func (s *Scraper) Stats() models.StatsResponse {
	table := s.cfg.Fields.Current()
	var ps models.PoolStats
	if s.cfg.Browser != nil {
		ps = s.cfg.Browser.Stats()
	}
	return models.StatsResponse{
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		PoolStats:    ps,
		FieldVersion: table.Version,
		FieldCount:   len(table.Fields),
		StartedAt:    s.started,
	}
}
