// Package pipeline drives one loaded page through the extraction stages:
//
//	navigate → consent → wait-for-render → expand → extract fields → capture URL
//
// Every stage is bounded by ctx. Only navigation failures and the request
// deadline are fatal; everything else degrades to null fields.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/listingd/fields"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/page"
)

// Options tunes the stage timeouts and probes.
type Options struct {
	NavigationTimeout time.Duration // default: 30s
	WaitUntil         string        // "load" or "domcontentloaded"; default: "load"

	ContainerSelector string        // default: "main"
	ContainerTimeout  time.Duration // default: 15s
	GracePeriod       time.Duration // wait when the container never shows; default: 3s

	ConsentSelector string        // default: "button"
	ConsentTexts    []string      // checked in order
	ConsentTimeout  time.Duration // how long to poll for the banner; 0 = single probe
	ConsentSettle   time.Duration // default: 750ms

	ExpandSelector string
	ExpandTexts    []string
	ExpandSettle   time.Duration // default: 500ms

	SelectorTimeout time.Duration // per-selector read bound; default: 2s
	PollInterval    time.Duration // default: 250ms
}

// DefaultOptions returns the tuning used against the live portal.
func DefaultOptions() Options {
	return Options{
		NavigationTimeout: 30 * time.Second,
		WaitUntil:         page.WaitLoad,
		ContainerSelector: "main",
		ContainerTimeout:  15 * time.Second,
		GracePeriod:       3 * time.Second,
		ConsentSelector:   "button",
		ConsentTexts:      []string{"Tout accepter", "Accepter et fermer", "Accepter", "J'accepte"},
		ConsentTimeout:    2 * time.Second,
		ConsentSettle:     750 * time.Millisecond,
		ExpandSelector:    "button, a, span[role='button']",
		ExpandTexts:       []string{"Voir plus", "Lire la suite", "Afficher plus"},
		ExpandSettle:      500 * time.Millisecond,
		SelectorTimeout:   2 * time.Second,
		PollInterval:      250 * time.Millisecond,
	}
}

// StaticOptions returns options for a document that never changes after load:
// no polling, no grace period, no settle delays.
func StaticOptions() Options {
	o := DefaultOptions()
	o.ContainerTimeout = 0
	o.GracePeriod = 0
	o.ConsentTimeout = 0
	o.ConsentSettle = 0
	o.ExpandSettle = 0
	return o
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = d.NavigationTimeout
	}
	if o.WaitUntil == "" {
		o.WaitUntil = d.WaitUntil
	}
	if o.ContainerSelector == "" {
		o.ContainerSelector = d.ContainerSelector
	}
	if o.ConsentSelector == "" {
		o.ConsentSelector = d.ConsentSelector
	}
	if o.ExpandSelector == "" {
		o.ExpandSelector = d.ExpandSelector
	}
	if o.SelectorTimeout <= 0 {
		o.SelectorTimeout = d.SelectorTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
}

// Pipeline runs the extraction stages. It holds no per-request state and is
// safe for concurrent use.
type Pipeline struct {
	opts Options
}

// New creates a Pipeline. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{opts: opts}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Run executes every stage against pg for targetURL.
//
// The returned result carries a value (possibly nil) for every field of table.
// A non-nil error is always a *models.ExtractError and means no field data is returned.
func (p *Pipeline) Run(ctx context.Context, pg page.Page, table *fields.Table, targetURL string) (*models.ExtractResult, error) {
	start := time.Now()

	// ── 1. Navigate (timeout tolerated once the document committed) ──
	navURL, err := p.Navigate(ctx, pg, targetURL)
	if err != nil {
		return nil, err
	}

	// ── 2. Consent banner (opportunistic) ──────────────────────────
	p.DismissConsent(ctx, pg)

	// ── 3. Wait for client-side render ─────────────────────────────
	p.WaitRender(ctx, pg)

	// ── 4. Expand the description ──────────────────────────────────
	p.Expand(ctx, pg)

	if err := ctx.Err(); err != nil {
		return nil, CategorizeError(err, "request deadline exceeded before extraction")
	}

	// ── 5. Extract every field ─────────────────────────────────────
	values, outcomes := p.ExtractAll(ctx, pg, table, targetURL)
	if err := ctx.Err(); err != nil {
		return nil, CategorizeError(err, "request deadline exceeded during extraction")
	}

	// ── 6. Capture the URL the page ended up on ───────────────────
	redirected := navURL
	if loc, locErr := pg.Location(ctx); locErr == nil && loc != "" && loc != "about:blank" {
		redirected = loc
	}

	// Best-effort snapshot for drift fingerprinting.
	pageHTML, _ := pg.HTML(ctx)

	res := &models.ExtractResult{
		Values:        values,
		Outcomes:      outcomes,
		RedirectedURL: redirected,
		SubmittedURL:  targetURL,
		TableVersion:  table.Version,
		PageHTML:      pageHTML,
	}
	slog.Info("pipeline: extraction finished",
		"url", targetURL,
		"redirected_url", redirected,
		"fields", len(values),
		"nulls", res.NullCount(),
		"table_version", table.Version,
		"duration", time.Since(start).String(),
	)
	return res, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
