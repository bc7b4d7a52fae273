package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/use-agent/listingd/browser"
	"github.com/use-agent/listingd/cache"
	"github.com/use-agent/listingd/config"
	"github.com/use-agent/listingd/drift"
	"github.com/use-agent/listingd/fields"
	"github.com/use-agent/listingd/pipeline"
	"github.com/use-agent/listingd/resolver"
	"github.com/use-agent/listingd/webhook"
)

// Setup builds a Scraper and its browser pool from cfg. Field table
// reloads run until ctx is done. The returned
// close func shuts the browser pool down.
func Setup(ctx context.Context, cfg *config.Config) (*Scraper, func(), error) {
	store, err := fields.NewStore(cfg.Fields.File)
	if err != nil {
		return nil, nil, fmt.Errorf("load field table: %w", err)
	}
	if cfg.Fields.File != "" && cfg.Fields.Watch {
		if err := store.Watch(ctx); err != nil {
			slog.Warn("field table reloads disabled", "file", cfg.Fields.File, "error", err)
		}
	}
	table := store.Current()
	slog.Info("field table loaded", "version", table.Version, "fields", len(table.Fields), "file", cfg.Fields.File)

	res := resolver.New(
		resolver.WithTimeout(cfg.Resolver.Timeout),
		resolver.WithUserAgent(cfg.Browser.UserAgent),
	)

	pool := browser.NewPool(browser.Options{
		Headless:             cfg.Browser.Headless,
		NoSandbox:            cfg.Browser.NoSandbox,
		Bin:                  cfg.Browser.Bin,
		Proxy:                cfg.Browser.Proxy,
		UserAgent:            cfg.Browser.UserAgent,
		AcceptLanguage:       cfg.Browser.AcceptLanguage,
		ViewportWidth:        cfg.Browser.ViewportWidth,
		ViewportHeight:       cfg.Browser.ViewportHeight,
		BlockedResourceTypes: cfg.Browser.BlockedResourceTypes,
		BlockTrackers:        cfg.Browser.BlockTrackers,
		Stealth:              cfg.Browser.Stealth,
		PoolSize:             cfg.Browser.PoolSize,
		MaxSessions:          cfg.Browser.MaxSessions,
	})

	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)

	var detector *drift.Detector
	if cfg.Drift.Enabled {
		var notifier drift.Notifier
		if cfg.Drift.WebhookURL != "" {
			notifier = webhook.New(cfg.Drift.WebhookURL, cfg.Drift.WebhookSecret)
		}
		detector = drift.NewDetector(drift.Options{
			NullRatio:   cfg.Drift.NullRatio,
			MaxDistance: cfg.Drift.MaxDistance,
		}, notifier)
	}

	opts := pipeline.DefaultOptions()
	opts.NavigationTimeout = cfg.Pipeline.NavigationTimeout
	opts.WaitUntil = cfg.Pipeline.WaitUntil
	opts.ContainerSelector = cfg.Pipeline.ContainerSelector
	opts.ContainerTimeout = cfg.Pipeline.ContainerTimeout
	opts.GracePeriod = cfg.Pipeline.GracePeriod
	opts.ConsentTimeout = cfg.Pipeline.ConsentTimeout
	opts.SelectorTimeout = cfg.Pipeline.SelectorTimeout

	sc := New(Config{
		Browser:          pool,
		Resolver:         res,
		Fields:           store,
		Cache:            cc,
		Drift:            detector,
		Pipeline:         opts,
		RequestTimeout:   cfg.Extract.RequestTimeout,
		ResolveRedirects: cfg.Extract.ResolveRedirects,
	})
	return sc, pool.Close, nil
}
