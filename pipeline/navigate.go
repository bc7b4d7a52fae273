package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/page"
)

// Navigate loads targetURL and returns the URL the document committed to.
//
// A navigation timeout is tolerated as long as the page left about:blank:
// the pipeline carries on with whatever rendered. If the document never
// committed, or the request deadline itself passed, the timeout is fatal.
// Any other navigation error is fatal.
func (p *Pipeline) Navigate(ctx context.Context, pg page.Page, targetURL string) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, p.opts.NavigationTimeout)
	err := pg.Navigate(navCtx, targetURL, p.opts.WaitUntil)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return "", CategorizeError(ctx.Err(), "request deadline exceeded during navigation")
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return "", models.NewExtractError(models.ErrCodeNavigation, "navigation to target URL failed", err)
		}
		loc, locErr := pg.Location(ctx)
		if locErr != nil || !committed(loc) {
			return "", models.NewExtractError(models.ErrCodeTimeout, "navigation timed out before the page loaded", err)
		}
		slog.Warn("pipeline: navigation timed out, continuing with partial page",
			"url", targetURL,
			"location", loc,
			"timeout", p.opts.NavigationTimeout.String(),
		)
		return loc, nil
	}

	loc, err := pg.Location(ctx)
	if err != nil || !committed(loc) {
		return targetURL, nil
	}
	return loc, nil
}

// WaitRender waits for the content container. When it never shows, it waits
// the grace period and returns so extraction can still try the fields.
func (p *Pipeline) WaitRender(ctx context.Context, pg page.Page) {
	waitCtx := ctx
	if p.opts.ContainerTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.opts.ContainerTimeout)
		defer cancel()
	}

	start := time.Now()
	err := pg.WaitAttached(waitCtx, p.opts.ContainerSelector)
	if err == nil {
		slog.Debug("pipeline: content container attached",
			"selector", p.opts.ContainerSelector,
			"waited", time.Since(start).String(),
		)
		return
	}
	slog.Warn("pipeline: content container not found, continuing after grace period",
		"selector", p.opts.ContainerSelector,
		"grace", p.opts.GracePeriod.String(),
		"error", err,
	)
	sleep(ctx, p.opts.GracePeriod)
}

func committed(loc string) bool {
	return loc != "" && loc != "about:blank"
}
