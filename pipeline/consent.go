package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/listingd/page"
)

// DismissConsent clicks the first visible consent button, polling for the
// banner until ConsentTimeout. Absence and failures are silent.
func (p *Pipeline) DismissConsent(ctx context.Context, pg page.Page) {
	if len(p.opts.ConsentTexts) == 0 {
		return
	}
	deadline := time.Now().Add(p.opts.ConsentTimeout)
	for {
		matched, err := pg.ClickText(ctx, p.opts.ConsentSelector, p.opts.ConsentTexts)
		if err != nil {
			slog.Debug("pipeline: consent probe failed", "error", err)
		}
		if matched != "" {
			slog.Debug("pipeline: consent banner dismissed", "button", matched)
			sleep(ctx, p.opts.ConsentSettle)
			return
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			slog.Debug("pipeline: no consent banner")
			return
		}
		sleep(ctx, p.opts.PollInterval)
	}
}
