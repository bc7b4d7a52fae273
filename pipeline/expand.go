package pipeline

import (
	"context"
	"log/slog"

	"github.com/use-agent/listingd/page"
)

// Expand clicks a "show more" control so the full description is rendered.
// It is a no-op when no control matches; failures are swallowed.
func (p *Pipeline) Expand(ctx context.Context, pg page.Page) {
	if len(p.opts.ExpandTexts) == 0 || ctx.Err() != nil {
		return
	}
	matched, err := pg.ClickText(ctx, p.opts.ExpandSelector, p.opts.ExpandTexts)
	if err != nil {
		slog.Debug("pipeline: expand control failed", "error", err)
		return
	}
	if matched == "" {
		return
	}
	slog.Debug("pipeline: description expanded", "control", matched)
	sleep(ctx, p.opts.ExpandSettle)
}
