package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/use-agent/listingd/fields"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/page"
)

// field is the resolved state of one spec.
type field struct {
	value   *string
	outcome models.Outcome
	rows    []models.Row
}

// ExtractAll resolves every field of table. A field that cannot be found is
// nil; no field failure stops the others. Rows collected by rows-kind fields
// are then routed into fields that are still nil.
func (p *Pipeline) ExtractAll(ctx context.Context, pg page.Page, table *fields.Table, targetURL string) (map[string]*string, map[string]models.Outcome) {
	values := make(map[string]*string, len(table.Fields))
	outcomes := make(map[string]models.Outcome, len(table.Fields))

	var routed []fields.Spec
	rows := make(map[string][]models.Row)

	for _, spec := range table.Fields {
		f := p.extract(ctx, pg, spec)
		values[spec.Name] = f.value
		outcomes[spec.Name] = f.outcome
		logOutcome(targetURL, spec.Name, f.outcome)

		if len(spec.Routes) > 0 && len(f.rows) > 0 {
			routed = append(routed, spec)
			rows[spec.Name] = f.rows
		}
		if ctx.Err() != nil {
			// Deadline passed; the caller turns this into a fatal error.
			return values, outcomes
		}
	}

	for _, src := range routed {
		resolved := make(map[string]bool, len(values))
		for name, v := range values {
			resolved[name] = v != nil
		}
		for dest, raw := range fields.RouteRows(src.Routes, rows[src.Name], resolved) {
			spec, ok := table.Lookup(dest)
			if !ok {
				continue
			}
			v, err := fields.ApplyTransform(spec.Transform, raw)
			if err != nil || v == "" {
				continue
			}
			values[dest] = &v
			outcomes[dest] = models.Outcome{Status: models.OutcomeOK, Selector: "rows:" + src.Name}
			slog.Debug("pipeline: field filled from characteristics", "field", dest, "source", src.Name)
		}
	}
	return values, outcomes
}

// ExtractField resolves one field: selectors in order, first non-empty
// value wins, then the optional fallback. It never returns an error; a miss
// is a nil value with a not_found, timeout or error outcome.
func (p *Pipeline) ExtractField(ctx context.Context, pg page.Page, spec fields.Spec) (*string, models.Outcome) {
	f := p.extract(ctx, pg, spec)
	return f.value, f.outcome
}

func (p *Pipeline) extract(ctx context.Context, pg page.Page, spec fields.Spec) field {
	miss := models.Outcome{Status: models.OutcomeNotFound}

	for _, sel := range spec.Selectors {
		if ctx.Err() != nil {
			return field{outcome: models.Outcome{Status: models.OutcomeTimeout, Detail: "request deadline exceeded"}}
		}

		raw, rows, err := p.read(ctx, pg, spec, sel)
		if err != nil {
			miss = worse(miss, classify(sel, err))
			continue
		}
		v, err := fields.ApplyTransform(spec.Transform, raw)
		if err != nil {
			miss = worse(miss, models.Outcome{Status: models.OutcomeError, Selector: sel, Detail: err.Error()})
			continue
		}
		if v == "" {
			continue
		}
		return field{
			value:   &v,
			outcome: models.Outcome{Status: models.OutcomeOK, Selector: sel},
			rows:    rows,
		}
	}

	if spec.Fallback == fields.FallbackReadability && ctx.Err() == nil {
		if v, ok := p.readabilityText(ctx, pg, spec); ok {
			return field{value: &v, outcome: models.Outcome{Status: models.OutcomeOK, Selector: fields.FallbackReadability}}
		}
	}
	return field{outcome: miss}
}

// read runs one selector under the per-selector timeout.
func (p *Pipeline) read(ctx context.Context, pg page.Page, spec fields.Spec, sel string) (string, []models.Row, error) {
	readCtx, cancel := context.WithTimeout(ctx, p.opts.SelectorTimeout)
	defer cancel()

	if spec.Kind == fields.KindRows && spec.Rows != nil {
		rows, err := pg.Rows(readCtx, sel, spec.Rows.Row, spec.Rows.Title, spec.Rows.Value)
		if err != nil {
			return "", nil, err
		}
		return fields.FormatRows(rows), rows, nil
	}
	text, err := pg.Read(readCtx, sel, spec.Source)
	return text, nil, err
}

func (p *Pipeline) readabilityText(ctx context.Context, pg page.Page, spec fields.Spec) (string, bool) {
	rawHTML, err := pg.HTML(ctx)
	if err != nil || rawHTML == "" {
		return "", false
	}
	loc, _ := pg.Location(ctx)
	pageURL, err := url.Parse(loc)
	if err != nil {
		pageURL = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		slog.Debug("pipeline: readability fallback failed", "field", spec.Name, "error", err)
		return "", false
	}
	raw := article.TextContent
	if spec.Source == fields.SourceHTML {
		raw = article.Content
	}
	v, err := fields.ApplyTransform(spec.Transform, raw)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func classify(sel string, err error) models.Outcome {
	switch {
	case errors.Is(err, page.ErrNotFound):
		return models.Outcome{Status: models.OutcomeNotFound, Selector: sel}
	case errors.Is(err, context.DeadlineExceeded):
		return models.Outcome{Status: models.OutcomeTimeout, Selector: sel, Detail: err.Error()}
	default:
		return models.Outcome{Status: models.OutcomeError, Selector: sel, Detail: err.Error()}
	}
}

var severity = map[string]int{
	models.OutcomeNotFound: 1,
	models.OutcomeTimeout:  2,
	models.OutcomeError:    3,
}

// worse keeps the more severe of two miss outcomes.
func worse(a, b models.Outcome) models.Outcome {
	if severity[b.Status] > severity[a.Status] {
		return b
	}
	return a
}

func logOutcome(targetURL, name string, o models.Outcome) {
	switch o.Status {
	case models.OutcomeOK:
		slog.Debug("pipeline: field resolved", "url", targetURL, "field", name, "selector", o.Selector)
	case models.OutcomeNotFound:
		slog.Debug("pipeline: field not found", "url", targetURL, "field", name)
	default:
		slog.Warn("pipeline: field read failed",
			"url", targetURL,
			"field", name,
			"status", o.Status,
			"selector", o.Selector,
			"detail", o.Detail,
		)
	}
}
