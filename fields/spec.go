package fields

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/listingd/models"
)

// Field kinds.
const (
	KindText = "text"
	KindRows = "rows"
)

// Field sources.
const (
	SourceText = "text"
	SourceHTML = "html"
)

// FallbackReadability resolves a missed field from the readability article text.
const FallbackReadability = "readability"

// Spec describes one logical output field and how to find it on the page.
type Spec struct {
	// Name is the output key. Unique within a table.
	Name string `json:"name"`

	// Selectors are CSS selectors tried in order; the first one yielding
	// non-empty text wins. Most specific / stable first.
	Selectors []string `json:"selectors"`

	// Transform post-processes the trimmed text. Default: "trim".
	Transform string `json:"transform,omitempty"`

	// Source is "text" (default, rendered text) or "html" (inner HTML).
	Source string `json:"source,omitempty"`

	// Kind is "text" (default) or "rows" (repeated title/value list).
	Kind string `json:"kind,omitempty"`

	// Rows locates title/value pairs inside the matched container (kind=rows).
	Rows *RowSpec `json:"rows,omitempty"`

	// Routes copy matching rows into dedicated fields (kind=rows).
	Routes []Route `json:"routes,omitempty"`

	// Fallback names a last-resort strategy when every selector misses.
	Fallback string `json:"fallback,omitempty"`
}

// RowSpec locates rows inside a container and the title/value inside each row.
// Empty Title/Value selectors fall back to splitting the row text on its first line break.
type RowSpec struct {
	Row   string `json:"row"`
	Title string `json:"title,omitempty"`
	Value string `json:"value,omitempty"`
}

// Route sends a row whose title contains Match (case-insensitive) to Field.
type Route struct {
	Match string `json:"match"`
	Field string `json:"field"`
}

// Table is a versioned set of field specs.
type Table struct {
	Version string `json:"version"`
	Fields  []Spec `json:"fields"`
}

// Names returns the field names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the spec with the given name.
func (t *Table) Lookup(name string) (Spec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Spec{}, false
}

var reservedNames = map[string]struct{}{
	models.KeyRedirectedURL: {},
	models.KeyURL:           {},
	models.KeyError:         {},
	models.KeyOutcomes:      {},
}

// Validate checks the table invariants and applies per-field defaults in place.
// All problems are reported together.
func (t *Table) Validate() error {
	var errs []error
	if strings.TrimSpace(t.Version) == "" {
		errs = append(errs, errors.New("table version is empty"))
	}
	if len(t.Fields) == 0 {
		errs = append(errs, errors.New("table has no fields"))
	}

	seen := make(map[string]struct{}, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		f.applyDefaults()

		if f.Name == "" {
			errs = append(errs, fmt.Errorf("field %d: empty name", i))
			continue
		}
		if _, dup := seen[f.Name]; dup {
			errs = append(errs, fmt.Errorf("field %q: duplicate name", f.Name))
		}
		seen[f.Name] = struct{}{}
		if _, reserved := reservedNames[f.Name]; reserved {
			errs = append(errs, fmt.Errorf("field %q: name is reserved", f.Name))
		}
		errs = append(errs, f.validate()...)
	}

	for _, f := range t.Fields {
		for _, r := range f.Routes {
			if _, ok := seen[r.Field]; !ok {
				errs = append(errs, fmt.Errorf("field %q: route %q targets unknown field %q", f.Name, r.Match, r.Field))
			}
			if r.Field == f.Name {
				errs = append(errs, fmt.Errorf("field %q: route %q targets itself", f.Name, r.Match))
			}
		}
	}
	return errors.Join(errs...)
}

func (f *Spec) applyDefaults() {
	if f.Transform == "" {
		f.Transform = TransformTrim
	}
	if f.Source == "" {
		f.Source = SourceText
	}
	if f.Kind == "" {
		f.Kind = KindText
	}
}

func (f *Spec) validate() []error {
	var errs []error
	if len(f.Selectors) == 0 {
		errs = append(errs, fmt.Errorf("field %q: no selectors", f.Name))
	}
	for _, sel := range f.Selectors {
		if err := checkSelector(sel); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", f.Name, err))
		}
	}
	if !KnownTransform(f.Transform) {
		errs = append(errs, fmt.Errorf("field %q: unknown transform %q", f.Name, f.Transform))
	}
	if f.Source != SourceText && f.Source != SourceHTML {
		errs = append(errs, fmt.Errorf("field %q: unknown source %q", f.Name, f.Source))
	}
	if f.Fallback != "" && f.Fallback != FallbackReadability {
		errs = append(errs, fmt.Errorf("field %q: unknown fallback %q", f.Name, f.Fallback))
	}

	switch f.Kind {
	case KindText:
		if f.Rows != nil || len(f.Routes) > 0 {
			errs = append(errs, fmt.Errorf("field %q: rows/routes require kind %q", f.Name, KindRows))
		}
	case KindRows:
		if f.Rows == nil || f.Rows.Row == "" {
			errs = append(errs, fmt.Errorf("field %q: kind rows requires a row selector", f.Name))
			break
		}
		for _, sel := range []string{f.Rows.Row, f.Rows.Title, f.Rows.Value} {
			if sel == "" {
				continue
			}
			if err := checkSelector(sel); err != nil {
				errs = append(errs, fmt.Errorf("field %q rows: %w", f.Name, err))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind))
	}
	return errs
}

func checkSelector(sel string) error {
	if strings.TrimSpace(sel) == "" {
		return errors.New("empty selector")
	}
	if _, err := cascadia.Parse(sel); err != nil {
		return fmt.Errorf("invalid selector %q: %w", sel, err)
	}
	return nil
}
