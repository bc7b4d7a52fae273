package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/listingd/fields"
	"github.com/use-agent/listingd/htmldoc"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/page"
)

const listingHTML = `<html><body>
<div id="root"><main>
  <h1>
    <span class="price">320` + "\u00a0" + `000` + "\u202f" + `€</span>
    <span class="city">Lyon 69003</span>
  </h1>
  <section class="Description"><p>Bel appartement  lumineux.</p></section>
  <ul class="features">
    <li><span>Pièces</span><span>4</span></li>
    <li><span>Surface</span><span>85 m²</span></li>
    <li><div>Chauffage</div><div>Gaz</div></li>
  </ul>
</main></div>
</body></html>`

func testTable() *fields.Table {
	t := &fields.Table{
		Version: "test-1",
		Fields: []fields.Spec{
			{Name: "price", Selectors: []string{"main .gone", "main h1 .price"}, Transform: "strip_spaces"},
			{Name: "city_zipcode", Selectors: []string{"main h1 .city"}},
			{Name: "total_rooms", Selectors: []string{".rooms"}},
			{Name: "internal_surface", Selectors: []string{".surface"}},
			{Name: "full_description", Selectors: []string{"section.Description"}, Transform: "collapse_spaces"},
			{Name: "energy_performance", Selectors: []string{".dpe"}},
			{
				Name:      "characteristics",
				Selectors: []string{"ul.features"},
				Kind:      fields.KindRows,
				Rows:      &fields.RowSpec{Row: "li", Title: "span:nth-child(1)", Value: "span:nth-child(2)"},
				Routes: []fields.Route{
					{Match: "pièce", Field: "total_rooms"},
					{Match: "surface", Field: "internal_surface"},
				},
			},
		},
	}
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}

func staticDoc(body, final string) *htmldoc.Document {
	return htmldoc.New(func(_ context.Context, _ string) ([]byte, string, error) {
		return []byte(body), final, nil
	})
}

func TestRun_Listing(t *testing.T) {
	p := New(StaticOptions())
	doc := staticDoc(listingHTML, "https://www.example.fr/annonce/42")

	res, err := p.Run(context.Background(), doc, testTable(), "https://short.example/x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]string{
		"price":            "320000€",
		"city_zipcode":     "Lyon 69003",
		"total_rooms":      "4",
		"internal_surface": "85 m²",
		"full_description": "Bel appartement lumineux.",
		"characteristics":  "Pièces: 4\nSurface: 85 m²\nChauffage: Gaz",
	}
	for name, w := range want {
		v := res.Values[name]
		if v == nil {
			t.Errorf("%s = nil, want %q", name, w)
			continue
		}
		if *v != w {
			t.Errorf("%s = %q, want %q", name, *v, w)
		}
	}
	if v, ok := res.Values["energy_performance"]; !ok || v != nil {
		t.Errorf("energy_performance = %v (present=%v), want nil and present", v, ok)
	}
	if got := res.Outcomes["energy_performance"].Status; got != models.OutcomeNotFound {
		t.Errorf("energy_performance outcome = %q, want %q", got, models.OutcomeNotFound)
	}
	if got := res.Outcomes["price"].Selector; got != "main h1 .price" {
		t.Errorf("price selector = %q, want fallback selector", got)
	}
	if got := res.Outcomes["total_rooms"].Selector; got != "rows:characteristics" {
		t.Errorf("total_rooms selector = %q, want rows:characteristics", got)
	}
	if res.RedirectedURL != "https://www.example.fr/annonce/42" {
		t.Errorf("RedirectedURL = %q", res.RedirectedURL)
	}
	if res.TableVersion != "test-1" {
		t.Errorf("TableVersion = %q", res.TableVersion)
	}

	out := Assemble(res, false)
	if len(out) != len(testTable().Fields)+2 {
		t.Errorf("assembled %d keys, want %d", len(out), len(testTable().Fields)+2)
	}
	if out["price"] != "320000€" {
		t.Errorf("assembled price = %v", out["price"])
	}
	if v, ok := out["energy_performance"]; !ok || v != nil {
		t.Errorf("assembled energy_performance = %v (present=%v)", v, ok)
	}
	if out[models.KeyURL] != "https://short.example/x" {
		t.Errorf("assembled url = %v", out[models.KeyURL])
	}
	if _, ok := out[models.KeyOutcomes]; ok {
		t.Error("field_outcomes present without debug")
	}
}

func TestRun_AllSelectorsMiss(t *testing.T) {
	p := New(StaticOptions())
	doc := staticDoc(`<html><body><div>nothing here</div></body></html>`, "https://www.example.fr/a")

	res, err := p.Run(context.Background(), doc, testTable(), "https://www.example.fr/a")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, name := range testTable().Names() {
		v, ok := res.Values[name]
		if !ok {
			t.Errorf("%s missing from result", name)
		}
		if v != nil {
			t.Errorf("%s = %q, want nil", name, *v)
		}
	}
	if res.NullCount() != len(testTable().Fields) {
		t.Errorf("NullCount = %d", res.NullCount())
	}
}

func TestRun_Idempotent(t *testing.T) {
	p := New(StaticOptions())
	table := testTable()

	first, err := p.Run(context.Background(), staticDoc(listingHTML, "https://e.fr/1"), table, "https://e.fr/1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Run(context.Background(), staticDoc(listingHTML, "https://e.fr/1"), table, "https://e.fr/1")
	if err != nil {
		t.Fatal(err)
	}
	a, b := Assemble(first, true), Assemble(second, true)
	for k, v := range a {
		if k == models.KeyOutcomes {
			continue
		}
		if b[k] != v {
			t.Errorf("%s: %v != %v", k, v, b[k])
		}
	}
}

func TestRun_DeadlineIsFatal(t *testing.T) {
	p := New(StaticOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx, staticDoc(listingHTML, "https://e.fr/1"), testTable(), "https://e.fr/1")
	if res != nil {
		t.Fatal("expected no result after deadline")
	}
	var xe *models.ExtractError
	if !errors.As(err, &xe) || xe.Code != models.ErrCodeTimeout {
		t.Fatalf("err = %v, want TIMEOUT", err)
	}
}

// fakePage overrides navigation, location and clicking on top of a static document.
type fakePage struct {
	*htmldoc.Document
	navErr     error
	loc        string
	readErr    error
	clickMatch string
	clicks     int
	clicked    []string
}

func (f *fakePage) Navigate(context.Context, string, string) error { return f.navErr }
func (f *fakePage) Location(context.Context) (string, error)       { return f.loc, nil }

func (f *fakePage) Read(ctx context.Context, selector, source string) (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.Document.Read(ctx, selector, source)
}

func (f *fakePage) ClickText(_ context.Context, _ string, texts []string) (string, error) {
	f.clicks++
	for _, t := range texts {
		if page.ContainsFold(f.clickMatch, t) {
			f.clicked = append(f.clicked, t)
			return t, nil
		}
	}
	return "", nil
}

func newFakePage(t *testing.T) *fakePage {
	t.Helper()
	doc, err := htmldoc.FromHTML(listingHTML, "https://e.fr/1")
	if err != nil {
		t.Fatal(err)
	}
	return &fakePage{Document: doc, loc: "https://e.fr/1"}
}

func TestNavigate(t *testing.T) {
	tests := []struct {
		name     string
		navErr   error
		loc      string
		wantCode string
		wantURL  string
	}{
		{name: "ok", loc: "https://e.fr/final", wantURL: "https://e.fr/final"},
		{name: "ok blank location falls back", loc: "about:blank", wantURL: "https://e.fr/1"},
		{name: "timeout after commit", navErr: context.DeadlineExceeded, loc: "https://e.fr/partial", wantURL: "https://e.fr/partial"},
		{name: "timeout before commit", navErr: context.DeadlineExceeded, loc: "about:blank", wantCode: models.ErrCodeTimeout},
		{name: "navigation error", navErr: errors.New("net::ERR_NAME_NOT_RESOLVED"), loc: "about:blank", wantCode: models.ErrCodeNavigation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newFakePage(t)
			fp.navErr, fp.loc = tt.navErr, tt.loc

			got, err := New(StaticOptions()).Navigate(context.Background(), fp, "https://e.fr/1")
			if tt.wantCode != "" {
				var xe *models.ExtractError
				if !errors.As(err, &xe) || xe.Code != tt.wantCode {
					t.Fatalf("err = %v, want code %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Navigate: %v", err)
			}
			if got != tt.wantURL {
				t.Errorf("url = %q, want %q", got, tt.wantURL)
			}
		})
	}
}

func TestDismissConsent(t *testing.T) {
	opts := StaticOptions()
	opts.ConsentTimeout = 20 * time.Millisecond
	opts.PollInterval = 5 * time.Millisecond
	p := New(opts)

	fp := newFakePage(t)
	fp.clickMatch = "Accepter et fermer"
	p.DismissConsent(context.Background(), fp)
	if fp.clicks != 1 {
		t.Errorf("clicks = %d, want 1", fp.clicks)
	}

	absent := newFakePage(t)
	p.DismissConsent(context.Background(), absent)
	if absent.clicks < 2 {
		t.Errorf("expected repeated probes for a missing banner, got %d", absent.clicks)
	}
}

func TestRun_ConsentAndExpandClicked(t *testing.T) {
	p := New(StaticOptions())

	withBanner := newFakePage(t)
	withBanner.clickMatch = "Tout accepter / Voir plus"
	got, err := p.Run(context.Background(), withBanner, testTable(), "https://e.fr/1")
	if err != nil {
		t.Fatalf("Run with banner: %v", err)
	}
	if want := []string{"Tout accepter", "Voir plus"}; strings.Join(withBanner.clicked, "|") != strings.Join(want, "|") {
		t.Errorf("clicked = %q, want %q", withBanner.clicked, want)
	}

	noBanner := newFakePage(t)
	want, err := p.Run(context.Background(), noBanner, testTable(), "https://e.fr/1")
	if err != nil {
		t.Fatalf("Run without banner: %v", err)
	}
	if len(noBanner.clicked) != 0 || noBanner.clicks != 2 {
		t.Errorf("no banner: clicked = %q after %d probes, want none after 2", noBanner.clicked, noBanner.clicks)
	}

	a, b := Assemble(got, false), Assemble(want, false)
	if len(a) != len(b) {
		t.Fatalf("assembled %d keys with banner, %d without", len(a), len(b))
	}
	for k, v := range b {
		if a[k] != v {
			t.Errorf("%s = %v with banner, %v without", k, a[k], v)
		}
	}
}

func TestExpand(t *testing.T) {
	p := New(StaticOptions())

	fp := newFakePage(t)
	fp.clickMatch = "Lire la suite"
	p.Expand(context.Background(), fp)
	if fp.clicks != 1 || len(fp.clicked) != 1 || fp.clicked[0] != "Lire la suite" {
		t.Errorf("clicks = %d, clicked = %q", fp.clicks, fp.clicked)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	skipped := newFakePage(t)
	skipped.clickMatch = "Voir plus"
	p.Expand(ctx, skipped)
	if skipped.clicks != 0 {
		t.Errorf("expand probed %d times after the deadline", skipped.clicks)
	}
}

func TestExtractField_Outcomes(t *testing.T) {
	p := New(StaticOptions())
	spec := fields.Spec{Name: "price", Selectors: []string{"main h1 .price"}, Transform: "strip_spaces"}

	fp := newFakePage(t)
	fp.readErr = context.DeadlineExceeded
	v, o := p.ExtractField(context.Background(), fp, spec)
	if v != nil || o.Status != models.OutcomeTimeout {
		t.Errorf("timeout read: value=%v outcome=%+v", v, o)
	}

	fp.readErr = errors.New("cdp: node detached")
	v, o = p.ExtractField(context.Background(), fp, spec)
	if v != nil || o.Status != models.OutcomeError {
		t.Errorf("failed read: value=%v outcome=%+v", v, o)
	}

	fp.readErr = nil
	v, o = p.ExtractField(context.Background(), fp, spec)
	if v == nil || *v != "320000€" || o.Status != models.OutcomeOK {
		t.Errorf("ok read: value=%v outcome=%+v", v, o)
	}
}

func TestExtractField_ReadabilityFallback(t *testing.T) {
	para := strings.Repeat("Maison de caractère avec jardin arboré, proche des écoles et des commerces. ", 12)
	body := `<html><head><title>Annonce</title></head><body><article><h2>Description</h2><p>` +
		para + `</p><p>` + para + `</p></article></body></html>`
	doc, err := htmldoc.FromHTML(body, "https://e.fr/1")
	if err != nil {
		t.Fatal(err)
	}

	spec := fields.Spec{
		Name:      "full_description",
		Selectors: []string{".DescriptionTexts"},
		Transform: "collapse_spaces",
		Fallback:  fields.FallbackReadability,
	}
	v, o := New(StaticOptions()).ExtractField(context.Background(), doc, spec)
	if v == nil {
		t.Fatalf("expected readability text, outcome %+v", o)
	}
	if !strings.Contains(*v, "jardin arboré") {
		t.Errorf("value = %q", *v)
	}
	if o.Selector != fields.FallbackReadability {
		t.Errorf("selector = %q", o.Selector)
	}
}

func TestAssembleError(t *testing.T) {
	err := models.NewExtractError(models.ErrCodeTimeout, "request deadline exceeded", context.DeadlineExceeded)
	got := AssembleError(err)
	if got.Error != "request deadline exceeded: context deadline exceeded" {
		t.Errorf("got %q", got.Error)
	}
	if got := AssembleError(errors.New("boom")); got.Error != "boom" {
		t.Errorf("got %q", got.Error)
	}
}

func TestAssemble_Debug(t *testing.T) {
	v := "1"
	res := &models.ExtractResult{
		Values:   map[string]*string{"a": &v, "b": nil},
		Outcomes: map[string]models.Outcome{"a": {Status: models.OutcomeOK}, "b": {Status: models.OutcomeNotFound}},
	}
	out := Assemble(res, true)
	if _, ok := out[models.KeyOutcomes]; !ok {
		t.Error("field_outcomes missing with debug")
	}
	if out["a"] != "1" || out["b"] != nil {
		t.Errorf("out = %v", out)
	}
}
