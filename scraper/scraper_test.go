package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/use-agent/listingd/cache"
	"github.com/use-agent/listingd/drift"
	"github.com/use-agent/listingd/fields"
	"github.com/use-agent/listingd/htmldoc"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/page"
	"github.com/use-agent/listingd/pipeline"
	"github.com/use-agent/listingd/resolver"
)

const listingPage = `<html><body><div id="root"><div><main>
<div class="css-18xl464 MainColumn"><div><h1>
  <div class="css-1ez736g"><div class="css-1rt48lp"><span class="css-otf0vo">320` + "\u00a0" + `000` + "\u00a0" + `€</span></div></div>
</h1></div></div>
</main></div></div></body></html>`

// fakeBrowser serves static documents in place of browser sessions.
type fakeBrowser struct {
	res *resolver.Resolver

	mu       sync.Mutex
	opened   int
	releases []bool
	wrap     func(page.Page) page.Page
	openErr  error
}

func (f *fakeBrowser) Open(context.Context) (page.Page, func(bool), error) {
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()

	var pg page.Page = htmldoc.New(f.res.Fetch)
	if f.wrap != nil {
		pg = f.wrap(pg)
	}
	return pg, func(ok bool) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.releases = append(f.releases, ok)
	}, nil
}

func (f *fakeBrowser) Stats() models.PoolStats {
	return models.PoolStats{MaxSessions: 1}
}

func newTestScraper(t *testing.T, fb *fakeBrowser, c *cache.Cache) *Scraper {
	t.Helper()
	store, err := fields.NewStore("")
	if err != nil {
		t.Fatal(err)
	}
	if fb.res == nil {
		fb.res = resolver.New()
	}
	return New(Config{
		Browser:          fb,
		Resolver:         fb.res,
		Fields:           store,
		Cache:            c,
		Drift:            drift.NewDetector(drift.Options{}, nil),
		Pipeline:         pipeline.StaticOptions(),
		ResolveRedirects: true,
	})
}

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/s/abc", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/annonces/42", http.StatusFound)
	})
	mux.HandleFunc("/annonces/42", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingPage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExtract_Browser(t *testing.T) {
	srv := listingServer(t)
	fb := &fakeBrowser{}
	s := newTestScraper(t, fb, nil)

	req := &models.ExtractRequest{URL: srv.URL + "/s/abc"}
	req.Defaults()
	res, err := s.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if v := res.Values["price"]; v == nil || *v != "320000€" {
		t.Errorf("price = %v", v)
	}
	if v, ok := res.Values["energy_performance"]; !ok || v != nil {
		t.Errorf("energy_performance = %v (present=%v)", v, ok)
	}
	if len(res.Values) != len(fields.Default().Fields) {
		t.Errorf("%d values, want one per field", len(res.Values))
	}
	if res.RedirectedURL != srv.URL+"/annonces/42" {
		t.Errorf("RedirectedURL = %q", res.RedirectedURL)
	}
	if res.SubmittedURL != req.URL {
		t.Errorf("SubmittedURL = %q", res.SubmittedURL)
	}
	if res.PageHTML != "" {
		t.Error("page HTML should not leave the scraper")
	}
	if len(fb.releases) != 1 || !fb.releases[0] {
		t.Errorf("releases = %v, want one successful release", fb.releases)
	}
}

func TestExtract_HTTPMode(t *testing.T) {
	srv := listingServer(t)
	fb := &fakeBrowser{}
	s := newTestScraper(t, fb, nil)

	req := &models.ExtractRequest{URL: srv.URL + "/annonces/42", FetchMode: models.FetchModeHTTP}
	res, err := s.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if v := res.Values["price"]; v == nil || *v != "320000€" {
		t.Errorf("price = %v", v)
	}
	if fb.opened != 0 {
		t.Error("http mode must not open a browser session")
	}
}

func TestExtract_CacheHit(t *testing.T) {
	srv := listingServer(t)
	fb := &fakeBrowser{}
	s := newTestScraper(t, fb, cache.New(10, 0))

	req := &models.ExtractRequest{URL: srv.URL + "/annonces/42", MaxAge: 60_000}
	req.Defaults()
	first, err := s.Extract(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Extract(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if fb.opened != 1 {
		t.Errorf("opened = %d, want 1", fb.opened)
	}
	if *second.Values["price"] != *first.Values["price"] {
		t.Error("cached result differs")
	}
}

func TestExtract_NavigationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	fb := &fakeBrowser{}
	s := newTestScraper(t, fb, nil)
	req := &models.ExtractRequest{URL: srv.URL + "/annonces/1"}
	req.Defaults()

	res, err := s.Extract(context.Background(), req)
	if res != nil {
		t.Error("no result expected on a fatal error")
	}
	var xe *models.ExtractError
	if !errors.As(err, &xe) || xe.Code != models.ErrCodeNavigation {
		t.Fatalf("err = %v, want NAVIGATION_FAILED", err)
	}
	if len(fb.releases) != 1 || fb.releases[0] {
		t.Errorf("releases = %v, want one failed release", fb.releases)
	}
}

func TestExtract_BrowserUnavailable(t *testing.T) {
	fb := &fakeBrowser{openErr: models.NewExtractError(models.ErrCodeBrowserCrash, "failed to launch browser", errors.New("no chromium"))}
	s := newTestScraper(t, fb, nil)
	req := &models.ExtractRequest{URL: "http://127.0.0.1:1/annonces/1"}
	req.Defaults()

	_, err := s.Extract(context.Background(), req)
	var xe *models.ExtractError
	if !errors.As(err, &xe) || xe.Code != models.ErrCodeBrowserCrash {
		t.Fatalf("err = %v, want BROWSER_CRASH", err)
	}
}

type panicPage struct{ page.Page }

func (panicPage) Read(context.Context, string, string) (string, error) {
	panic("renderer crashed")
}

func TestExtract_ReleasesOnPanic(t *testing.T) {
	srv := listingServer(t)
	fb := &fakeBrowser{wrap: func(p page.Page) page.Page { return panicPage{p} }}
	s := newTestScraper(t, fb, nil)
	req := &models.ExtractRequest{URL: srv.URL + "/annonces/42"}
	req.Defaults()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the panic to propagate")
			}
		}()
		_, _ = s.Extract(context.Background(), req)
	}()

	if len(fb.releases) != 1 || fb.releases[0] {
		t.Errorf("releases = %v, want one failed release", fb.releases)
	}
}

func TestStats(t *testing.T) {
	s := newTestScraper(t, &fakeBrowser{}, nil)
	st := s.Stats()
	if st.FieldVersion != fields.Default().Version {
		t.Errorf("FieldVersion = %q", st.FieldVersion)
	}
	if st.FieldCount != len(fields.Default().Fields) || st.PoolStats.MaxSessions != 1 {
		t.Errorf("stats = %+v", st)
	}
}
