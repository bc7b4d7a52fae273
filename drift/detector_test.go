package drift

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/use-agent/listingd/models"
)

type recorder struct {
	mu      sync.Mutex
	reports []*Report
}

func (r *recorder) Notify(_ context.Context, rep *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func str(s string) *string { return &s }

func result(html string, values map[string]*string) *models.ExtractResult {
	return &models.ExtractResult{
		Values:        values,
		RedirectedURL: "https://www.example.fr/annonces/1",
		SubmittedURL:  "https://www.example.fr/annonces/1",
		TableVersion:  "v1",
		PageHTML:      html,
	}
}

func templateA() string {
	return `<html><body><main class="MainColumn">` +
		strings.Repeat(`<div class="css-18xl464"><h1><span class="css-otf0vo">x</span></h1><ul class="css-feat"><li><span>a</span><span>b</span></li></ul></div>`, 5) +
		`</main></body></html>`
}

func templateB() string {
	return `<html><body><table class="grid">` +
		strings.Repeat(`<tr class="row"><td class="cell"><a class="lnk"><img class="pic"></a></td><td class="cell"><em>y</em></td></tr>`, 5) +
		`</table></body></html>`
}

func TestDetector_NullMajority(t *testing.T) {
	rec := &recorder{}
	d := NewDetector(Options{}, rec)

	healthy := result(templateA(), map[string]*string{"price": str("1"), "city": str("Lyon"), "dpe": nil})
	if r := d.Observe(context.Background(), healthy); r != nil {
		t.Fatalf("unexpected report %+v", r)
	}

	broken := result(templateA(), map[string]*string{"price": nil, "city": nil, "dpe": str("C")})
	r := d.Observe(context.Background(), broken)
	if r == nil {
		t.Fatal("expected a null_majority report")
	}
	if len(r.Reasons) != 1 || r.Reasons[0] != ReasonNullMajority {
		t.Errorf("reasons = %v", r.Reasons)
	}
	if strings.Join(r.NullFields, ",") != "city,price" {
		t.Errorf("null fields = %v", r.NullFields)
	}
	if r.Host != "www.example.fr" {
		t.Errorf("host = %q", r.Host)
	}
	if len(rec.reports) != 1 {
		t.Errorf("notifier called %d times, want 1", len(rec.reports))
	}
}

func TestDetector_StructureChanged(t *testing.T) {
	d := NewDetector(Options{MaxDistance: 1}, nil)
	values := map[string]*string{"price": str("1")}

	if r := d.Observe(context.Background(), result(templateA(), values)); r != nil {
		t.Fatalf("first observation should only set the baseline, got %+v", r)
	}
	if r := d.Observe(context.Background(), result(templateA(), values)); r != nil {
		t.Fatalf("same layout reported as drift: %+v", r)
	}
	r := d.Observe(context.Background(), result(templateB(), values))
	if r == nil || r.Reasons[0] != ReasonStructureChanged {
		t.Fatalf("expected structure_changed, got %+v", r)
	}
	if r.Distance <= 1 {
		t.Errorf("distance = %d", r.Distance)
	}
	if d.Hosts() != 1 {
		t.Errorf("hosts = %d", d.Hosts())
	}
}

func TestDetector_NewTableVersionResetsBaseline(t *testing.T) {
	d := NewDetector(Options{MaxDistance: 1}, nil)
	values := map[string]*string{"price": str("1")}

	d.Observe(context.Background(), result(templateA(), values))
	next := result(templateB(), values)
	next.TableVersion = "v2"
	if r := d.Observe(context.Background(), next); r != nil {
		t.Errorf("new table version should reset the baseline, got %+v", r)
	}
}
