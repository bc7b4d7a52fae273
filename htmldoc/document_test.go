package htmldoc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/use-agent/listingd/page"
)

const listingHTML = `<!DOCTYPE html>
<html><body>
<main>
  <h1><span class="price"> 320 000 € </span></h1>
  <div class="desc"><p>Bel <b>appartement</b></p></div>
  <ul class="features">
    <li><span>Pièces</span><span>4</span></li>
    <li><div>Chauffage</div><div>Gaz</div></li>
  </ul>
</main>
</body></html>`

func TestDocument_Read(t *testing.T) {
	d, err := FromHTML(listingHTML, "https://portal.test/annonce/1")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	ctx := context.Background()

	text, err := d.Read(ctx, ".price", "text")
	if err != nil {
		t.Fatalf("Read text: %v", err)
	}
	if strings.TrimSpace(text) != "320 000 €" {
		t.Errorf("text = %q", text)
	}

	inner, err := d.Read(ctx, ".desc", "html")
	if err != nil {
		t.Fatalf("Read html: %v", err)
	}
	if !strings.Contains(inner, "<b>appartement</b>") {
		t.Errorf("html = %q", inner)
	}

	if _, err := d.Read(ctx, ".energy", "text"); !errors.Is(err, page.ErrNotFound) {
		t.Errorf("missing selector error = %v, want ErrNotFound", err)
	}
}

func TestDocument_Rows(t *testing.T) {
	d, err := FromHTML(listingHTML, "https://portal.test/annonce/1")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}

	rows, err := d.Rows(context.Background(), "ul.features", "li", "span:nth-child(1)", "span:nth-child(2)")
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Title != "Pièces" || rows[0].Value != "4" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	// Second row has no spans: falls back to splitting block text.
	if rows[1].Title != "Chauffage" || rows[1].Value != "Gaz" {
		t.Errorf("row 1 = %+v", rows[1])
	}

	if _, err := d.Rows(context.Background(), "ul.missing", "li", "", ""); !errors.Is(err, page.ErrNotFound) {
		t.Errorf("missing container error = %v", err)
	}
}

func TestDocument_Navigate(t *testing.T) {
	fetch := func(ctx context.Context, url string) ([]byte, string, error) {
		return []byte(listingHTML), "https://portal.test/annonce/1?ref=final", nil
	}
	d := New(fetch)
	ctx := context.Background()

	if loc, _ := d.Location(ctx); loc != "about:blank" {
		t.Errorf("initial location = %q", loc)
	}
	if err := d.Navigate(ctx, "https://portal.test/s/1", page.WaitLoad); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if loc, _ := d.Location(ctx); loc != "https://portal.test/annonce/1?ref=final" {
		t.Errorf("location = %q", loc)
	}
	if err := d.WaitAttached(ctx, "main"); err != nil {
		t.Errorf("WaitAttached(main): %v", err)
	}
	clicked, err := d.ClickText(ctx, "button", []string{"Accepter"})
	if clicked != "" || err != nil {
		t.Errorf("ClickText = (%q, %v), want no click", clicked, err)
	}
	doc, err := d.HTML(ctx)
	if err != nil || !strings.Contains(doc, `class="price"`) {
		t.Errorf("HTML = %q, %v", doc, err)
	}
}
