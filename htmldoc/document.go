// Package htmldoc implements page.Page over a statically parsed HTML document.
// It backs the "http" fetch mode, where no JavaScript runs and nothing can be clicked.
package htmldoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/listingd/fields"
	"github.com/use-agent/listingd/models"
	"github.com/use-agent/listingd/page"
	"golang.org/x/net/html"
)

// FetchFunc downloads a URL and returns the body and the final URL after redirects.
type FetchFunc func(ctx context.Context, url string) ([]byte, string, error)

// Document is a page.Page backed by goquery. It is not safe for concurrent use.
type Document struct {
	fetch FetchFunc
	doc   *goquery.Document
	url   string
}

var _ page.Page = (*Document)(nil)

// New returns an empty Document that loads pages with fetch.
func New(fetch FetchFunc) *Document {
	return &Document{fetch: fetch, url: "about:blank"}
}

// FromHTML returns a Document already loaded with rawHTML at url.
func FromHTML(rawHTML, url string) (*Document, error) {
	d := &Document{url: url}
	if err := d.load([]byte(rawHTML)); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) load(body []byte) error {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("htmldoc: parse: %w", err)
	}
	d.doc = goquery.NewDocumentFromNode(root)
	return nil
}

// Navigate fetches url. The wait condition is irrelevant for a static document.
func (d *Document) Navigate(ctx context.Context, url, _ string) error {
	if d.fetch == nil {
		return errors.New("htmldoc: no fetcher configured")
	}
	body, final, err := d.fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := d.load(body); err != nil {
		return err
	}
	d.url = final
	return nil
}

// WaitAttached checks once: a static document never changes.
func (d *Document) WaitAttached(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", page.ErrNotFound, selector)
	}
	return nil
}

// Read returns the text content or inner HTML of the first match.
func (d *Document) Read(ctx context.Context, selector, source string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sel := d.find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%w: %s", page.ErrNotFound, selector)
	}
	if source == fields.SourceHTML {
		return sel.Html()
	}
	return sel.Text(), nil
}

// Rows extracts title/value pairs from the rows of the first container match.
func (d *Document) Rows(ctx context.Context, container, row, title, value string) ([]models.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := d.find(container).First()
	if c.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", page.ErrNotFound, container)
	}

	var rows []models.Row
	c.Find(row).Each(func(_ int, s *goquery.Selection) {
		var r models.Row
		if title != "" {
			r.Title = strings.TrimSpace(s.Find(title).First().Text())
		}
		if value != "" {
			r.Value = strings.TrimSpace(s.Find(value).First().Text())
		}
		if r.Title == "" && r.Value == "" {
			r = fields.SplitRowText(blockText(s))
		}
		rows = append(rows, r)
	})
	return rows, nil
}

// ClickText never clicks: there is no script runtime behind a static document.
func (d *Document) ClickText(ctx context.Context, _ string, _ []string) (string, error) {
	return "", ctx.Err()
}

// Location returns the final URL of the last fetch.
func (d *Document) Location(ctx context.Context) (string, error) {
	return d.url, ctx.Err()
}

// HTML returns the serialized document.
func (d *Document) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.doc == nil {
		return "", nil
	}
	return goquery.OuterHtml(d.doc.Selection)
}

func (d *Document) find(selector string) *goquery.Selection {
	if d.doc == nil {
		return &goquery.Selection{}
	}
	return d.doc.Find(selector)
}

// blockText approximates innerText: text of direct element children joined by
// line breaks, or the plain text when the row has no element children.
func blockText(s *goquery.Selection) string {
	children := s.Children()
	if children.Length() == 0 {
		return s.Text()
	}
	parts := make([]string, 0, children.Length())
	children.Each(func(_ int, c *goquery.Selection) {
		if t := strings.TrimSpace(c.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n")
}
