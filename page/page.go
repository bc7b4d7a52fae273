// Package page defines the small set of document operations the extraction
// pipeline needs, so the same stages run against a live browser tab or a
// statically parsed HTML document.
package page

import (
	"context"
	"errors"
	"strings"

	"github.com/use-agent/listingd/models"
)

// Wait conditions for Navigate.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
)

// ErrNotFound is returned when a selector matches no element.
var ErrNotFound = errors.New("element not found")

// Page is one loaded document.
//
// Implementations bound every call by ctx and return ErrNotFound (possibly
// wrapped) when a selector matches nothing.
type Page interface {
	// Navigate loads url and waits for the given condition.
	Navigate(ctx context.Context, url, waitUntil string) error

	// WaitAttached blocks until selector matches an element in the DOM.
	WaitAttached(ctx context.Context, selector string) error

	// Read returns the rendered text (source "text") or inner HTML (source
	// "html") of the first element matching selector. It does not wait.
	Read(ctx context.Context, selector, source string) (string, error)

	// Rows returns the title/value rows inside the first element matching container.
	Rows(ctx context.Context, container, row, title, value string) ([]models.Row, error)

	// ClickText clicks the first visible element matching selector whose text
	// contains one of texts (case-insensitive, texts checked in order).
	// It returns the matched text, or "" when nothing was clicked.
	ClickText(ctx context.Context, selector string, texts []string) (string, error)

	// Location returns the current document URL.
	Location(ctx context.Context) (string, error)

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
}

// ContainsFold reports whether s contains substr, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
