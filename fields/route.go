package fields

import (
	"strings"

	"github.com/use-agent/listingd/models"
)

// RouteRows maps rows to the destination fields of routes.
//
// Each row goes to the first route whose Match is a case-insensitive substring
// of its title. A destination is filled at most once: the first matching row wins.
// Destinations listed in skip (already resolved by their own selectors) are never filled.
func RouteRows(routes []Route, rows []models.Row, skip map[string]bool) map[string]string {
	if len(routes) == 0 || len(rows) == 0 {
		return nil
	}
	out := make(map[string]string)
	for _, row := range rows {
		title := strings.ToLower(row.Title)
		if title == "" || strings.TrimSpace(row.Value) == "" {
			continue
		}
		for _, r := range routes {
			if !strings.Contains(title, strings.ToLower(r.Match)) {
				continue
			}
			if _, taken := out[r.Field]; !taken && !skip[r.Field] {
				out[r.Field] = row.Value
			}
			break
		}
	}
	return out
}

// FormatRows renders rows as "title: value" lines. Rows without a title keep only the value.
func FormatRows(rows []models.Row) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		title := strings.TrimSpace(r.Title)
		value := strings.TrimSpace(r.Value)
		switch {
		case title == "" && value == "":
			continue
		case title == "":
			lines = append(lines, value)
		case value == "":
			lines = append(lines, title)
		default:
			lines = append(lines, title+": "+value)
		}
	}
	return strings.Join(lines, "\n")
}

// SplitRowText splits a row's rendered text into title and value on the first line break.
func SplitRowText(text string) models.Row {
	text = strings.TrimSpace(text)
	title, value, found := strings.Cut(text, "\n")
	if !found {
		return models.Row{Title: text}
	}
	return models.Row{Title: strings.TrimSpace(title), Value: strings.TrimSpace(value)}
}
