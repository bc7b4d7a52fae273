package fields

import (
	"strings"
	"unicode"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

// Transform names.
const (
	TransformTrim           = "trim"
	TransformCollapseSpaces = "collapse_spaces"
	TransformStripSpaces    = "strip_spaces"
	TransformDigits         = "digits"
	TransformMarkdown       = "markdown"
)

type transformFunc func(string) (string, error)

// mdConverter is goroutine-safe and reused across requests.
var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

var transforms = map[string]transformFunc{
	TransformTrim: func(s string) (string, error) {
		return strings.TrimSpace(s), nil
	},
	TransformCollapseSpaces: func(s string) (string, error) {
		return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " "), nil
	},
	// strip_spaces also removes NBSP and narrow NBSP used as French thousands separators.
	TransformStripSpaces: func(s string) (string, error) {
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) || r == '\u00a0' || r == '\u202f' {
				return -1
			}
			return r
		}, s), nil
	},
	TransformDigits: func(s string) (string, error) {
		return strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, s), nil
	},
	TransformMarkdown: func(s string) (string, error) {
		md, err := mdConverter.ConvertString(s)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(md), nil
	},
}

// KnownTransform reports whether name is a registered transform.
func KnownTransform(name string) bool {
	_, ok := transforms[name]
	return ok
}

// ApplyTransform trims raw and runs the named transform over it.
// Unknown names behave like "trim".
func ApplyTransform(name, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	fn, ok := transforms[name]
	if !ok {
		return raw, nil
	}
	return fn(raw)
}
