package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// Sanitizer strips markup from customer-supplied text and normalises it to NFKC so that
// visually identical inputs compare equal.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer constructs a Sanitizer using a strict policy that removes every HTML element.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize returns value without markup or control characters, NFKC-normalised, with runs of
// whitespace collapsed to a single space.
func (s *Sanitizer) Sanitize(value string) string {
	if value == "" {
		return ""
	}
	cleaned := html.UnescapeString(s.policy.Sanitize(value))
	cleaned = norm.NFKC.String(cleaned)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

// CompactAttributes trims keys and values and drops entries whose key or value is empty.
// It returns nil when nothing remains.
func CompactAttributes(values map[string]string) map[string]string {
	var out map[string]string
	for key, value := range values {
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(values))
		}
		out[key] = value
	}
	return out
}
