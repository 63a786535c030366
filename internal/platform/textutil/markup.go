package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// StripMarkup removes every HTML element from value and returns trimmed plain text.
func StripMarkup(value string) string {
	if value == "" {
		return ""
	}
	sanitized := strictPolicy.Sanitize(value)
	return strings.TrimSpace(html.UnescapeString(sanitized))
}

// StripMarkupPtr applies StripMarkup to an optional value. Blank results become nil.
func StripMarkupPtr(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := StripMarkup(*value)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
