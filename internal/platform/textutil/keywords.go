package textutil

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NormalizeKeyword applies NFKC normalisation and case folding, then collapses inner whitespace.
func NormalizeKeyword(value string) string {
	folded := folder.String(norm.NFKC.String(value))
	return strings.Join(strings.Fields(folded), " ")
}

// Keywords builds the de-duplicated, sorted keyword set for the provided values. Each value
// contributes its whole normalised form plus the tokens obtained by splitting on whitespace and
// punctuation.
func Keywords(values ...string) []string {
	seen := make(map[string]struct{})
	for _, value := range values {
		normalized := NormalizeKeyword(value)
		if normalized == "" {
			continue
		}
		seen[normalized] = struct{}{}
		tokens := strings.FieldsFunc(normalized, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		for _, token := range tokens {
			seen[token] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for keyword := range seen {
		out = append(out, keyword)
	}
	slices.Sort(out)
	return out
}
