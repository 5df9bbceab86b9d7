// Package reconcile matches enrichment results back to the preview records
// the user selected, by canonical company name.
package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonicalize normalizes a company name for matching:
//  1. Decomposing accented letters and dropping the marks
//  2. Lowercasing
//  3. Keeping only ASCII letters and digits
//
// Whitespace, hyphens and punctuation all disappear, so "Mid-Ohio Forklift"
// and "Mid Ohio Forklift" both become "midohioforklift".
func Canonicalize(name string) string {
	if name == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SameCompany reports whether two names canonicalize to the same non-empty key.
func SameCompany(a, b string) bool {
	ca := Canonicalize(a)
	return ca != "" && ca == Canonicalize(b)
}
