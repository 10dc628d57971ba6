// Package dedup decides whether a newly extracted question is the same as
// one already stored. Comparison runs on normalized text: an exact pass on
// the normalized form, a fuzzy pass using the Jaccard index over word sets,
// and an optional pass that asks an external oracle for pairs of questions
// with the same meaning.
package dedup

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes question text for comparison: lowercase, drop
// every rune that is neither a letter, a digit nor whitespace, then collapse
// whitespace runs into single spaces. Normalize is total and idempotent.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	pendingSpace := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
