// Package normalize canonicalizes free-text brand/product/variant strings
// into the stable lowercase ASCII token form used for SKU keys.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NullToken is the literal placeholder used in composite keys when a
// field is absent, so absence is a stable, matchable value.
const NullToken = "null"

var (
	danishLetters = strings.NewReplacer(
		"æ", "ae", "Æ", "ae",
		"ø", "oe", "Ø", "oe",
		"å", "aa", "Å", "aa",
	)
	invalidChars = regexp.MustCompile(`[^a-z0-9\-\s]`)
	whitespace   = regexp.MustCompile(`\s+`)
	multiHyphen  = regexp.MustCompile(`-+`)
)

// Token canonicalizes text into a lowercase hyphenated token.
// Danish letters map to their ASCII digraphs, everything else outside
// [a-z0-9- ] is stripped, whitespace runs collapse to single hyphens.
// Returns "" for input that is empty after canonicalization.
func Token(text string) string {
	// Compose decomposed forms first so å and å canonicalize identically.
	s := norm.NFC.String(strings.TrimSpace(text))
	s = danishLetters.Replace(s)
	s = strings.ToLower(s)
	s = invalidChars.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "-")
	s = multiHyphen.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// TokenOrNull is Token with NullToken substituted for empty results,
// for use in composite key segments.
func TokenOrNull(text string) string {
	if t := Token(text); t != "" {
		return t
	}
	return NullToken
}
