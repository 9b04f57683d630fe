// Package match implements the approximate text matching used by the
// offer search surface.
package match

import "strings"

// DefaultThreshold is the maximum edit distance accepted for a word match.
const DefaultThreshold = 2

// shortQueryLen is the query length at or below which the threshold is
// tightened to 1, so short queries do not over-match unrelated words.
const shortQueryLen = 4

// wordSeparators split offer text into candidate words.
var wordSeparators = func(r rune) bool {
	switch r {
	case ' ', ',', '-', '/', '(', ')':
		return true
	}
	return false
}

// IsFuzzyMatch reports whether query approximately matches text.
// A case-insensitive substring hit succeeds immediately; otherwise each
// word of text sharing the query's first letter is compared by edit
// distance against the threshold.
func IsFuzzyMatch(text, query string, threshold int) bool {
	if text == "" || query == "" {
		return false
	}

	textLower := strings.ToLower(text)
	queryLower := strings.ToLower(query)

	if strings.Contains(textLower, queryLower) {
		return true
	}

	if len([]rune(queryLower)) <= shortQueryLen && threshold > 1 {
		threshold = 1
	}

	queryRunes := []rune(queryLower)
	for _, word := range strings.FieldsFunc(textLower, wordSeparators) {
		w := []rune(word)
		if len(w) < 2 || w[0] != queryRunes[0] {
			continue
		}
		if levenshtein(w, queryRunes) <= threshold {
			return true
		}
	}
	return false
}

// Levenshtein computes the case-insensitive edit distance between two
// strings: substitutions, insertions and deletions all cost 1.
func Levenshtein(a, b string) int {
	return levenshtein([]rune(strings.ToLower(a)), []rune(strings.ToLower(b)))
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j-1]+cost, prev[j]+1, curr[j-1]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
