package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"netto", "nettp", 1},
		{"netto", "netto", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"Cola", "cola", 0},
		{"mælk", "melk", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestIsFuzzyMatch(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		query     string
		threshold int
		want      bool
	}{
		{"substring fast path", "Coca Cola 1.5L", "cola", 2, true},
		{"substring case insensitive", "ARLA LETMÆLK", "letmælk", 2, true},
		{"typo within threshold", "Netto tilbudsavis", "netoo", 2, true},
		{"short query tightened to 1", "brød", "brun", 2, false},
		{"short query distance 1 still matches", "brod i kurven", "brød", 2, true},
		{"first letter must match", "cola", "kola", 2, false},
		{"hyphen splits words", "Coca-Cola Zero", "zero", 2, true},
		{"slash splits words", "juice/saft tilbud", "saft", 1, true},
		{"parens split words", "Chips (Original)", "original", 2, true},
		{"no match", "Hakket oksekød", "yoghurt", 2, false},
		{"empty query", "Cola", "", 2, false},
		{"empty text", "", "cola", 2, false},
		{"single letter words skipped", "a b c", "ab", 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFuzzyMatch(tt.text, tt.query, tt.threshold))
		})
	}
}
