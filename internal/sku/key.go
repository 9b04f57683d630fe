// Package sku generates the deterministic composite keys used for offer
// deduplication and as storage row keys.
//
// Key format:
//
//	{brand}|{product}|{variant}|{container}|{amount}
//
// Amounts are normalized to base units (ml for volume, g for weight) so
// that 1 L and 1000 ml of the same product produce identical keys.
// Pack count is excluded so pack sizes remain comparable.
package sku

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dealscanner/deals-cli/internal/normalize"
)

// fallbackKeyLen is the hex length of content-hash row keys used when a
// SKU key cannot be derived.
const fallbackKeyLen = 16

// unitConversions maps reported amount units to (base unit, multiplier).
var unitConversions = map[string]struct {
	unit   string
	factor float64
}{
	"l":        {"ml", 1000},
	"liter":    {"ml", 1000},
	"dl":       {"ml", 100},
	"cl":       {"ml", 10},
	"kg":       {"g", 1000},
	"kilo":     {"g", 1000},
	"kilogram": {"g", 1000},
}

// Generate builds the deterministic SKU key. Product identity is
// mandatory: an empty product after normalization returns "". Every
// other missing field degrades to the literal "null" segment.
func Generate(brand, product, variant, containerType string, amountValue float64, amountUnit string) string {
	productTok := normalize.Token(product)
	if productTok == "" {
		return ""
	}

	parts := []string{
		normalize.TokenOrNull(brand),
		productTok,
		normalize.TokenOrNull(variant),
		normalize.TokenOrNull(containerType),
		FormatAmount(amountValue, amountUnit),
	}
	return strings.Join(parts, "|")
}

// FormatAmount renders an amount segment as "{integer}{unit}" with
// volume/weight units converted to their base unit first. A missing
// value or unit yields the "null" segment.
func FormatAmount(value float64, unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if value <= 0 || u == "" {
		return normalize.NullToken
	}
	if conv, ok := unitConversions[u]; ok {
		value *= conv.factor
		u = conv.unit
	}
	return fmt.Sprintf("%d%s", int64(math.Round(value)), u)
}

// FallbackRowKey derives a deterministic row key from the raw product
// text and price when no SKU key can be generated. The key is the first
// 16 hex characters of SHA-256 over "{text}|{price}".
func FallbackRowKey(productTextRaw string, priceValue float64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%.2f", productTextRaw, priceValue))
	return hex.EncodeToString(sum[:])[:fallbackKeyLen]
}

// Parts holds the decomposed segments of a SKU key.
type Parts struct {
	Brand       string
	Product     string
	Variant     string
	Container   string
	AmountValue int64
	AmountUnit  string
}

var amountSegment = regexp.MustCompile(`^(\d+)([a-z]+)$`)

// Parse splits a SKU key back into its components. Returns false when
// the key does not have exactly five segments.
func Parse(key string) (Parts, bool) {
	segs := strings.Split(key, "|")
	if len(segs) != 5 {
		return Parts{}, false
	}

	blank := func(s string) string {
		if s == normalize.NullToken {
			return ""
		}
		return s
	}
	p := Parts{
		Brand:     blank(segs[0]),
		Product:   blank(segs[1]),
		Variant:   blank(segs[2]),
		Container: blank(segs[3]),
	}
	if m := amountSegment.FindStringSubmatch(blank(segs[4])); m != nil {
		p.AmountValue, _ = strconv.ParseInt(m[1], 10, 64)
		p.AmountUnit = m[2]
	}
	return p, true
}

// Match reports whether two SKU keys identify the same product.
func Match(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
