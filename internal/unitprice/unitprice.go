// Package unitprice converts offer prices into comparable per-liter,
// per-kilogram, or per-item prices, with Danish deposit (pant) handling.
package unitprice

import (
	"math"
	"strings"
)

// Comparable unit price denominations.
const (
	UnitPerLiter = "kr/L"
	UnitPerKilo  = "kr/kg"
	UnitPerPiece = "kr/stk"
)

// unitTable maps a reported amount unit to the divisor that converts
// the total amount into the comparable base, and the resulting unit.
var unitTable = map[string]struct {
	divisor float64
	unit    string
}{
	"ml":         {1000, UnitPerLiter},
	"milliliter": {1000, UnitPerLiter},
	"cl":         {100, UnitPerLiter},
	"dl":         {10, UnitPerLiter},
	"l":          {1, UnitPerLiter},
	"liter":      {1, UnitPerLiter},
	"g":          {1000, UnitPerKilo},
	"gram":       {1000, UnitPerKilo},
	"kg":         {1, UnitPerKilo},
	"kilo":       {1, UnitPerKilo},
	"kilogram":   {1, UnitPerKilo},
	"stk":        {1, UnitPerPiece},
	"stk.":       {1, UnitPerPiece},
	"pk":         {1, UnitPerPiece},
	"pak":        {1, UnitPerPiece},
	"pakke":      {1, UnitPerPiece},
}

// Calculate computes the comparable unit price for an offer.
// Returns ok=false when the price or amount is missing/non-positive,
// the unit is blank, or the unit is not in the supported table — these
// are valid "cannot compute" outcomes, not errors.
//
// A deposit that would erase or invert the price is ignored and the
// raw price used instead.
func Calculate(price, deposit, netAmountValue float64, netAmountUnit string, packCount int) (value float64, unit string, ok bool) {
	if price <= 0 || netAmountValue <= 0 {
		return 0, "", false
	}
	u := strings.ToLower(strings.TrimSpace(netAmountUnit))
	if u == "" {
		return 0, "", false
	}
	conv, supported := unitTable[u]
	if !supported {
		return 0, "", false
	}

	effective := price - deposit
	if effective <= 0 {
		effective = price
	}

	packs := packCount
	if packs < 1 {
		packs = 1
	}
	total := netAmountValue * float64(packs)

	return round2(effective / (total / conv.divisor)), conv.unit, true
}

// PriceExclDeposit returns the price with the deposit removed, rounded
// to two decimals. A missing/non-positive deposit, or one exceeding the
// price, leaves the raw price unchanged.
func PriceExclDeposit(price, deposit float64) float64 {
	if deposit <= 0 {
		return price
	}
	if excl := price - deposit; excl > 0 {
		return round2(excl)
	}
	return price
}

// NormalizeAmount converts an amount to its base unit: ml for volume,
// g for weight, stk for count. Unknown units pass through unchanged.
func NormalizeAmount(value float64, unit string) (float64, string) {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch u {
	case "l", "liter":
		return value * 1000, "ml"
	case "dl":
		return value * 100, "ml"
	case "cl":
		return value * 10, "ml"
	case "ml", "milliliter":
		return value, "ml"
	case "kg", "kilo", "kilogram":
		return value * 1000, "g"
	case "g", "gram":
		return value, "g"
	case "stk", "stk.", "pk", "pak", "pakke":
		return value, "stk"
	}
	return value, unit
}

// EstimateDeposit estimates the total Danish deposit (pant) for a pack
// based on container type and size. Returns ok=false for containers
// that carry no deposit.
//
// Rates: A-pant 1.00 kr for cans and small bottles, C-pant 3.00 kr for
// bottles of one liter or more.
func EstimateDeposit(containerType string, netAmountValue float64, netAmountUnit string, packCount int) (float64, bool) {
	container := strings.ToUpper(strings.TrimSpace(containerType))
	if container != "CAN" && container != "BOTTLE" {
		return 0, false
	}

	perItem := 1.0
	if container == "BOTTLE" && netAmountValue > 0 {
		ml, unit := NormalizeAmount(netAmountValue, netAmountUnit)
		if unit == "ml" && ml >= 1000 {
			perItem = 3.0
		}
	}

	items := packCount
	if items < 1 {
		items = 1
	}
	return round2(perItem * float64(items)), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
