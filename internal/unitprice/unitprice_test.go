package unitprice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		price     float64
		deposit   float64
		amount    float64
		unit      string
		pack      int
		wantValue float64
		wantUnit  string
		wantOK    bool
	}{
		{"ml to per liter", 20, 0, 1000, "ml", 1, 20.00, UnitPerLiter, true},
		{"kg over pack total", 36, 0, 2, "kg", 3, 6.00, UnitPerKilo, true},
		{"cl to per liter", 10, 0, 50, "cl", 1, 20.00, UnitPerLiter, true},
		{"dl to per liter", 5, 0, 5, "dl", 1, 10.00, UnitPerLiter, true},
		{"liter direct", 30, 0, 1.5, "l", 1, 20.00, UnitPerLiter, true},
		{"gram to per kilo", 25, 0, 500, "g", 1, 50.00, UnitPerKilo, true},
		{"pieces", 24, 0, 6, "stk", 1, 4.00, UnitPerPiece, true},
		{"pak counts as pieces", 12, 0, 4, "pak", 1, 3.00, UnitPerPiece, true},
		{"deposit subtracted", 21, 1, 1000, "ml", 1, 20.00, UnitPerLiter, true},
		{"deposit exceeding price ignored", 15, 20, 1, "l", 1, 15.00, UnitPerLiter, true},
		{"unit case and spaces", 20, 0, 1, " KG ", 1, 20.00, UnitPerKilo, true},
		{"pack zero treated as one", 20, 0, 1, "kg", 0, 20.00, UnitPerKilo, true},
		{"rounding", 10, 0, 3, "stk", 1, 3.33, UnitPerPiece, true},
		{"unknown unit", 20, 0, 1, "unknown_unit", 1, 0, "", false},
		{"missing price", 0, 0, 1000, "ml", 1, 0, "", false},
		{"negative price", -5, 0, 1000, "ml", 1, 0, "", false},
		{"missing amount", 20, 0, 0, "ml", 1, 0, "", false},
		{"blank unit", 20, 0, 1000, "", 1, 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, unit, ok := Calculate(tt.price, tt.deposit, tt.amount, tt.unit, tt.pack)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantValue, value)
			assert.Equal(t, tt.wantUnit, unit)
		})
	}
}

func TestPriceExclDeposit(t *testing.T) {
	assert.Equal(t, 15.0, PriceExclDeposit(15, 0))
	assert.Equal(t, 15.0, PriceExclDeposit(15, -1))
	assert.Equal(t, 14.0, PriceExclDeposit(15, 1))
	assert.Equal(t, 13.5, PriceExclDeposit(15, 1.5))
	// Deposit exceeding the price is ignored, raw price preserved.
	assert.Equal(t, 15.0, PriceExclDeposit(15, 20))
	assert.Equal(t, 15.0, PriceExclDeposit(15, 15))
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		value     float64
		unit      string
		wantValue float64
		wantUnit  string
	}{
		{1, "l", 1000, "ml"},
		{2, "dl", 200, "ml"},
		{33, "cl", 330, "ml"},
		{330, "ml", 330, "ml"},
		{1.5, "KG", 1500, "g"},
		{500, "g", 500, "g"},
		{6, "stk", 6, "stk"},
		{3, "wat", 3, "wat"},
	}
	for _, tt := range tests {
		v, u := NormalizeAmount(tt.value, tt.unit)
		assert.Equal(t, tt.wantValue, v, "%g %s", tt.value, tt.unit)
		assert.Equal(t, tt.wantUnit, u)
	}
}

func TestEstimateDeposit(t *testing.T) {
	// Cans always get A-pant.
	d, ok := EstimateDeposit("CAN", 330, "ml", 6)
	require.True(t, ok)
	assert.Equal(t, 6.0, d)

	// Small bottle: A-pant.
	d, ok = EstimateDeposit("bottle", 500, "ml", 1)
	require.True(t, ok)
	assert.Equal(t, 1.0, d)

	// Large bottle (>= 1 L): C-pant.
	d, ok = EstimateDeposit("BOTTLE", 1.5, "l", 1)
	require.True(t, ok)
	assert.Equal(t, 3.0, d)

	// Non-deposit containers.
	_, ok = EstimateDeposit("TRAY", 500, "g", 1)
	assert.False(t, ok)
	_, ok = EstimateDeposit("", 0, "", 0)
	assert.False(t, ok)
}
