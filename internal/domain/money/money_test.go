package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		in      string
		want    Currency
		wantErr bool
	}{
		{"CZK", CZK, false},
		{"EUR", EUR, false},
		{"", CZK, false},
		{"USD", "", true},
		{"czk", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCurrency(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownCurrency, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestRound_HalfUp(t *testing.T) {
	assert.Equal(t, "10.35", Round(decimal.RequireFromString("10.345")).StringFixed(2))
	assert.Equal(t, "10.34", Round(decimal.RequireFromString("10.344")).StringFixed(2))
}

func TestTaxRate_TaxAmount(t *testing.T) {
	base := decimal.RequireFromString("1000.00")

	standard := TaxRate{ID: 1, Rate: decimal.RequireFromString("0.21")}
	assert.True(t, standard.TaxAmount(base).Equal(decimal.RequireFromString("210.00")))

	reverse := TaxRate{ID: 2, Rate: decimal.RequireFromString("0.21"), ReverseCharge: true}
	assert.True(t, reverse.TaxAmount(base).IsZero())
	assert.True(t, reverse.EffectiveRate().IsZero())

	zero := TaxRate{ID: 3, Rate: decimal.Zero}
	assert.True(t, zero.TaxAmount(base).IsZero())
}

func TestPair_In(t *testing.T) {
	p := NewPair("100.00", "4.00")
	assert.True(t, p.In(CZK).Equal(decimal.RequireFromString("100.00")))
	assert.True(t, p.In(EUR).Equal(decimal.RequireFromString("4.00")))
	assert.False(t, p.IsZero())
	assert.True(t, Pair{}.IsZero())
}
