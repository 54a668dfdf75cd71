package money

import "github.com/shopspring/decimal"

// TaxRate is an immutable rate descriptor referenced by id from products and
// order lines. When ReverseCharge is set the computed tax is always zero and
// the liability shifts to the buyer.
type TaxRate struct {
	ID            int64
	Name          string
	Rate          decimal.Decimal // fraction, e.g. 0.21 for 21 %
	ReverseCharge bool
}

// TaxAmount computes the tax for a net base amount, rounded to the money
// scale. Reverse-charge rates always yield zero.
func (t TaxRate) TaxAmount(base decimal.Decimal) decimal.Decimal {
	if t.ReverseCharge || t.Rate.Sign() <= 0 || base.IsZero() {
		return decimal.Zero
	}
	return Round(base.Mul(t.Rate))
}

// EffectiveRate is the rate used for grouping in tax breakdowns: zero for
// reverse-charge regardless of the nominal rate.
func (t TaxRate) EffectiveRate() decimal.Decimal {
	if t.ReverseCharge {
		return decimal.Zero
	}
	return t.Rate
}
