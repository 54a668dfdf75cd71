// Package money holds the shared value semantics for prices and tax rates.
//
// Amounts are shopspring decimals bound to one of the two supported
// currencies. Rounding to the money scale happens at persistence and display
// boundaries, never in the middle of a computation chain.
package money

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places for persisted and displayed amounts.
const Scale = 2

// Currency is one of the two independently priced currencies. There is no
// runtime conversion between them; every price carries a value per currency.
type Currency string

const (
	CZK Currency = "CZK"
	EUR Currency = "EUR"
)

// ErrUnknownCurrency is returned when a currency code is neither CZK nor EUR.
var ErrUnknownCurrency = errors.New("unknown currency")

// ParseCurrency validates a currency code. An empty code defaults to CZK.
func ParseCurrency(code string) (Currency, error) {
	switch Currency(code) {
	case CZK, "":
		return CZK, nil
	case EUR:
		return EUR, nil
	default:
		return "", errors.Wrapf(ErrUnknownCurrency, "%q", code)
	}
}

// Round applies the money scale with half-up semantics. decimal.Round uses
// round-half-away-from-zero, which matches half-up for the non-negative
// amounts handled here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// FloorZero clamps negative amounts to zero.
func FloorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Pair is an amount duplicated per currency. Catalog prices, surcharges and
// coupon fixed values are all stored this way.
type Pair struct {
	CZK decimal.Decimal
	EUR decimal.Decimal
}

// NewPair builds a Pair from string literals. It panics on malformed input
// and is intended for tests and seed data.
func NewPair(czk, eur string) Pair {
	return Pair{CZK: decimal.RequireFromString(czk), EUR: decimal.RequireFromString(eur)}
}

// In returns the amount for the given currency.
func (p Pair) In(c Currency) decimal.Decimal {
	if c == EUR {
		return p.EUR
	}
	return p.CZK
}

// IsZero reports whether both sides of the pair are zero.
func (p Pair) IsZero() bool {
	return p.CZK.IsZero() && p.EUR.IsZero()
}
