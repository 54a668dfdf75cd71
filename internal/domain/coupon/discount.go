package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/money"
)

var hundred = decimal.NewFromInt(100)

// DiscountAmount computes the price discount a validated coupon grants on
// the given pre-tax subtotal. Free-shipping-only coupons grant no price
// discount; their benefit is applied later when shipping cost is added. The
// result is capped at the subtotal and never negative.
func DiscountAmount(c *Coupon, subtotal decimal.Decimal, cur money.Currency) decimal.Decimal {
	if c == nil || subtotal.Sign() <= 0 || c.FreeShippingOnly() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	if c.Percentage {
		if c.Value.Sign() <= 0 {
			return decimal.Zero
		}
		amount = subtotal.Mul(c.Value).Div(hundred)
	} else {
		amount = c.FixedValue.In(cur)
		if amount.Sign() <= 0 {
			return decimal.Zero
		}
	}

	return money.Round(decimal.Min(amount, subtotal))
}
