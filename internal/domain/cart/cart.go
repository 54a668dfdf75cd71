package cart

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/money"
)

// ErrInvalidQuantity is returned when a line is added with quantity <= 0.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// ItemNotFoundError indicates no cart line matches the given fingerprint.
type ItemNotFoundError struct {
	Fingerprint string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("cart item %s not found", e.Fingerprint)
}

// AppliedCoupon records the single coupon slot on a cart: the code the
// shopper entered and the resolved coupon id.
type AppliedCoupon struct {
	CouponID int64  `json:"couponId"`
	Code     string `json:"code"`
}

// Cart is a session-owned ordered list of lines plus at most one applied
// coupon. It is bound to one session; the hosting request model serializes
// access per session, so the cart itself carries no locking. All lines were
// priced against the cart's active currency when inserted, so totals for
// that currency are consistent.
type Cart struct {
	Currency money.Currency `json:"currency"`
	Lines    []Item         `json:"lines"`
	Coupon   *AppliedCoupon `json:"coupon,omitempty"`
}

// New returns an empty cart for the given currency.
func New(c money.Currency) *Cart {
	return &Cart{Currency: c}
}

// AddItem inserts a line or, when an existing line has the same
// fingerprint, merges by incrementing its quantity. The merged line keeps
// the price snapshot of the incoming item.
func (c *Cart) AddItem(item Item) (string, error) {
	if item.Quantity <= 0 {
		return "", ErrInvalidQuantity
	}
	fp := item.Fingerprint()
	for i := range c.Lines {
		if c.Lines[i].Fingerprint() == fp {
			c.Lines[i].Quantity += item.Quantity
			c.Lines[i].UnitPrice = item.UnitPrice
			return fp, nil
		}
	}
	c.Lines = append(c.Lines, item)
	return fp, nil
}

// UpdateQuantity sets the quantity of the line matching fingerprint.
// Quantity 0 removes the line; negative quantities are rejected.
func (c *Cart) UpdateQuantity(fingerprint string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].Fingerprint() != fingerprint {
			continue
		}
		if quantity == 0 {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		} else {
			c.Lines[i].Quantity = quantity
		}
		return nil
	}
	return &ItemNotFoundError{Fingerprint: fingerprint}
}

// RemoveItem deletes the line matching fingerprint.
func (c *Cart) RemoveItem(fingerprint string) error {
	return c.UpdateQuantity(fingerprint, 0)
}

// ApplyCoupon fills the single coupon slot. Applying a second coupon
// replaces the first; coupons do not stack.
func (c *Cart) ApplyCoupon(couponID int64, code string) {
	c.Coupon = &AppliedCoupon{CouponID: couponID, Code: code}
}

// RemoveCoupon clears the coupon slot.
func (c *Cart) RemoveCoupon() {
	c.Coupon = nil
}

// Clear empties the cart, dropping lines and the coupon.
func (c *Cart) Clear() {
	c.Lines = nil
	c.Coupon = nil
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// TotalQuantity sums the quantities across all lines.
func (c *Cart) TotalQuantity() int {
	total := 0
	for i := range c.Lines {
		total += c.Lines[i].Quantity
	}
	return total
}

// HasCustomItem reports whether any line is a custom-configured product,
// which makes the order deposit-bearing at checkout.
func (c *Cart) HasCustomItem() bool {
	for i := range c.Lines {
		if c.Lines[i].Custom {
			return true
		}
	}
	return false
}

// Subtotal is the sum of line totals, pre-discount and pre-tax.
func (c *Cart) Subtotal(cur money.Currency) decimal.Decimal {
	sum := decimal.Zero
	for i := range c.Lines {
		sum = sum.Add(c.Lines[i].LineTotal(cur))
	}
	return money.Round(sum)
}

// TaxGroup is one entry of the tax breakdown: all lines sharing an
// effective rate, with the group subtotal and tax rounded per group.
type TaxGroup struct {
	Rate decimal.Decimal
	Base decimal.Decimal
	Tax  decimal.Decimal
}

// TaxBreakdown groups lines by effective tax rate and computes the tax per
// group. Reverse-charge lines land in the zero-rate group and contribute no
// tax. Groups are ordered by ascending rate.
func (c *Cart) TaxBreakdown(cur money.Currency) []TaxGroup {
	groups := make(map[string]*TaxGroup)
	for i := range c.Lines {
		it := &c.Lines[i]
		rate := money.TaxRate{Rate: it.TaxRate, ReverseCharge: it.ReverseCharge}.EffectiveRate()
		key := rate.StringFixed(money.Scale)
		g, ok := groups[key]
		if !ok {
			g = &TaxGroup{Rate: rate}
			groups[key] = g
		}
		g.Base = g.Base.Add(it.LineTotal(cur))
	}

	out := make([]TaxGroup, 0, len(groups))
	for _, g := range groups {
		g.Tax = money.Round(g.Base.Mul(g.Rate))
		out = append(out, *g)
	}
	sortTaxGroups(out)
	return out
}

func sortTaxGroups(groups []TaxGroup) {
	for i := 1; i < len(groups); i++ {
		for j := i; j > 0 && groups[j].Rate.LessThan(groups[j-1].Rate); j-- {
			groups[j], groups[j-1] = groups[j-1], groups[j]
		}
	}
}

// TotalTax sums the per-group tax amounts.
func (c *Cart) TotalTax(cur money.Currency) decimal.Decimal {
	sum := decimal.Zero
	for _, g := range c.TaxBreakdown(cur) {
		sum = sum.Add(g.Tax)
	}
	return sum
}

// CapDiscount clamps a coupon discount so it never drives the subtotal
// below zero.
func (c *Cart) CapDiscount(discount decimal.Decimal, cur money.Currency) decimal.Decimal {
	return money.Round(decimal.Min(money.FloorZero(discount), c.Subtotal(cur)))
}

// TotalBeforeShipping is subtotal minus the (already capped) discount plus
// total tax, floored at zero.
func (c *Cart) TotalBeforeShipping(discount decimal.Decimal, cur money.Currency) decimal.Decimal {
	total := c.Subtotal(cur).Sub(c.CapDiscount(discount, cur)).Add(c.TotalTax(cur))
	return money.Round(money.FloorZero(total))
}
