// Package coupon implements coupon definitions, redemption validation and
// discount computation.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/money"
)

// ErrNotFound is returned when no coupon matches a code or id.
var ErrNotFound = errors.New("coupon not found")

// Coupon is a discount voucher. A coupon must define at least one concrete
// benefit: a nonzero percentage, a nonzero fixed amount for at least one
// currency, or free shipping — percentage/fixed may combine with free
// shipping. The benefit invariant is enforced at create/update time, not at
// redemption.
type Coupon struct {
	ID          int64
	Code        string // unique, matched case-insensitively
	Name        string
	Description string

	Percentage   bool            // true: Value is a percentage; false: FixedValue applies
	Value        decimal.Decimal // percentage points, e.g. 10 for 10 %
	FixedValue   money.Pair
	FreeShipping bool

	// MinOrderValue constrains redemption per currency; a zero side leaves
	// that currency unconstrained.
	MinOrderValue money.Pair

	// Validity window; a nil bound is open-ended on that side.
	StartDate      *time.Time
	ExpirationDate *time.Time

	UsageLimit            int // 0 = unlimited
	UsageLimitPerCustomer int // 0 = unlimited
	UsedTimes             int

	Active bool
}

// FreeShippingOnly reports whether the coupon grants no price discount,
// only free shipping.
func (c *Coupon) FreeShippingOnly() bool {
	if c.Percentage {
		return c.FreeShipping && c.Value.Sign() <= 0
	}
	return c.FreeShipping && c.FixedValue.IsZero()
}

// DefinitionError is a field-level validation failure on coupon create/update.
type DefinitionError struct {
	Field  string
	Reason string
}

func (e *DefinitionError) Error() string {
	return "invalid coupon: " + e.Field + ": " + e.Reason
}

// ValidateDefinition enforces the creation/update invariants: a code is
// required and the coupon must define at least one concrete benefit.
func (c *Coupon) ValidateDefinition() error {
	if c.Code == "" {
		return &DefinitionError{Field: "code", Reason: "code is required"}
	}
	if c.Percentage {
		if c.Value.Sign() < 0 || c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return &DefinitionError{Field: "value", Reason: "percentage must be between 0 and 100"}
		}
	}
	hasBenefit := c.FreeShipping ||
		(c.Percentage && c.Value.Sign() > 0) ||
		(!c.Percentage && !c.FixedValue.IsZero())
	if !hasBenefit {
		return &DefinitionError{Field: "value", Reason: "coupon must grant a discount or free shipping"}
	}
	if c.StartDate != nil && c.ExpirationDate != nil && c.ExpirationDate.Before(*c.StartDate) {
		return &DefinitionError{Field: "expirationDate", Reason: "expiration precedes start"}
	}
	return nil
}

// Repository provides coupon persistence. Code lookups are
// case-insensitive; per-customer usage is counted against orders, so the
// count survives coupon edits.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	FindByID(ctx context.Context, id int64) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Save(ctx context.Context, c *Coupon) error
	IncrementUsage(ctx context.Context, id int64) error
	CountCustomerUsage(ctx context.Context, customerID, couponID int64) (int, error)
}
