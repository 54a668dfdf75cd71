package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/money"
)

// RejectionReason identifies which redemption check failed, for user-facing
// messaging.
type RejectionReason string

const (
	ReasonInactive      RejectionReason = "inactive"
	ReasonNotStarted    RejectionReason = "not_started"
	ReasonExpired       RejectionReason = "expired"
	ReasonBelowMinimum  RejectionReason = "below_minimum"
	ReasonUsageLimit    RejectionReason = "usage_limit_reached"
	ReasonCustomerLimit RejectionReason = "customer_limit_reached"
)

// RejectionError reports why a coupon cannot be redeemed.
type RejectionError struct {
	Code   string
	Reason RejectionReason
}

func (e *RejectionError) Error() string {
	return "coupon " + e.Code + " rejected: " + string(e.Reason)
}

// Redeemer identifies who is redeeming. Guests carry a session surrogate
// instead of a customer id; per-customer limits are only enforced for
// registered customers (anonymous abuse prevention is a known gap).
type Redeemer struct {
	CustomerID int64
	Guest      bool
}

// Validator checks a coupon against the redemption rules in a fixed order,
// short-circuiting on the first failure so each rejection carries a single
// distinct reason.
type Validator struct {
	coupons Repository
	now     func() time.Time
}

// NewValidator creates a Validator backed by the given repository.
func NewValidator(coupons Repository) *Validator {
	return &Validator{coupons: coupons, now: time.Now}
}

// Validate runs the checks in order: active flag, validity window,
// per-currency minimum order value, global usage limit, per-customer usage
// limit. It returns nil when the coupon may be redeemed.
func (v *Validator) Validate(ctx context.Context, c *Coupon, subtotal decimal.Decimal, cur money.Currency, who Redeemer) error {
	if !c.Active {
		return &RejectionError{Code: c.Code, Reason: ReasonInactive}
	}

	now := v.now()
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return &RejectionError{Code: c.Code, Reason: ReasonNotStarted}
	}
	if c.ExpirationDate != nil && now.After(*c.ExpirationDate) {
		return &RejectionError{Code: c.Code, Reason: ReasonExpired}
	}

	// A minimum may be configured for one currency only; the other stays
	// unconstrained.
	if min := c.MinOrderValue.In(cur); min.Sign() > 0 && subtotal.LessThan(min) {
		return &RejectionError{Code: c.Code, Reason: ReasonBelowMinimum}
	}

	if c.UsageLimit > 0 && c.UsedTimes >= c.UsageLimit {
		return &RejectionError{Code: c.Code, Reason: ReasonUsageLimit}
	}

	if c.UsageLimitPerCustomer > 0 && !who.Guest && who.CustomerID != 0 {
		used, err := v.coupons.CountCustomerUsage(ctx, who.CustomerID, c.ID)
		if err != nil {
			return err
		}
		if used >= c.UsageLimitPerCustomer {
			return &RejectionError{Code: c.Code, Reason: ReasonCustomerLimit}
		}
	}

	return nil
}
