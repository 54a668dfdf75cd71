package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drevniko/eshop-backend/internal/domain/cart"
	"github.com/drevniko/eshop-backend/internal/domain/coupon"
	"github.com/drevniko/eshop-backend/internal/domain/money"
)

// ErrEmptyCart rejects checkout of a cart with no lines.
var ErrEmptyCart = fmt.Errorf("cart is empty")

var two = decimal.NewFromInt(2)

// ShippingConfig is the flat shipping price applied at checkout.
type ShippingConfig struct {
	Cost money.Pair
	Tax  money.TaxRate
}

// Service orchestrates the order lifecycle.
type Service struct {
	orders   Repository
	states   StateRepository
	coupons  coupon.Repository
	provider InvoiceProvider
	events   Publisher
	shipping ShippingConfig
	now      func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(
	orders Repository,
	states StateRepository,
	coupons coupon.Repository,
	provider InvoiceProvider,
	events Publisher,
	shipping ShippingConfig,
) *Service {
	return &Service{
		orders:   orders,
		states:   states,
		coupons:  coupons,
		provider: provider,
		events:   events,
		shipping: shipping,
		now:      time.Now,
	}
}

// CheckoutRequest holds the input for creating an order from a cart.
type CheckoutRequest struct {
	Cart         *cart.Cart
	CustomerID   int64
	GuestSession string
	Email        string
}

// CreateOrder freezes the cart into an immutable order, prices it with
// shipping and any applied coupon, and persists it atomically. Orders
// containing a made-to-order line require a 50 % deposit before production
// starts; stock-only orders are payable in full up front. The coupon usage
// counter and the creation event are best effort and never fail checkout.
func (s *Service) CreateOrder(ctx context.Context, req CheckoutRequest) (*Order, error) {
	c := req.Cart
	if c == nil || c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	cur := c.Currency

	var (
		appliedCode  string
		discount     decimal.Decimal
		freeShipping bool
		couponID     int64
	)
	if c.Coupon != nil {
		cp, err := s.coupons.FindByID(ctx, c.Coupon.CouponID)
		if err != nil {
			return nil, fmt.Errorf("resolving coupon %q: %w", c.Coupon.Code, err)
		}
		appliedCode = cp.Code
		couponID = cp.ID
		discount = c.CapDiscount(coupon.DiscountAmount(cp, c.Subtotal(cur), cur), cur)
		freeShipping = cp.FreeShipping
	}

	subtotal := c.Subtotal(cur)
	tax := c.TotalTax(cur)

	shippingCost := s.shipping.Cost.In(cur)
	if freeShipping {
		shippingCost = decimal.Zero
	}
	shippingTax := s.shipping.Tax.TaxAmount(shippingCost)

	total := money.Round(c.TotalBeforeShipping(discount, cur).Add(shippingCost).Add(shippingTax))

	deposit := decimal.Zero
	status := AwaitingPayment
	if c.HasCustomItem() {
		deposit = money.Round(total.Div(two))
		status = AwaitingDeposit
	}

	state, err := s.states.GetByCode(ctx, StateNew)
	if err != nil {
		return nil, fmt.Errorf("resolving initial state: %w", err)
	}

	items := make([]Item, len(c.Lines))
	for i := range c.Lines {
		items[i] = freezeItem(&c.Lines[i], cur)
	}

	o := &Order{
		CustomerID:      req.CustomerID,
		GuestSession:    req.GuestSession,
		Email:           req.Email,
		Currency:        cur,
		Items:           items,
		ShippingCost:    shippingCost,
		ShippingTaxRate: s.shipping.Tax.EffectiveRate(),
		ShippingTax:     shippingTax,
		CouponCode:      appliedCode,
		Discount:        discount,
		Subtotal:        subtotal,
		Tax:             tax.Add(shippingTax),
		Total:           total,
		StateID:         state.ID,
		PaymentStatus:   status,
		DepositAmount:   deposit,
		CreatedAt:       s.now(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	if couponID != 0 {
		if err := s.coupons.IncrementUsage(ctx, couponID); err != nil {
			zctx.From(ctx).Warn("increment coupon usage",
				zap.String("coupon", appliedCode), zap.Error(err))
		}
	}
	s.publishState(ctx, o, state.Code)

	return o, nil
}

// MarkDepositPaid records the deposit payment on an order that awaits one.
// The provider's proforma, when generated, is marked as paid best effort.
func (s *Service) MarkDepositPaid(ctx context.Context, orderID int64, paidAt time.Time) (*Order, error) {
	var updated *Order
	err := s.orders.WithOrder(ctx, orderID, func(_ context.Context, o *Order) error {
		if !o.HasDeposit() {
			return &IllegalStateError{OrderCode: o.Code, Reason: "order has no deposit"}
		}
		if o.DepositPaidAt != nil {
			return &IllegalStateError{OrderCode: o.Code, Reason: "deposit already recorded"}
		}
		t := paidAt
		o.DepositPaidAt = &t
		o.PaymentStatus = DepositPaid
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.markPaidAtProvider(ctx, updated.ProformaID, updated.DepositAmount, paidAt)
	return updated, nil
}

// MarkFullyPaid records full payment. A missing deposit date is back-filled
// so a single wire covering the whole amount leaves the order consistent.
func (s *Service) MarkFullyPaid(ctx context.Context, orderID int64, paidAt time.Time) (*Order, error) {
	var updated *Order
	err := s.orders.WithOrder(ctx, orderID, func(_ context.Context, o *Order) error {
		if o.PaymentStatus == Paid {
			return &IllegalStateError{OrderCode: o.Code, Reason: "order already paid"}
		}
		t := paidAt
		o.PaidAt = &t
		if o.HasDeposit() && o.DepositPaidAt == nil {
			o.DepositPaidAt = &t
		}
		o.PaymentStatus = Paid
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	invoiceID := updated.FinalInvoiceID
	if invoiceID == 0 {
		invoiceID = updated.ProformaID
	}
	s.markPaidAtProvider(ctx, invoiceID, updated.RemainingBalance(), paidAt)
	return updated, nil
}

// UpdateState moves the order to the named lifecycle state. Repeating the
// current state is a no-op; final states cannot be left. Shipping, delivery
// and cancellation transitions stamp their timestamps.
func (s *Service) UpdateState(ctx context.Context, orderID int64, stateCode string) (*Order, error) {
	target, err := s.states.GetByCode(ctx, stateCode)
	if err != nil {
		return nil, &StateNotFoundError{Code: stateCode}
	}

	var (
		updated *Order
		changed bool
	)
	err = s.orders.WithOrder(ctx, orderID, func(ctx context.Context, o *Order) error {
		if o.StateID == target.ID {
			updated = o
			return nil
		}
		current, err := s.states.GetByID(ctx, o.StateID)
		if err != nil {
			return fmt.Errorf("resolving current state: %w", err)
		}
		if current.Final {
			return &IllegalStateError{
				OrderCode: o.Code,
				Reason:    fmt.Sprintf("cannot leave final state %s", current.Code),
			}
		}
		now := s.now()
		switch target.Code {
		case StateShipped:
			o.ShippedAt = &now
		case StateDelivered:
			o.DeliveredAt = &now
		case StateCancelled:
			o.CancelledAt = &now
		}
		o.StateID = target.ID
		updated = o
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publishState(ctx, updated, target.Code)
	}
	return updated, nil
}

// Get returns the order by id.
func (s *Service) Get(ctx context.Context, orderID int64) (*Order, error) {
	return s.orders.FindByID(ctx, orderID)
}

// List returns the filtered admin listing and the unfiltered-page total.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	return s.orders.List(ctx, f)
}

func (s *Service) publishState(ctx context.Context, o *Order, stateCode string) {
	err := s.events.PublishStateEvent(ctx, StateEvent{
		OrderCode: o.Code,
		StateCode: stateCode,
		Email:     o.Email,
		Total:     o.Total,
		Currency:  o.Currency,
	})
	if err != nil {
		zctx.From(ctx).Warn("publish state event",
			zap.String("order", o.Code), zap.String("state", stateCode), zap.Error(err))
	}
}

// markPaidAtProvider mirrors a local payment to the provider. The local
// record is authoritative, so provider failures are only logged.
func (s *Service) markPaidAtProvider(ctx context.Context, invoiceID int64, amount decimal.Decimal, paidAt time.Time) {
	if invoiceID == 0 {
		return
	}
	if err := s.provider.MarkAsPaid(ctx, invoiceID, amount, paidAt); err != nil {
		zctx.From(ctx).Warn("mark invoice paid at provider",
			zap.Int64("invoice_id", invoiceID), zap.Error(err))
	}
}

func freezeItem(ci *cart.Item, cur money.Currency) Item {
	return Item{
		ProductID:     ci.ProductID,
		ProductName:   ci.ProductName,
		Description:   describeItem(ci),
		Custom:        ci.Custom,
		Quantity:      ci.Quantity,
		UnitPrice:     ci.UnitPrice.In(cur),
		TaxRate:       ci.TaxRate,
		ReverseCharge: ci.ReverseCharge,
		LineTotal:     ci.LineTotal(cur),
		Fingerprint:   ci.Fingerprint(),
	}
}

// describeItem renders the configuration summary printed on invoices.
func describeItem(ci *cart.Item) string {
	var parts []string
	if ci.Custom {
		parts = append(parts, fmt.Sprintf("%s × %s × %s cm",
			ci.Length.String(), ci.Width.String(), ci.Height.String()))
	}
	for _, name := range []string{ci.DesignName, ci.GlazeName, ci.RoofColorName} {
		if name != "" {
			parts = append(parts, name)
		}
	}
	if ci.RoofOverstep != "" {
		parts = append(parts, "roof overstep "+ci.RoofOverstep)
	}
	if ci.HasDivider {
		parts = append(parts, "divider")
	}
	if ci.HasGutter {
		parts = append(parts, "gutter")
	}
	if ci.HasGardenShed {
		parts = append(parts, "garden shed")
	}
	for _, a := range ci.Addons {
		if a.Quantity > 1 {
			parts = append(parts, fmt.Sprintf("%s ×%d", a.Name, a.Quantity))
		} else {
			parts = append(parts, a.Name)
		}
	}
	return strings.Join(parts, ", ")
}
