package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/drevniko/eshop-backend/internal/domain/coupon"
	"github.com/drevniko/eshop-backend/internal/domain/order"
	"github.com/drevniko/eshop-backend/internal/session"
)

type checkoutRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type orderItemJSON struct {
	ProductID     int64  `json:"productId"`
	ProductName   string `json:"productName"`
	Description   string `json:"description,omitempty"`
	Custom        bool   `json:"custom"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unitPrice"`
	TaxRate       string `json:"taxRate"`
	ReverseCharge bool   `json:"reverseCharge"`
	LineTotal     string `json:"lineTotal"`
}

type orderJSON struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Email    string `json:"email,omitempty"`
	Currency string `json:"currency"`

	Items []orderItemJSON `json:"items"`

	ShippingCost string `json:"shippingCost"`
	ShippingTax  string `json:"shippingTax"`
	CouponCode   string `json:"couponCode,omitempty"`
	Discount     string `json:"discount"`
	Subtotal     string `json:"subtotal"`
	Tax          string `json:"tax"`
	Total        string `json:"total"`

	State         string `json:"state,omitempty"`
	PaymentStatus string `json:"paymentStatus"`

	DepositAmount    string     `json:"depositAmount"`
	RemainingBalance string     `json:"remainingBalance"`
	DepositPaidAt    *time.Time `json:"depositPaidAt,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`

	ProformaNumber     string `json:"proformaNumber,omitempty"`
	TaxDocumentNumber  string `json:"taxDocumentNumber,omitempty"`
	FinalInvoiceNumber string `json:"finalInvoiceNumber,omitempty"`

	ShippedAt   *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func renderOrder(o *order.Order, stateCode string) orderJSON {
	items := make([]orderItemJSON, len(o.Items))
	for i := range o.Items {
		it := &o.Items[i]
		items[i] = orderItemJSON{
			ProductID:     it.ProductID,
			ProductName:   it.ProductName,
			Description:   it.Description,
			Custom:        it.Custom,
			Quantity:      it.Quantity,
			UnitPrice:     amt(it.UnitPrice),
			TaxRate:       it.TaxRate.String(),
			ReverseCharge: it.ReverseCharge,
			LineTotal:     amt(it.LineTotal),
		}
	}
	return orderJSON{
		ID:       o.ID,
		Code:     o.Code,
		Email:    o.Email,
		Currency: string(o.Currency),
		Items:    items,

		ShippingCost: amt(o.ShippingCost),
		ShippingTax:  amt(o.ShippingTax),
		CouponCode:   o.CouponCode,
		Discount:     amt(o.Discount),
		Subtotal:     amt(o.Subtotal),
		Tax:          amt(o.Tax),
		Total:        amt(o.Total),

		State:         stateCode,
		PaymentStatus: string(o.PaymentStatus),

		DepositAmount:    amt(o.DepositAmount),
		RemainingBalance: amt(o.RemainingBalance()),
		DepositPaidAt:    o.DepositPaidAt,
		PaidAt:           o.PaidAt,

		ProformaNumber:     o.ProformaNumber,
		TaxDocumentNumber:  o.TaxDocumentNumber,
		FinalInvoiceNumber: o.FinalInvoiceNumber,

		ShippedAt:   o.ShippedAt,
		DeliveredAt: o.DeliveredAt,
		CancelledAt: o.CancelledAt,

		CreatedAt: o.CreatedAt,
	}
}

// Checkout freezes the session cart into an order. The applied coupon is
// re-validated with the resolved customer so per-customer limits catch up
// with guests who identified themselves by email.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionID(w, r)
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ctx := r.Context()
	c, err := h.carts.Get(ctx, sid)
	if err != nil {
		if err == session.ErrNotFound {
			h.respondDomainError(w, r, order.ErrEmptyCart)
			return
		}
		h.respondDomainError(w, r, err)
		return
	}

	var customerID int64
	if req.Email != "" {
		cust, err := h.customers.GetOrCreate(ctx, req.Email, req.Name)
		if err != nil {
			h.respondDomainError(w, r, err)
			return
		}
		customerID = cust.ID
	}

	if c.Coupon != nil {
		cp, err := h.coupons.FindByID(ctx, c.Coupon.CouponID)
		if err != nil {
			h.respondDomainError(w, r, err)
			return
		}
		who := coupon.Redeemer{CustomerID: customerID, Guest: customerID == 0}
		if err := h.validator.Validate(ctx, cp, c.Subtotal(c.Currency), c.Currency, who); err != nil {
			h.respondDomainError(w, r, err)
			return
		}
	}

	o, err := h.orders.CreateOrder(ctx, order.CheckoutRequest{
		Cart:         c,
		CustomerID:   customerID,
		GuestSession: sid,
		Email:        req.Email,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	if err := h.carts.Delete(ctx, sid); err != nil {
		zctx.From(ctx).Warn("clear cart after checkout",
			zap.String("order", o.Code), zap.Error(err))
	}

	respondJSON(w, http.StatusCreated, renderOrder(o, order.StateNew))
}
