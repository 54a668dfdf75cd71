// Package order implements the order lifecycle: checkout freezing, payment
// tracking, state transitions and the invoicing workflow against an external
// provider.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/money"
)

// Lifecycle state codes. The full state catalog lives in the database; these
// are the codes the service itself branches on.
const (
	StateNew       = "NEW"
	StateShipped   = "SHIPPED"
	StateDelivered = "DELIVERED"
	StateCancelled = "CANCELLED"
)

// PaymentStatus tracks how far an order has been paid.
type PaymentStatus string

const (
	AwaitingDeposit PaymentStatus = "AWAITING_DEPOSIT"
	AwaitingPayment PaymentStatus = "AWAITING_PAYMENT"
	DepositPaid     PaymentStatus = "DEPOSIT_PAID"
	Paid            PaymentStatus = "PAID"
)

// InvoiceKind identifies which of the three provider documents an order
// column refers to.
type InvoiceKind string

const (
	KindProforma    InvoiceKind = "proforma"
	KindTaxDocument InvoiceKind = "tax_document"
	KindFinal       InvoiceKind = "final"
)

// ParseInvoiceKind maps a URL segment to an InvoiceKind.
func ParseInvoiceKind(s string) (InvoiceKind, bool) {
	switch InvoiceKind(s) {
	case KindProforma, KindTaxDocument, KindFinal:
		return InvoiceKind(s), true
	}
	return "", false
}

// State is one entry of the order-state catalog.
type State struct {
	ID           int64
	Code         string
	Name         string
	DisplayOrder int
	// Final states cannot be left once entered.
	Final bool
}

// Item is a frozen order line. Everything needed to reprint the order is
// copied out of the cart at checkout; later catalog edits never touch it.
type Item struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	// Description is the human-readable configuration summary shown on
	// invoices (dimensions, options, addons).
	Description   string
	Custom        bool
	Quantity      int
	UnitPrice     decimal.Decimal
	TaxRate       decimal.Decimal
	ReverseCharge bool
	LineTotal     decimal.Decimal
	Fingerprint   string
}

// Order is the persisted checkout result. Monetary fields are in the
// order's single currency, frozen at checkout time.
type Order struct {
	ID   int64
	Code string

	// CustomerID is zero for guest checkouts; GuestSession then carries the
	// session surrogate so a guest can look their order up again.
	CustomerID   int64
	GuestSession string
	Email        string

	Currency money.Currency
	Items    []Item

	ShippingCost    decimal.Decimal
	ShippingTaxRate decimal.Decimal
	ShippingTax     decimal.Decimal

	CouponCode string
	Discount   decimal.Decimal

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal

	StateID       int64
	PaymentStatus PaymentStatus

	DepositAmount decimal.Decimal
	DepositPaidAt *time.Time
	PaidAt        *time.Time

	ProformaID         int64
	ProformaNumber     string
	TaxDocumentID      int64
	TaxDocumentNumber  string
	FinalInvoiceID     int64
	FinalInvoiceNumber string

	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time

	CreatedAt time.Time
}

// HasDeposit reports whether a deposit is required on this order.
func (o *Order) HasDeposit() bool {
	return o.DepositAmount.Sign() > 0
}

// RemainingBalance is what is still owed after the deposit.
func (o *Order) RemainingBalance() decimal.Decimal {
	return money.Round(o.Total.Sub(o.DepositAmount))
}

// InvoiceID returns the stored provider id for the given document kind,
// zero when not yet generated.
func (o *Order) InvoiceID(kind InvoiceKind) int64 {
	switch kind {
	case KindProforma:
		return o.ProformaID
	case KindTaxDocument:
		return o.TaxDocumentID
	case KindFinal:
		return o.FinalInvoiceID
	}
	return 0
}

// Document is a provider-issued invoice reference stored on the order.
type Document struct {
	ID     int64
	Number string
	PDFURL string
}

// ListFilter narrows the admin order listing. Zero values mean "any".
type ListFilter struct {
	StateCode     string
	PaymentStatus PaymentStatus
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	Limit         int
	Offset        int
}

// Repository defines order persistence.
//
// WithOrder runs fn inside a transaction holding a row lock on the order,
// serializing concurrent mutations (webhooks versus admin actions). The
// order passed to fn reflects the locked row; mutations fn makes are
// written back when fn returns nil and the transaction commits. fn must not
// perform network calls.
//
// SetInvoiceDocument stores a provider document id atomically and only if
// the column is still empty; it reports false when another writer won.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id int64) (*Order, error)
	FindByCode(ctx context.Context, code string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	WithOrder(ctx context.Context, id int64, fn func(ctx context.Context, o *Order) error) error
	SetInvoiceDocument(ctx context.Context, orderID int64, kind InvoiceKind, doc Document) (bool, error)
	ListMissingInvoiceID(ctx context.Context, kind InvoiceKind) ([]Order, error)
}

// StateRepository provides the order-state catalog.
type StateRepository interface {
	GetByID(ctx context.Context, id int64) (*State, error)
	GetByCode(ctx context.Context, code string) (*State, error)
	List(ctx context.Context) ([]State, error)
}

// InvoiceProvider is the external invoicing API surface the service needs.
// Implemented by the invoicing client; mocked in tests.
type InvoiceProvider interface {
	CreateProforma(ctx context.Context, o *Order) (*Document, error)
	CreateTaxDocument(ctx context.Context, o *Order) (*Document, error)
	CreateFinalInvoice(ctx context.Context, o *Order) (*Document, error)
	SendByEmail(ctx context.Context, invoiceID int64, email, subject string) error
	MarkAsSent(ctx context.Context, invoiceID int64, email, subject string) error
	MarkAsPaid(ctx context.Context, invoiceID int64, amount decimal.Decimal, paidAt time.Time) error
}

// StateEvent is published on order creation and every state change.
type StateEvent struct {
	OrderCode string          `json:"orderCode"`
	StateCode string          `json:"stateCode"`
	Email     string          `json:"email"`
	Total     decimal.Decimal `json:"total"`
	Currency  money.Currency  `json:"currency"`
}

// Publisher delivers state events to the notification pipeline.
type Publisher interface {
	PublishStateEvent(ctx context.Context, ev StateEvent) error
}

// NotFoundError indicates the referenced order does not exist.
type NotFoundError struct {
	ID   int64
	Code string
}

func (e *NotFoundError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("order %s not found", e.Code)
	}
	return fmt.Sprintf("order %d not found", e.ID)
}

// IllegalStateError indicates the requested operation is not valid for the
// order's current payment or lifecycle state.
type IllegalStateError struct {
	OrderCode string
	Reason    string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("order %s: %s", e.OrderCode, e.Reason)
}

// StateNotFoundError indicates an unknown lifecycle state code.
type StateNotFoundError struct {
	Code string
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("order state %s not found", e.Code)
}
