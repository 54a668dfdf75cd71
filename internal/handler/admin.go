package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/coupon"
	"github.com/drevniko/eshop-backend/internal/domain/money"
	"github.com/drevniko/eshop-backend/internal/domain/order"
	"github.com/drevniko/eshop-backend/internal/notify"
)

type orderListJSON struct {
	Orders []orderJSON `json:"orders"`
	Total  int         `json:"total"`
}

// ListOrders returns the filtered admin listing.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.ListFilter{
		StateCode:     q.Get("state"),
		PaymentStatus: order.PaymentStatus(q.Get("paymentStatus")),
	}
	if v := q.Get("createdFrom"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid createdFrom")
			return
		}
		f.CreatedFrom = &t
	}
	if v := q.Get("createdTo"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid createdTo")
			return
		}
		f.CreatedTo = &t
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	ctx := r.Context()
	orders, total, err := h.orders.List(ctx, f)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	states, err := h.states.List(ctx)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	codeByID := make(map[int64]string, len(states))
	for _, s := range states {
		codeByID[s.ID] = s.Code
	}

	out := orderListJSON{Orders: make([]orderJSON, len(orders)), Total: total}
	for i := range orders {
		out.Orders[i] = renderOrder(&orders[i], codeByID[orders[i].StateID])
	}
	respondJSON(w, http.StatusOK, out)
}

// GetOrder returns one order with its resolved state code.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	ctx := r.Context()
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.respondOrder(w, r, o)
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, o *order.Order) {
	stateCode := ""
	if s, err := h.states.GetByID(r.Context(), o.StateID); err == nil {
		stateCode = s.Code
	}
	respondJSON(w, http.StatusOK, renderOrder(o, stateCode))
}

type updateStateRequest struct {
	State string `json:"state"`
}

// UpdateOrderState moves the order to the named lifecycle state.
func (h *Handler) UpdateOrderState(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req updateStateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	o, err := h.orders.UpdateState(r.Context(), id, req.State)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.respondOrder(w, r, o)
}

type paymentRequest struct {
	// PaidAt defaults to the current time when omitted.
	PaidAt *time.Time `json:"paidAt"`
}

func (h *Handler) markPayment(
	w http.ResponseWriter, r *http.Request,
	mark func(ctx context.Context, orderID int64, paidAt time.Time) (*order.Order, error),
) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	paidAt := time.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	o, err := mark(r.Context(), id, paidAt)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.respondOrder(w, r, o)
}

// MarkDepositPaid records a manually confirmed deposit payment.
func (h *Handler) MarkDepositPaid(w http.ResponseWriter, r *http.Request) {
	h.markPayment(w, r, h.orders.MarkDepositPaid)
}

// MarkFullyPaid records a manually confirmed full payment.
func (h *Handler) MarkFullyPaid(w http.ResponseWriter, r *http.Request) {
	h.markPayment(w, r, h.orders.MarkFullyPaid)
}

type documentJSON struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	PDFURL string `json:"pdfUrl,omitempty"`
}

func (h *Handler) generateInvoice(
	w http.ResponseWriter, r *http.Request,
	generate func(ctx context.Context, orderID int64) (*order.Document, error),
) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	doc, err := generate(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, documentJSON{ID: doc.ID, Number: doc.Number, PDFURL: doc.PDFURL})
}

// GenerateProforma issues the deposit request document.
func (h *Handler) GenerateProforma(w http.ResponseWriter, r *http.Request) {
	h.generateInvoice(w, r, h.orders.GenerateProformaInvoice)
}

// GenerateTaxDocument issues the receipt for a paid deposit.
func (h *Handler) GenerateTaxDocument(w http.ResponseWriter, r *http.Request) {
	h.generateInvoice(w, r, h.orders.GenerateTaxDocumentForDeposit)
}

// GenerateFinalInvoice issues the settlement invoice.
func (h *Handler) GenerateFinalInvoice(w http.ResponseWriter, r *http.Request) {
	h.generateInvoice(w, r, h.orders.GenerateFinalInvoice)
}

func (h *Handler) invoiceAction(
	w http.ResponseWriter, r *http.Request,
	act func(ctx context.Context, orderID int64, kind order.InvoiceKind) error,
) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	kind, ok := order.ParseInvoiceKind(strings.ReplaceAll(r.PathValue("kind"), "-", "_"))
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown invoice kind")
		return
	}
	if err := act(r.Context(), id, kind); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendInvoiceEmail asks the provider to email a generated document to the
// customer.
func (h *Handler) SendInvoiceEmail(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, h.orders.SendInvoiceByEmail)
}

// MarkInvoiceSent flags a generated document as delivered at the provider.
func (h *Handler) MarkInvoiceSent(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, h.orders.MarkInvoiceSent)
}

type stateJSON struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"displayOrder"`
	Final        bool   `json:"final"`
}

// ListOrderStates returns the lifecycle state catalog.
func (h *Handler) ListOrderStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.states.List(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	out := make([]stateJSON, len(states))
	for i, s := range states {
		out[i] = stateJSON{ID: s.ID, Code: s.Code, Name: s.Name, DisplayOrder: s.DisplayOrder, Final: s.Final}
	}
	respondJSON(w, http.StatusOK, out)
}

type couponJSON struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	Percentage   bool     `json:"percentage"`
	Value        string   `json:"value"`
	FixedValue   pairJSON `json:"fixedValue"`
	FreeShipping bool     `json:"freeShipping"`

	MinOrderValue pairJSON `json:"minOrderValue"`

	StartDate      *time.Time `json:"startDate,omitempty"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`

	UsageLimit            int `json:"usageLimit"`
	UsageLimitPerCustomer int `json:"usageLimitPerCustomer"`
	UsedTimes             int `json:"usedTimes"`

	Active bool `json:"active"`
}

func renderCoupon(c *coupon.Coupon) couponJSON {
	return couponJSON{
		ID:          c.ID,
		Code:        c.Code,
		Name:        c.Name,
		Description: c.Description,

		Percentage:   c.Percentage,
		Value:        c.Value.String(),
		FixedValue:   pairOf(c.FixedValue),
		FreeShipping: c.FreeShipping,

		MinOrderValue: pairOf(c.MinOrderValue),

		StartDate:      c.StartDate,
		ExpirationDate: c.ExpirationDate,

		UsageLimit:            c.UsageLimit,
		UsageLimitPerCustomer: c.UsageLimitPerCustomer,
		UsedTimes:             c.UsedTimes,

		Active: c.Active,
	}
}

// ListCoupons returns all coupon definitions.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	out := make([]couponJSON, len(coupons))
	for i := range coupons {
		out[i] = renderCoupon(&coupons[i])
	}
	respondJSON(w, http.StatusOK, out)
}

type saveCouponRequest struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Percentage    bool            `json:"percentage"`
	Value         decimal.Decimal `json:"value"`
	FixedValueCZK decimal.Decimal `json:"fixedValueCzk"`
	FixedValueEUR decimal.Decimal `json:"fixedValueEur"`
	FreeShipping  bool            `json:"freeShipping"`

	MinOrderCZK decimal.Decimal `json:"minOrderCzk"`
	MinOrderEUR decimal.Decimal `json:"minOrderEur"`

	StartDate      *time.Time `json:"startDate"`
	ExpirationDate *time.Time `json:"expirationDate"`

	UsageLimit            int `json:"usageLimit"`
	UsageLimitPerCustomer int `json:"usageLimitPerCustomer"`

	Active bool `json:"active"`
}

// SaveCoupon creates or updates a coupon definition.
func (h *Handler) SaveCoupon(w http.ResponseWriter, r *http.Request) {
	var req saveCouponRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	c := &coupon.Coupon{
		ID:          req.ID,
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,

		Percentage:   req.Percentage,
		Value:        req.Value,
		FixedValue:   money.Pair{CZK: req.FixedValueCZK, EUR: req.FixedValueEUR},
		FreeShipping: req.FreeShipping,

		MinOrderValue: money.Pair{CZK: req.MinOrderCZK, EUR: req.MinOrderEUR},

		StartDate:      req.StartDate,
		ExpirationDate: req.ExpirationDate,

		UsageLimit:            req.UsageLimit,
		UsageLimitPerCustomer: req.UsageLimitPerCustomer,

		Active: req.Active,
	}
	if err := c.ValidateDefinition(); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if err := h.coupons.Save(r.Context(), c); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, renderCoupon(c))
}

// ListEmailTemplates returns the notification templates for all states.
func (h *Handler) ListEmailTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, templates)
}

type saveTemplateRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Enabled bool   `json:"enabled"`
}

// SaveEmailTemplate upserts the template for one state and invalidates its
// cache entry.
func (h *Handler) SaveEmailTemplate(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	t := &notify.TemplateConfig{
		StateCode: r.PathValue("stateCode"),
		Subject:   req.Subject,
		Body:      req.Body,
		Enabled:   req.Enabled,
	}
	if err := h.templates.Save(r.Context(), t); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}
