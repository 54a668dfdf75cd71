// Package handler exposes the HTTP API: catalog with price quotes, the
// session cart, checkout, admin order operations and the provider payment
// webhook.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/drevniko/eshop-backend/internal/domain/cart"
	"github.com/drevniko/eshop-backend/internal/domain/catalog"
	"github.com/drevniko/eshop-backend/internal/domain/coupon"
	"github.com/drevniko/eshop-backend/internal/domain/customer"
	"github.com/drevniko/eshop-backend/internal/domain/order"
	"github.com/drevniko/eshop-backend/internal/invoicing"
	"github.com/drevniko/eshop-backend/internal/notify"
	"github.com/drevniko/eshop-backend/internal/session"
)

// Handler serves the HTTP API, delegating business logic to the domain
// services and repositories.
type Handler struct {
	products  catalog.Repository
	taxRates  catalog.TaxRateRepository
	coupons   coupon.Repository
	validator *coupon.Validator
	carts     session.Store
	customers customer.Repository
	orders    *order.Service
	states    order.StateRepository
	templates notify.TemplateRepository
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	products catalog.Repository,
	taxRates catalog.TaxRateRepository,
	coupons coupon.Repository,
	validator *coupon.Validator,
	carts session.Store,
	customers customer.Repository,
	orders *order.Service,
	states order.StateRepository,
	templates notify.TemplateRepository,
) *Handler {
	return &Handler{
		products:  products,
		taxRates:  taxRates,
		coupons:   coupons,
		validator: validator,
		carts:     carts,
		customers: customers,
		orders:    orders,
		states:    states,
		templates: templates,
	}
}

// Register mounts all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("POST /api/products/{id}/quote", h.QuoteProduct)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/items", h.AddCartItem)
	mux.HandleFunc("PATCH /api/cart/items/{fingerprint}", h.UpdateCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{fingerprint}", h.RemoveCartItem)
	mux.HandleFunc("POST /api/cart/coupon", h.ApplyCoupon)
	mux.HandleFunc("DELETE /api/cart/coupon", h.RemoveCoupon)

	mux.HandleFunc("POST /api/checkout", h.Checkout)

	mux.HandleFunc("GET /api/admin/orders", h.ListOrders)
	mux.HandleFunc("GET /api/admin/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/admin/orders/{id}/state", h.UpdateOrderState)
	mux.HandleFunc("POST /api/admin/orders/{id}/deposit-paid", h.MarkDepositPaid)
	mux.HandleFunc("POST /api/admin/orders/{id}/fully-paid", h.MarkFullyPaid)
	mux.HandleFunc("POST /api/admin/orders/{id}/invoices/proforma", h.GenerateProforma)
	mux.HandleFunc("POST /api/admin/orders/{id}/invoices/tax-document", h.GenerateTaxDocument)
	mux.HandleFunc("POST /api/admin/orders/{id}/invoices/final", h.GenerateFinalInvoice)
	mux.HandleFunc("POST /api/admin/orders/{id}/invoices/{kind}/send", h.SendInvoiceEmail)
	mux.HandleFunc("POST /api/admin/orders/{id}/invoices/{kind}/mark-sent", h.MarkInvoiceSent)

	mux.HandleFunc("GET /api/admin/order-states", h.ListOrderStates)

	mux.HandleFunc("GET /api/admin/coupons", h.ListCoupons)
	mux.HandleFunc("POST /api/admin/coupons", h.SaveCoupon)

	mux.HandleFunc("GET /api/admin/email-templates", h.ListEmailTemplates)
	mux.HandleFunc("PUT /api/admin/email-templates/{stateCode}", h.SaveEmailTemplate)

	mux.HandleFunc("POST /webhooks/invoicing/payment", h.PaymentWebhook)
}

// errorResponse is the JSON error shape for every non-2xx API response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Code: status, Message: msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondDomainError maps domain errors to HTTP statuses. Unknown errors
// are logged and reported as 500 without leaking internals.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unavailErr *catalog.UnavailableOptionError
		dimErr     *catalog.DimensionOutOfRangeError
		quoteErr   *catalog.QuoteError
		itemErr    *cart.ItemNotFoundError
		rejErr     *coupon.RejectionError
		defErr     *coupon.DefinitionError
		nfErr      *order.NotFoundError
		stateErr   *order.IllegalStateError
		snfErr     *order.StateNotFoundError
		provErr    *invoicing.ProviderError
	)
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, notify.ErrTemplateNotFound),
		errors.As(err, &nfErr),
		errors.As(err, &snfErr),
		errors.As(err, &itemErr):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, order.ErrEmptyCart),
		errors.As(err, &defErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unavailErr),
		errors.As(err, &dimErr),
		errors.As(err, &quoteErr),
		errors.As(err, &rejErr):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &stateErr):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &provErr):
		zctx.From(r.Context()).Error("invoicing provider failure", zap.Error(err))
		respondError(w, http.StatusBadGateway, "invoicing provider unavailable")
	default:
		zctx.From(r.Context()).Error("internal error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
