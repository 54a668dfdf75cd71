package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drevniko/eshop-backend/internal/domain/money"
	"github.com/drevniko/eshop-backend/internal/domain/order"
	"github.com/drevniko/eshop-backend/internal/notify"
)

func seedDepositOrder(env *testEnv) *order.Order {
	o := &order.Order{
		ID: 10, Code: "202510", Email: "jana@example.com",
		Currency: money.CZK,
		Items: []order.Item{{
			ProductID: 2, ProductName: "Garden House", Custom: true, Quantity: 1,
			UnitPrice: dec("30550.00"), TaxRate: dec("0.21"), LineTotal: dec("30550.00"),
		}},
		ShippingCost: dec("500.00"), ShippingTaxRate: dec("0.21"), ShippingTax: dec("105.00"),
		Subtotal: dec("30550.00"), Tax: dec("6520.50"), Total: dec("37570.50"),
		StateID: 1, PaymentStatus: order.AwaitingDeposit,
		DepositAmount: dec("18785.25"),
		CreatedAt:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	env.orders.byID[o.ID] = o
	if env.orders.nextID < o.ID {
		env.orders.nextID = o.ID
	}
	return o
}

func seedStockOrder(env *testEnv) *order.Order {
	o := &order.Order{
		ID: 11, Code: "202511",
		Currency: money.CZK,
		Items: []order.Item{{
			ProductID: 1, ProductName: "Doghouse Classic", Quantity: 2,
			UnitPrice: dec("2000.00"), TaxRate: dec("0.21"), LineTotal: dec("4000.00"),
		}},
		ShippingCost: dec("500.00"), ShippingTaxRate: dec("0.21"), ShippingTax: dec("105.00"),
		Subtotal: dec("4000.00"), Tax: dec("945.00"), Total: dec("5445.00"),
		StateID: 1, PaymentStatus: order.AwaitingPayment,
		CreatedAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
	env.orders.byID[o.ID] = o
	if env.orders.nextID < o.ID {
		env.orders.nextID = o.ID
	}
	return o
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)
	seedStockOrder(env)

	rec := env.do(t, http.MethodGet, "/api/admin/orders", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[orderListJSON](t, rec)
	assert.Equal(t, 2, out.Total)
	assert.Len(t, out.Orders, 2)
}

func TestListOrders_FilterByPaymentStatus(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)
	seedStockOrder(env)

	rec := env.do(t, http.MethodGet, "/api/admin/orders?paymentStatus=AWAITING_DEPOSIT", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[orderListJSON](t, rec)
	require.Len(t, out.Orders, 1)
	assert.Equal(t, "202510", out.Orders[0].Code)
}

func TestListOrders_InvalidDateFilter(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/admin/orders?createdFrom=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)

	rec := env.do(t, http.MethodGet, "/api/admin/orders/10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[orderJSON](t, rec)
	assert.Equal(t, "202510", out.Code)
	assert.Equal(t, "NEW", out.State)
	assert.Equal(t, "18785.25", out.DepositAmount)
	assert.Equal(t, "18785.25", out.RemainingBalance)
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/admin/orders/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOrderState(t *testing.T) {
	env := newTestEnv(t)
	seedStockOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/11/state", map[string]any{"state": "SHIPPED"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[orderJSON](t, rec)
	assert.Equal(t, "SHIPPED", out.State)
	assert.NotNil(t, out.ShippedAt)
	require.Len(t, env.publisher.events, 1)
	assert.Equal(t, "SHIPPED", env.publisher.events[0].StateCode)
}

func TestUpdateOrderState_Unknown(t *testing.T) {
	env := newTestEnv(t)
	seedStockOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/11/state", map[string]any{"state": "TELEPORTED"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOrderState_FinalState(t *testing.T) {
	env := newTestEnv(t)
	o := seedStockOrder(env)
	o.StateID = 5 // cancelled

	rec := env.do(t, http.MethodPost, "/api/admin/orders/11/state", map[string]any{"state": "SHIPPED"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMarkDepositPaid(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/10/deposit-paid", map[string]any{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[orderJSON](t, rec)
	assert.Equal(t, "DEPOSIT_PAID", out.PaymentStatus)
	assert.NotNil(t, out.DepositPaidAt)
}

func TestMarkDepositPaid_NoDeposit(t *testing.T) {
	env := newTestEnv(t)
	seedStockOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/11/deposit-paid", map[string]any{}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMarkFullyPaid(t *testing.T) {
	env := newTestEnv(t)
	seedStockOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/11/fully-paid", map[string]any{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[orderJSON](t, rec)
	assert.Equal(t, "PAID", out.PaymentStatus)
	assert.NotNil(t, out.PaidAt)
}

func TestGenerateProforma(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/10/invoices/proforma", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[documentJSON](t, rec)
	assert.NotZero(t, out.ID)
	assert.NotEmpty(t, out.Number)
	assert.Equal(t, []order.InvoiceKind{order.KindProforma}, env.provider.created)
}

func TestGenerateProforma_StockOrder(t *testing.T) {
	env := newTestEnv(t)
	seedStockOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/11/invoices/proforma", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGenerateTaxDocument_DepositUnpaid(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/10/invoices/tax-document", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGenerateFinalInvoice_StockOrder(t *testing.T) {
	env := newTestEnv(t)
	seedStockOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/11/invoices/final", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[documentJSON](t, rec)
	assert.NotZero(t, out.ID)
	assert.Equal(t, []order.InvoiceKind{order.KindFinal}, env.provider.created)
}

func TestSendInvoiceEmail(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/10/invoices/proforma", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeResponse[documentJSON](t, rec)

	rec = env.do(t, http.MethodPost, "/api/admin/orders/10/invoices/proforma/send", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, env.provider.sent, doc.ID)
}

func TestSendInvoiceEmail_NotGeneratedYet(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/10/invoices/final/send", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMarkInvoiceSent(t *testing.T) {
	env := newTestEnv(t)
	seedStockOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/11/invoices/final", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeResponse[documentJSON](t, rec)

	rec = env.do(t, http.MethodPost, "/api/admin/orders/11/invoices/final/mark-sent", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, env.provider.flagged, doc.ID)
}

func TestMarkInvoiceSent_UnknownKind(t *testing.T) {
	env := newTestEnv(t)
	seedStockOrder(env)

	rec := env.do(t, http.MethodPost, "/api/admin/orders/11/invoices/receipt/mark-sent", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrderStates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/admin/order-states", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[[]stateJSON](t, rec)
	require.Len(t, out, 5)
	assert.Equal(t, "NEW", out[0].Code)
	assert.True(t, out[4].Final)
}

func TestSaveCoupon(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/admin/coupons", map[string]any{
		"code":       "JARO5",
		"percentage": true,
		"value":      5,
		"active":     true,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[couponJSON](t, rec)
	assert.NotZero(t, out.ID)
	assert.Equal(t, "JARO5", out.Code)
}

func TestSaveCoupon_NoBenefit(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/admin/coupons", map[string]any{
		"code":   "NIC",
		"active": true,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveEmailTemplate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/admin/email-templates/SHIPPED", map[string]any{
		"subject": "Order {{.OrderCode}} is on its way",
		"body":    "Total {{.Total}} {{.Currency}}",
		"enabled": true,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[notify.TemplateConfig](t, rec)
	assert.Equal(t, "SHIPPED", out.StateCode)
	assert.True(t, out.Enabled)

	list := env.do(t, http.MethodGet, "/api/admin/email-templates", nil, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decodeResponse[[]notify.TemplateConfig](t, list), 1)
}
