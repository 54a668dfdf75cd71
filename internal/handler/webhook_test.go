package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drevniko/eshop-backend/internal/domain/order"
)

func postWebhook(t *testing.T, env *testEnv, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/invoicing/payment", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func TestPaymentWebhook_DepositPaid(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)

	rec := postWebhook(t, env, `{
		"event": "proforma.paid",
		"variable_symbol": "202510",
		"amount": 18785.25,
		"date": "2025-06-20",
		"invoice_id": 555
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	o := env.orders.byID[10]
	assert.Equal(t, order.DepositPaid, o.PaymentStatus)
	require.NotNil(t, o.DepositPaidAt)
	// The deposit receipt follows automatically.
	assert.Equal(t, []order.InvoiceKind{order.KindTaxDocument}, env.provider.created)
}

func TestPaymentWebhook_StringAmount(t *testing.T) {
	env := newTestEnv(t)
	seedStockOrder(env)

	rec := postWebhook(t, env, `{
		"event": "invoice.paid",
		"variable_symbol": "202511",
		"amount": "5445.00",
		"date": "2025-06-20"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.Paid, env.orders.byID[11].PaymentStatus)
}

func TestPaymentWebhook_UnknownOrderAcked(t *testing.T) {
	env := newTestEnv(t)

	rec := postWebhook(t, env, `{
		"event": "invoice.paid",
		"variable_symbol": "999999",
		"amount": 100,
		"date": "2025-06-20"
	}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentWebhook_MismatchedAmountAcked(t *testing.T) {
	env := newTestEnv(t)
	seedDepositOrder(env)

	rec := postWebhook(t, env, `{
		"event": "proforma.paid",
		"variable_symbol": "202510",
		"amount": 1000,
		"date": "2025-06-20"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.AwaitingDeposit, env.orders.byID[10].PaymentStatus)
}

func TestPaymentWebhook_UnknownEventIgnored(t *testing.T) {
	env := newTestEnv(t)

	rec := postWebhook(t, env, `{"event": "invoice.viewed", "variable_symbol": "202510"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentWebhook_Malformed(t *testing.T) {
	env := newTestEnv(t)

	rec := postWebhook(t, env, `{"event": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentWebhook_MissingVariableSymbol(t *testing.T) {
	env := newTestEnv(t)

	rec := postWebhook(t, env, `{"event": "invoice.paid", "amount": 100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
