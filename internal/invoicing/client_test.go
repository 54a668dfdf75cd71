package invoicing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drevniko/eshop-backend/internal/domain/money"
	"github.com/drevniko/eshop-backend/internal/domain/order"
)

func testOrder() *order.Order {
	return &order.Order{
		ID: 10, Code: "202510", Currency: money.CZK,
		Email: "kupec@example.com",
		Items: []order.Item{{
			ProductName: "Custom hutch",
			Description: "250 × 120 × 200 cm, divider",
			Quantity:    1,
			UnitPrice:   decimal.RequireFromString("30550.00"),
			TaxRate:     decimal.RequireFromString("0.21"),
			LineTotal:   decimal.RequireFromString("30550.00"),
		}},
		ShippingCost:    decimal.RequireFromString("500.00"),
		ShippingTaxRate: decimal.RequireFromString("0.21"),
		Subtotal:        decimal.RequireFromString("30550.00"),
		Total:           decimal.RequireFromString("37570.50"),
		DepositAmount:   decimal.RequireFromString("18785.25"),
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL: srv.URL,
		Email:   "ucet@example.com",
		APIKey:  "tajny-klic",
		Timeout: 2 * time.Second,
	})
}

func TestClient_CreateProforma(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = w.Write([]byte(`{
			"error": 0,
			"data": {"Invoice": {"id": 555, "invoice_no_formatted": "20250555", "token": "abc123"}}
		}`))
	})

	doc, err := c.CreateProforma(context.Background(), testOrder())
	require.NoError(t, err)

	assert.Equal(t, int64(555), doc.ID)
	assert.Equal(t, "20250555", doc.Number)
	assert.Contains(t, doc.PDFURL, "/invoices/pdf/555/token:abc123")

	assert.Equal(t, "SFAPI email=ucet@example.com&apikey=tajny-klic", gotAuth)
	assert.Equal(t, "/invoices/create.json", gotPath)

	inv := gotBody["Invoice"].(map[string]any)
	assert.Equal(t, "proforma", inv["type"])
	assert.Equal(t, "202510", inv["variable"])
	assert.Equal(t, "CZK", inv["invoice_currency"])

	items := gotBody["InvoiceItem"].([]any)
	require.Len(t, items, 1, "proforma bills only the deposit")
	dep := items[0].(map[string]any)
	assert.Equal(t, "18785.25", dep["unit_price"])
	assert.Equal(t, "0", dep["tax"])
}

func TestClient_CreateFinalInvoice_Lines(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = w.Write([]byte(`{"error":0,"data":{"Invoice":{"id":777,"invoice_no_formatted":"20250777","token":"t"}}}`))
	})

	o := testOrder()
	o.CouponCode = "SLEVA10"
	o.Discount = decimal.RequireFromString("400.00")

	_, err := c.CreateFinalInvoice(context.Background(), o)
	require.NoError(t, err)

	inv := gotBody["Invoice"].(map[string]any)
	assert.Equal(t, "regular", inv["type"])

	items := gotBody["InvoiceItem"].([]any)
	// Product line, discount, shipping, deposit deduction.
	require.Len(t, items, 4)

	product := items[0].(map[string]any)
	assert.Equal(t, "Custom hutch", product["name"])
	assert.Equal(t, "21.00", product["tax"])

	discount := items[1].(map[string]any)
	assert.Equal(t, "Discount (SLEVA10)", discount["name"])
	assert.Equal(t, "-400.00", discount["unit_price"])

	deposit := items[3].(map[string]any)
	// 18785.25 gross at 21 % back-computes to 15525.00 net.
	assert.Equal(t, "-15525.00", deposit["unit_price"])
	assert.Equal(t, "21.00", deposit["tax"])
}

func TestClient_ProviderRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": 2, "error_message": "Invalid data"}`))
	})

	_, err := c.CreateProforma(context.Background(), testOrder())
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Invalid data", perr.Message)
}

func TestClient_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.CreateProforma(context.Background(), testOrder())
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
}

func TestClient_MalformedEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	})

	_, err := c.CreateProforma(context.Background(), testOrder())
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
}

func TestClient_MarkAsPaid(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = w.Write([]byte(`{"error": 0}`))
	})

	paidAt := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	err := c.MarkAsPaid(context.Background(), 555, decimal.RequireFromString("18785.25"), paidAt)
	require.NoError(t, err)

	assert.Equal(t, "/invoice_payments/add.json", gotPath)
	payment := gotBody["InvoicePayment"].(map[string]any)
	assert.Equal(t, float64(555), payment["invoice_id"])
	assert.Equal(t, "18785.25", payment["amount"])
	assert.Equal(t, "2025-06-15", payment["created"])
}

func TestClient_SendByEmail(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"error": 0}`))
	})

	require.NoError(t, c.SendByEmail(context.Background(), 555, "kupec@example.com", "Proforma invoice for order 202501"))
	assert.Equal(t, "/invoices/send.json", gotPath)
}

func TestClient_MarkAsSent(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = w.Write([]byte(`{"error": 0}`))
	})

	require.NoError(t, c.MarkAsSent(context.Background(), 555, "kupec@example.com", "Invoice for order 202501"))

	assert.Equal(t, "/invoices/mark_as_sent", gotPath)
	email := gotBody["InvoiceEmail"].(map[string]any)
	assert.Equal(t, float64(555), email["invoice_id"])
	assert.Equal(t, "kupec@example.com", email["email"])
	assert.Equal(t, "Invoice for order 202501", email["subject"])
}
