package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[[]productJSON](t, rec)
	assert.Len(t, out, 2)
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/products/2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[productJSON](t, rec)
	assert.Equal(t, "Garden House", out.Name)
	require.NotNil(t, out.Configurator)
	assert.Equal(t, "100", out.Configurator.Length.Min)
	assert.Len(t, out.Configurator.Addons, 2)
}

func TestGetProduct_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/products/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuoteProduct_Custom(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/products/2/quote", map[string]any{
		"length":   250,
		"width":    120,
		"height":   200,
		"currency": "CZK",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[quoteResponse](t, rec)
	// 250*40 + 120*30 + 200*20
	assert.Equal(t, "17600.00", out.UnitPrice)
	assert.Equal(t, "CZK", out.Currency)
}

func TestQuoteProduct_WithExtrasAndAddons(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/products/2/quote", map[string]any{
		"length":        250,
		"width":         120,
		"height":        200,
		"hasDivider":    true,
		"hasGutter":     true,
		"hasGardenShed": true,
		"addons": []map[string]any{
			{"addonId": 41, "quantity": 2},
			{"addonId": 42, "quantity": 1},
		},
		"currency": "CZK",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[quoteResponse](t, rec)
	// 17600 base + divider 120*10 + gutter 500 + shed 3000
	// + hatch 2*600 + insulation 2.5*1.2*250 = 24250
	assert.Equal(t, "24250.00", out.UnitPrice)
}

func TestQuoteProduct_DimensionOutOfRange(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/products/2/quote", map[string]any{
		"length":   999,
		"width":    120,
		"height":   200,
		"currency": "CZK",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestQuoteProduct_Standard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/products/1/quote", map[string]any{
		"glazeId":  21,
		"currency": "EUR",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeResponse[quoteResponse](t, rec)
	assert.Equal(t, "86.00", out.UnitPrice)
}

func TestQuoteProduct_UnknownCurrency(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/products/1/quote", map[string]any{
		"currency": "USD",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
