package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/drevniko/eshop-backend/internal/domain/catalog"
	"github.com/drevniko/eshop-backend/internal/domain/coupon"
	"github.com/drevniko/eshop-backend/internal/domain/customer"
	"github.com/drevniko/eshop-backend/internal/domain/money"
	"github.com/drevniko/eshop-backend/internal/domain/order"
	"github.com/drevniko/eshop-backend/internal/notify"
	"github.com/drevniko/eshop-backend/internal/session"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mockProducts struct {
	byID map[int64]*catalog.Product
}

func (m *mockProducts) List(_ context.Context, activeOnly bool) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range m.byID {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProducts) GetByID(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (m *mockProducts) GetBySlug(_ context.Context, slug string) (*catalog.Product, error) {
	for _, p := range m.byID {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (m *mockProducts) Save(_ context.Context, p *catalog.Product) error {
	m.byID[p.ID] = p
	return nil
}

func (m *mockProducts) Deactivate(_ context.Context, id int64) error {
	p, ok := m.byID[id]
	if !ok {
		return catalog.ErrNotFound
	}
	p.Active = false
	return nil
}

type mockTaxRates struct {
	byID map[int64]*money.TaxRate
}

func (m *mockTaxRates) GetByID(_ context.Context, id int64) (*money.TaxRate, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("tax rate %d not found", id)
	}
	return r, nil
}

func (m *mockTaxRates) List(_ context.Context) ([]money.TaxRate, error) {
	var out []money.TaxRate
	for _, r := range m.byID {
		out = append(out, *r)
	}
	return out, nil
}

type mockCoupons struct {
	byID        map[int64]*coupon.Coupon
	incremented []int64
	customerUse map[int64]int
}

func (m *mockCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range m.byID {
		if strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (m *mockCoupons) FindByID(_ context.Context, id int64) (*coupon.Coupon, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (m *mockCoupons) List(_ context.Context) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	for _, c := range m.byID {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCoupons) Save(_ context.Context, c *coupon.Coupon) error {
	if c.ID == 0 {
		c.ID = int64(len(m.byID) + 1)
	}
	m.byID[c.ID] = c
	return nil
}

func (m *mockCoupons) IncrementUsage(_ context.Context, id int64) error {
	m.incremented = append(m.incremented, id)
	return nil
}

func (m *mockCoupons) CountCustomerUsage(_ context.Context, customerID, _ int64) (int, error) {
	return m.customerUse[customerID], nil
}

type mockCustomers struct {
	byEmail map[string]*customer.Customer
	nextID  int64
}

func (m *mockCustomers) GetByID(_ context.Context, id int64) (*customer.Customer, error) {
	for _, c := range m.byEmail {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, customer.ErrNotFound
}

func (m *mockCustomers) GetByEmail(_ context.Context, email string) (*customer.Customer, error) {
	c, ok := m.byEmail[email]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func (m *mockCustomers) GetOrCreate(_ context.Context, email, name string) (*customer.Customer, error) {
	if c, ok := m.byEmail[email]; ok {
		return c, nil
	}
	m.nextID++
	c := &customer.Customer{ID: m.nextID, Email: email, Name: name}
	m.byEmail[email] = c
	return c, nil
}

type mockOrderRepo struct {
	byID   map[int64]*order.Order
	nextID int64
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.nextID++
	o.ID = m.nextID
	o.Code = fmt.Sprintf("%d", 202500+o.ID)
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) FindByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, &order.NotFoundError{ID: id}
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) FindByCode(_ context.Context, code string) (*order.Order, error) {
	for _, o := range m.byID {
		if o.Code == code {
			cp := *o
			return &cp, nil
		}
	}
	return nil, &order.NotFoundError{Code: code}
}

func (m *mockOrderRepo) List(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var out []order.Order
	for _, o := range m.byID {
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) WithOrder(ctx context.Context, id int64, fn func(ctx context.Context, o *order.Order) error) error {
	o, ok := m.byID[id]
	if !ok {
		return &order.NotFoundError{ID: id}
	}
	cp := *o
	if err := fn(ctx, &cp); err != nil {
		return err
	}
	m.byID[id] = &cp
	return nil
}

func (m *mockOrderRepo) SetInvoiceDocument(_ context.Context, orderID int64, kind order.InvoiceKind, doc order.Document) (bool, error) {
	o, ok := m.byID[orderID]
	if !ok {
		return false, &order.NotFoundError{ID: orderID}
	}
	if o.InvoiceID(kind) != 0 {
		return false, nil
	}
	switch kind {
	case order.KindProforma:
		o.ProformaID, o.ProformaNumber = doc.ID, doc.Number
	case order.KindTaxDocument:
		o.TaxDocumentID, o.TaxDocumentNumber = doc.ID, doc.Number
	case order.KindFinal:
		o.FinalInvoiceID, o.FinalInvoiceNumber = doc.ID, doc.Number
	}
	return true, nil
}

func (m *mockOrderRepo) ListMissingInvoiceID(_ context.Context, kind order.InvoiceKind) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.byID {
		if o.DepositPaidAt != nil && o.InvoiceID(kind) == 0 {
			out = append(out, *o)
		}
	}
	return out, nil
}

type mockStates struct {
	states []order.State
}

func defaultStates() *mockStates {
	return &mockStates{states: []order.State{
		{ID: 1, Code: order.StateNew, Name: "New", DisplayOrder: 1},
		{ID: 2, Code: "IN_PRODUCTION", Name: "In production", DisplayOrder: 2},
		{ID: 3, Code: order.StateShipped, Name: "Shipped", DisplayOrder: 3},
		{ID: 4, Code: order.StateDelivered, Name: "Delivered", DisplayOrder: 4, Final: true},
		{ID: 5, Code: order.StateCancelled, Name: "Cancelled", DisplayOrder: 5, Final: true},
	}}
}

func (m *mockStates) GetByID(_ context.Context, id int64) (*order.State, error) {
	for _, s := range m.states {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, &order.StateNotFoundError{Code: fmt.Sprintf("#%d", id)}
}

func (m *mockStates) GetByCode(_ context.Context, code string) (*order.State, error) {
	for _, s := range m.states {
		if s.Code == code {
			cp := s
			return &cp, nil
		}
	}
	return nil, &order.StateNotFoundError{Code: code}
}

func (m *mockStates) List(_ context.Context) ([]order.State, error) {
	return m.states, nil
}

type mockProvider struct {
	nextID  int64
	created []order.InvoiceKind
	marked  []int64
	sent    []int64
	flagged []int64
}

func (m *mockProvider) create(kind order.InvoiceKind) (*order.Document, error) {
	m.nextID++
	m.created = append(m.created, kind)
	return &order.Document{ID: m.nextID, Number: fmt.Sprintf("2025%04d", m.nextID)}, nil
}

func (m *mockProvider) CreateProforma(_ context.Context, _ *order.Order) (*order.Document, error) {
	return m.create(order.KindProforma)
}

func (m *mockProvider) CreateTaxDocument(_ context.Context, _ *order.Order) (*order.Document, error) {
	return m.create(order.KindTaxDocument)
}

func (m *mockProvider) CreateFinalInvoice(_ context.Context, _ *order.Order) (*order.Document, error) {
	return m.create(order.KindFinal)
}

func (m *mockProvider) SendByEmail(_ context.Context, invoiceID int64, _, _ string) error {
	m.sent = append(m.sent, invoiceID)
	return nil
}

func (m *mockProvider) MarkAsSent(_ context.Context, invoiceID int64, _, _ string) error {
	m.flagged = append(m.flagged, invoiceID)
	return nil
}

func (m *mockProvider) MarkAsPaid(_ context.Context, invoiceID int64, _ decimal.Decimal, _ time.Time) error {
	m.marked = append(m.marked, invoiceID)
	return nil
}

type mockPublisher struct {
	events []order.StateEvent
}

func (m *mockPublisher) PublishStateEvent(_ context.Context, ev order.StateEvent) error {
	m.events = append(m.events, ev)
	return nil
}

type mockTemplates struct {
	byState map[string]*notify.TemplateConfig
}

func (m *mockTemplates) GetByState(_ context.Context, stateCode string) (*notify.TemplateConfig, error) {
	t, ok := m.byState[stateCode]
	if !ok {
		return nil, notify.ErrTemplateNotFound
	}
	return t, nil
}

func (m *mockTemplates) List(_ context.Context) ([]notify.TemplateConfig, error) {
	var out []notify.TemplateConfig
	for _, t := range m.byState {
		out = append(out, *t)
	}
	return out, nil
}

func (m *mockTemplates) Save(_ context.Context, t *notify.TemplateConfig) error {
	m.byState[t.StateCode] = t
	return nil
}

// testEnv bundles the handler under test with its backing mocks.
type testEnv struct {
	mux *http.ServeMux

	products  *mockProducts
	coupons   *mockCoupons
	customers *mockCustomers
	orders    *mockOrderRepo
	provider  *mockProvider
	publisher *mockPublisher
	templates *mockTemplates
	carts     *session.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rate21 := &money.TaxRate{ID: 1, Name: "standard", Rate: dec("0.21")}

	doghouse := &catalog.Product{
		ID: 1, Name: "Doghouse Classic", Slug: "doghouse-classic",
		Kind: catalog.KindStandard, Active: true, TaxRateID: 1,
		Standard: &catalog.StandardSpec{
			BasePrice: money.NewPair("2000.00", "80.00"),
			Designs: []catalog.Option{
				{ID: 11, Name: "Flat roof", Surcharge: money.NewPair("0", "0")},
			},
			Glazes: []catalog.Option{
				{ID: 21, Name: "Walnut", Surcharge: money.NewPair("150.00", "6.00")},
			},
			RoofColors: []catalog.Option{
				{ID: 31, Name: "Green", Surcharge: money.NewPair("0", "0")},
			},
		},
	}
	shed := &catalog.Product{
		ID: 2, Name: "Garden House", Slug: "garden-house",
		Kind: catalog.KindCustom, Active: true, TaxRateID: 1,
		Configurator: &catalog.Configurator{
			ProductID: 2,
			Length:    catalog.Bounds{Min: dec("100"), Max: dec("500")},
			Width:     catalog.Bounds{Min: dec("80"), Max: dec("300")},
			Height:    catalog.Bounds{Min: dec("100"), Max: dec("250")},

			PricePerCmLength: money.NewPair("40.00", "1.60"),
			PricePerCmWidth:  money.NewPair("30.00", "1.20"),
			PricePerCmHeight: money.NewPair("20.00", "0.80"),

			DividerPricePerCmWidth: money.NewPair("10.00", "0.40"),
			GutterPrice:            money.NewPair("500.00", "20.00"),
			GardenShedPrice:        money.NewPair("3000.00", "120.00"),

			Addons: []catalog.Addon{
				{ID: 41, Name: "Feeding hatch", Pricing: catalog.AddonFixed, Price: money.NewPair("600.00", "24.00")},
				{ID: 42, Name: "Insulation", Pricing: catalog.AddonPerSqMeter, PricePerUnit: money.NewPair("250.00", "10.00")},
			},
		},
	}

	env := &testEnv{
		products: &mockProducts{byID: map[int64]*catalog.Product{1: doghouse, 2: shed}},
		coupons: &mockCoupons{
			byID: map[int64]*coupon.Coupon{
				7: {
					ID: 7, Code: "SLEVA10", Percentage: true, Value: dec("10"),
					FreeShipping: false, Active: true,
				},
			},
			customerUse: map[int64]int{},
		},
		customers: &mockCustomers{byEmail: map[string]*customer.Customer{}},
		orders:    &mockOrderRepo{byID: map[int64]*order.Order{}},
		provider:  &mockProvider{},
		publisher: &mockPublisher{},
		templates: &mockTemplates{byState: map[string]*notify.TemplateConfig{}},
		carts:     session.NewMemoryStore(),
	}

	taxRates := &mockTaxRates{byID: map[int64]*money.TaxRate{1: rate21}}
	states := defaultStates()

	svc := order.NewService(
		env.orders, states, env.coupons, env.provider, env.publisher,
		order.ShippingConfig{
			Cost: money.NewPair("500.00", "20.00"),
			Tax:  money.TaxRate{Rate: dec("0.21")},
		},
	)

	h := NewHandler(
		env.products, taxRates, env.coupons, coupon.NewValidator(env.coupons),
		env.carts, env.customers, svc, states, env.templates,
	)
	env.mux = http.NewServeMux()
	h.Register(env.mux)
	return env
}

// do performs one request against the handler, carrying the session cookie
// between calls via the optional cookie argument.
func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func sessionCookieOf(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}
