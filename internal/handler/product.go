package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/catalog"
	"github.com/drevniko/eshop-backend/internal/domain/money"
)

// pairJSON renders a per-currency amount.
type pairJSON struct {
	CZK string `json:"czk"`
	EUR string `json:"eur"`
}

func pairOf(p money.Pair) pairJSON {
	return pairJSON{CZK: amt(p.CZK), EUR: amt(p.EUR)}
}

// amt formats a money amount for the wire with a fixed scale.
func amt(d decimal.Decimal) string {
	return d.StringFixed(money.Scale)
}

type optionJSON struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Surcharge pairJSON `json:"surcharge"`
}

type addonJSON struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Pricing      string   `json:"pricing"`
	Price        pairJSON `json:"price"`
	PricePerUnit pairJSON `json:"pricePerUnit"`
}

type boundsJSON struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type standardJSON struct {
	BasePrice  pairJSON     `json:"basePrice"`
	Designs    []optionJSON `json:"designs"`
	Glazes     []optionJSON `json:"glazes"`
	RoofColors []optionJSON `json:"roofColors"`
}

type configuratorJSON struct {
	Length boundsJSON `json:"length"`
	Width  boundsJSON `json:"width"`
	Height boundsJSON `json:"height"`

	PricePerCmLength pairJSON `json:"pricePerCmLength"`
	PricePerCmWidth  pairJSON `json:"pricePerCmWidth"`
	PricePerCmHeight pairJSON `json:"pricePerCmHeight"`

	Divider    pairJSON    `json:"dividerPricePerCmWidth"`
	Gutter     pairJSON    `json:"gutterPrice"`
	GardenShed pairJSON    `json:"gardenShedPrice"`
	Addons     []addonJSON `json:"addons"`
}

type productJSON struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Slug         string            `json:"slug"`
	Kind         string            `json:"kind"`
	Active       bool              `json:"active"`
	Standard     *standardJSON     `json:"standard,omitempty"`
	Configurator *configuratorJSON `json:"configurator,omitempty"`
}

func renderOptions(opts []catalog.Option) []optionJSON {
	out := make([]optionJSON, len(opts))
	for i, o := range opts {
		out[i] = optionJSON{ID: o.ID, Name: o.Name, Surcharge: pairOf(o.Surcharge)}
	}
	return out
}

func renderBounds(b catalog.Bounds) boundsJSON {
	return boundsJSON{Min: b.Min.String(), Max: b.Max.String()}
}

func renderProduct(p *catalog.Product) productJSON {
	out := productJSON{
		ID:     p.ID,
		Name:   p.Name,
		Slug:   p.Slug,
		Kind:   string(p.Kind),
		Active: p.Active,
	}
	if p.Standard != nil {
		out.Standard = &standardJSON{
			BasePrice:  pairOf(p.Standard.BasePrice),
			Designs:    renderOptions(p.Standard.Designs),
			Glazes:     renderOptions(p.Standard.Glazes),
			RoofColors: renderOptions(p.Standard.RoofColors),
		}
	}
	if cfg := p.Configurator; cfg != nil {
		addons := make([]addonJSON, len(cfg.Addons))
		for i, a := range cfg.Addons {
			addons[i] = addonJSON{
				ID:           a.ID,
				Name:         a.Name,
				Pricing:      string(a.Pricing),
				Price:        pairOf(a.Price),
				PricePerUnit: pairOf(a.PricePerUnit),
			}
		}
		out.Configurator = &configuratorJSON{
			Length:           renderBounds(cfg.Length),
			Width:            renderBounds(cfg.Width),
			Height:           renderBounds(cfg.Height),
			PricePerCmLength: pairOf(cfg.PricePerCmLength),
			PricePerCmWidth:  pairOf(cfg.PricePerCmWidth),
			PricePerCmHeight: pairOf(cfg.PricePerCmHeight),

			Divider:    pairOf(cfg.DividerPricePerCmWidth),
			Gutter:     pairOf(cfg.GutterPrice),
			GardenShed: pairOf(cfg.GardenShedPrice),
			Addons:     addons,
		}
	}
	return out
}

// ListProducts returns the active catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context(), true)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	out := make([]productJSON, len(products))
	for i := range products {
		out[i] = renderProduct(&products[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// GetProduct returns one product with its full pricing spec.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, renderProduct(p))
}

// addonSelection is one addon pick in a quote or add-to-cart request.
type addonSelection struct {
	AddonID  int64 `json:"addonId"`
	Quantity int   `json:"quantity"`
}

// configRequest is the shared product-configuration payload of the quote and
// add-to-cart endpoints. The same fields priced here are priced again at
// add-to-cart, so the preview always matches the cart.
type configRequest struct {
	DesignID    int64 `json:"designId"`
	GlazeID     int64 `json:"glazeId"`
	RoofColorID int64 `json:"roofColorId"`

	Length decimal.Decimal `json:"length"`
	Width  decimal.Decimal `json:"width"`
	Height decimal.Decimal `json:"height"`

	RoofOverstep  string           `json:"roofOverstep"`
	HasDivider    bool             `json:"hasDivider"`
	HasGutter     bool             `json:"hasGutter"`
	HasGardenShed bool             `json:"hasGardenShed"`
	Addons        []addonSelection `json:"addons"`

	Currency string `json:"currency"`
}

func (c *configRequest) quoteRequest(cur money.Currency) catalog.QuoteRequest {
	addons := make([]catalog.AddonSelection, len(c.Addons))
	for i, a := range c.Addons {
		addons[i] = catalog.AddonSelection{AddonID: a.AddonID, Quantity: a.Quantity}
	}
	return catalog.QuoteRequest{
		DesignID:    c.DesignID,
		GlazeID:     c.GlazeID,
		RoofColorID: c.RoofColorID,
		Dimensions: catalog.Dimensions{
			Length: c.Length,
			Width:  c.Width,
			Height: c.Height,
		},
		HasDivider:    c.HasDivider,
		HasGutter:     c.HasGutter,
		HasGardenShed: c.HasGardenShed,
		Addons:        addons,
		Currency:      cur,
	}
}

type quoteResponse struct {
	ProductID int64  `json:"productId"`
	Currency  string `json:"currency"`
	UnitPrice string `json:"unitPrice"`
}

// QuoteProduct prices one configuration without touching the cart.
func (h *Handler) QuoteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req configRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	cur, err := money.ParseCurrency(req.Currency)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	price, err := catalog.Quote(p, req.quoteRequest(cur))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, quoteResponse{
		ProductID: p.ID,
		Currency:  string(cur),
		UnitPrice: amt(price),
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}
