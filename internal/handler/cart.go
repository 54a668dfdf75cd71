package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/cart"
	"github.com/drevniko/eshop-backend/internal/domain/catalog"
	"github.com/drevniko/eshop-backend/internal/domain/coupon"
	"github.com/drevniko/eshop-backend/internal/domain/money"
	"github.com/drevniko/eshop-backend/internal/session"
)

const sessionCookie = "cart_session"

// sessionID reads the cart session cookie, issuing a fresh id when absent.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(session.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// loadCart fetches the session cart, creating an empty one in the requested
// currency when the session has none yet.
func (h *Handler) loadCart(ctx context.Context, sessionID string, cur money.Currency) (*cart.Cart, error) {
	c, err := h.carts.Get(ctx, sessionID)
	if err == nil {
		return c, nil
	}
	if err == session.ErrNotFound {
		return cart.New(cur), nil
	}
	return nil, err
}

type cartLineJSON struct {
	Fingerprint string `json:"fingerprint"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Custom      bool   `json:"custom"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	LineTotal   string `json:"lineTotal"`
	LineTax     string `json:"lineTax"`
}

type taxGroupJSON struct {
	Rate string `json:"rate"`
	Base string `json:"base"`
	Tax  string `json:"tax"`
}

type cartJSON struct {
	Currency   string         `json:"currency"`
	Lines      []cartLineJSON `json:"lines"`
	CouponCode string         `json:"couponCode,omitempty"`

	Subtotal     string         `json:"subtotal"`
	Discount     string         `json:"discount"`
	TaxBreakdown []taxGroupJSON `json:"taxBreakdown"`
	TotalTax     string         `json:"totalTax"`
	// Total excludes shipping, which is priced at checkout.
	Total string `json:"total"`
}

// renderCart computes the cart totals for its active currency. The applied
// coupon is re-resolved on every render so a deactivated coupon immediately
// stops discounting.
func (h *Handler) renderCart(ctx context.Context, c *cart.Cart) (cartJSON, error) {
	cur := c.Currency

	discount := decimal.Zero
	couponCode := ""
	if c.Coupon != nil {
		cp, err := h.coupons.FindByID(ctx, c.Coupon.CouponID)
		switch {
		case err == nil && cp.Active:
			couponCode = cp.Code
			discount = c.CapDiscount(coupon.DiscountAmount(cp, c.Subtotal(cur), cur), cur)
		case err == nil || errors.Is(err, coupon.ErrNotFound):
			c.RemoveCoupon()
		default:
			return cartJSON{}, err
		}
	}

	lines := make([]cartLineJSON, len(c.Lines))
	for i := range c.Lines {
		it := &c.Lines[i]
		lines[i] = cartLineJSON{
			Fingerprint: it.Fingerprint(),
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Custom:      it.Custom,
			Quantity:    it.Quantity,
			UnitPrice:   amt(it.UnitPrice.In(cur)),
			LineTotal:   amt(it.LineTotal(cur)),
			LineTax:     amt(it.LineTax(cur)),
		}
	}

	groups := c.TaxBreakdown(cur)
	breakdown := make([]taxGroupJSON, len(groups))
	for i, g := range groups {
		breakdown[i] = taxGroupJSON{Rate: g.Rate.String(), Base: amt(g.Base), Tax: amt(g.Tax)}
	}

	return cartJSON{
		Currency:     string(cur),
		Lines:        lines,
		CouponCode:   couponCode,
		Subtotal:     amt(c.Subtotal(cur)),
		Discount:     amt(discount),
		TaxBreakdown: breakdown,
		TotalTax:     amt(c.TotalTax(cur)),
		Total:        amt(c.TotalBeforeShipping(discount, cur)),
	}, nil
}

// GetCart returns the session cart with its totals.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionID(w, r)
	cur, err := money.ParseCurrency(r.URL.Query().Get("currency"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.loadCart(r.Context(), sid, cur)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	out, err := h.renderCart(r.Context(), c)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

type addItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	configRequest
}

// AddCartItem prices the configuration in both currencies, snapshots it as a
// cart line and merges it into any line with the same fingerprint.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionID(w, r)
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Quantity <= 0 {
		h.respondDomainError(w, r, cart.ErrInvalidQuantity)
		return
	}
	cur, err := money.ParseCurrency(req.Currency)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	c, err := h.loadCart(ctx, sid, cur)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	item, err := h.buildItem(ctx, &req)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if _, err := c.AddItem(*item); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if err := h.carts.Put(ctx, sid, c); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	out, err := h.renderCart(ctx, c)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, out)
}

// buildItem snapshots a full cart line from the catalog: a unit price per
// currency, resolved option names and the product's tax rate.
func (h *Handler) buildItem(ctx context.Context, req *addItemRequest) (*cart.Item, error) {
	p, err := h.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	priceCZK, err := catalog.Quote(p, req.quoteRequest(money.CZK))
	if err != nil {
		return nil, err
	}
	priceEUR, err := catalog.Quote(p, req.quoteRequest(money.EUR))
	if err != nil {
		return nil, err
	}

	rate, err := h.taxRates.GetByID(ctx, p.TaxRateID)
	if err != nil {
		return nil, err
	}

	item := &cart.Item{
		ProductID:   p.ID,
		ProductName: p.Name,
		ProductSlug: p.Slug,
		Custom:      p.IsCustom(),
		Quantity:    req.Quantity,

		DesignID:    req.DesignID,
		GlazeID:     req.GlazeID,
		RoofColorID: req.RoofColorID,

		Length:        req.Length,
		Width:         req.Width,
		Height:        req.Height,
		RoofOverstep:  req.RoofOverstep,
		HasDivider:    req.HasDivider,
		HasGutter:     req.HasGutter,
		HasGardenShed: req.HasGardenShed,

		TaxRateID:     rate.ID,
		TaxRate:       rate.Rate,
		ReverseCharge: rate.ReverseCharge,

		UnitPrice: money.Pair{CZK: priceCZK, EUR: priceEUR},
	}

	if s := p.Standard; s != nil {
		if opt, ok := catalog.OptionByID(s.Designs, req.DesignID); ok {
			item.DesignName = opt.Name
		}
		if opt, ok := catalog.OptionByID(s.Glazes, req.GlazeID); ok {
			item.GlazeName = opt.Name
		}
		if opt, ok := catalog.OptionByID(s.RoofColors, req.RoofColorID); ok {
			item.RoofColorName = opt.Name
		}
	}
	if cfg := p.Configurator; cfg != nil {
		dims := catalog.Dimensions{Length: req.Length, Width: req.Width, Height: req.Height}
		for _, sel := range req.Addons {
			if sel.Quantity <= 0 {
				continue
			}
			// Quote already validated the addon ids.
			a, _ := catalog.AddonByID(cfg.Addons, sel.AddonID)
			item.Addons = append(item.Addons, cart.AddonLine{
				AddonID:   a.ID,
				Name:      a.Name,
				Quantity:  sel.Quantity,
				UnitPrice: catalog.AddonQuote(a, dims),
			})
		}
	}
	return item, nil
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem sets a line quantity; zero removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionID(w, r)
	var req updateItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	h.mutateCart(w, r, sid, func(c *cart.Cart) error {
		return c.UpdateQuantity(r.PathValue("fingerprint"), req.Quantity)
	})
}

// RemoveCartItem deletes a line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionID(w, r)
	h.mutateCart(w, r, sid, func(c *cart.Cart) error {
		return c.RemoveItem(r.PathValue("fingerprint"))
	})
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// ApplyCoupon validates a coupon against the cart and fills the single
// coupon slot. Session carts belong to guests until checkout, so the
// per-customer limit is checked again there.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionID(w, r)
	var req applyCouponRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	ctx := r.Context()
	cp, err := h.coupons.FindByCode(ctx, req.Code)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	h.mutateCart(w, r, sid, func(c *cart.Cart) error {
		err := h.validator.Validate(ctx, cp, c.Subtotal(c.Currency), c.Currency, coupon.Redeemer{Guest: true})
		if err != nil {
			return err
		}
		c.ApplyCoupon(cp.ID, cp.Code)
		return nil
	})
}

// RemoveCoupon clears the coupon slot.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	sid := h.sessionID(w, r)
	h.mutateCart(w, r, sid, func(c *cart.Cart) error {
		c.RemoveCoupon()
		return nil
	})
}

// mutateCart loads the session cart, applies fn, persists and renders it.
func (h *Handler) mutateCart(w http.ResponseWriter, r *http.Request, sid string, fn func(c *cart.Cart) error) {
	ctx := r.Context()
	c, err := h.loadCart(ctx, sid, money.CZK)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if err := fn(c); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	if err := h.carts.Put(ctx, sid, c); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	out, err := h.renderCart(ctx, c)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}
