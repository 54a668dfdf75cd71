package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/money"
)

// UnavailableOptionError indicates a selected option id is not in the
// product's allowed set. It guards against cross-product option reuse.
type UnavailableOptionError struct {
	ProductID int64
	Attribute string
	OptionID  int64
}

func (e *UnavailableOptionError) Error() string {
	return fmt.Sprintf("%s option %d is not available for product %d", e.Attribute, e.OptionID, e.ProductID)
}

// DimensionOutOfRangeError names the dimension violating its configured bounds.
type DimensionOutOfRangeError struct {
	Dimension string
	Value     decimal.Decimal
	Min       decimal.Decimal
	Max       decimal.Decimal
}

func (e *DimensionOutOfRangeError) Error() string {
	return fmt.Sprintf("%s %s cm is outside the allowed range [%s, %s]",
		e.Dimension, e.Value, e.Min, e.Max)
}

// QuoteError covers structural problems with a quote request (inactive
// product, missing configurator, missing dimension).
type QuoteError struct {
	ProductID int64
	Reason    string
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("cannot price product %d: %s", e.ProductID, e.Reason)
}

// Dimensions are the three custom-product measurements in centimeters.
type Dimensions struct {
	Length decimal.Decimal
	Width  decimal.Decimal // depth
	Height decimal.Decimal
}

// AddonSelection pairs an addon id with a quantity.
type AddonSelection struct {
	AddonID  int64
	Quantity int
}

// QuoteRequest describes one product configuration to price.
type QuoteRequest struct {
	// Standard attribute selections; zero means "not selected".
	DesignID    int64
	GlazeID     int64
	RoofColorID int64

	// Custom configuration.
	Dimensions    Dimensions
	HasDivider    bool
	HasGutter     bool
	HasGardenShed bool
	Addons        []AddonSelection

	Currency money.Currency
}

// Quote computes the unit price of a product configuration in the requested
// currency. It is a pure function of its inputs: the same request always
// yields the same price, so a client-side preview matches the price
// confirmed at add-to-cart time. Rounding to the money scale happens once,
// on the final sum.
func Quote(p *Product, req QuoteRequest) (decimal.Decimal, error) {
	if p == nil {
		return decimal.Zero, &QuoteError{Reason: "product is nil"}
	}
	if !p.Active {
		return decimal.Zero, &QuoteError{ProductID: p.ID, Reason: "product is inactive"}
	}

	switch p.Kind {
	case KindStandard:
		return quoteStandard(p, req)
	case KindCustom:
		return quoteCustom(p, req)
	default:
		return decimal.Zero, &QuoteError{ProductID: p.ID, Reason: fmt.Sprintf("unknown product kind %q", p.Kind)}
	}
}

func quoteStandard(p *Product, req QuoteRequest) (decimal.Decimal, error) {
	if p.Standard == nil {
		return decimal.Zero, &QuoteError{ProductID: p.ID, Reason: "standard product is missing its spec"}
	}

	total := p.Standard.BasePrice.In(req.Currency)

	for _, sel := range []struct {
		attribute string
		id        int64
		options   []Option
	}{
		{"design", req.DesignID, p.Standard.Designs},
		{"glaze", req.GlazeID, p.Standard.Glazes},
		{"roof color", req.RoofColorID, p.Standard.RoofColors},
	} {
		if sel.id == 0 {
			continue
		}
		opt, ok := OptionByID(sel.options, sel.id)
		if !ok {
			return decimal.Zero, &UnavailableOptionError{ProductID: p.ID, Attribute: sel.attribute, OptionID: sel.id}
		}
		total = total.Add(opt.Surcharge.In(req.Currency))
	}

	return money.Round(money.FloorZero(total)), nil
}

func quoteCustom(p *Product, req QuoteRequest) (decimal.Decimal, error) {
	cfg := p.Configurator
	if cfg == nil {
		return decimal.Zero, &QuoteError{ProductID: p.ID, Reason: "custom product is missing its configurator"}
	}

	dims := req.Dimensions
	for _, d := range []struct {
		name   string
		value  decimal.Decimal
		bounds Bounds
	}{
		{"length", dims.Length, cfg.Length},
		{"width", dims.Width, cfg.Width},
		{"height", dims.Height, cfg.Height},
	} {
		if d.value.IsZero() {
			return decimal.Zero, &QuoteError{ProductID: p.ID, Reason: "missing dimension " + d.name}
		}
		if !d.bounds.Contains(d.value) {
			return decimal.Zero, &DimensionOutOfRangeError{
				Dimension: d.name, Value: d.value, Min: d.bounds.Min, Max: d.bounds.Max,
			}
		}
	}

	cur := req.Currency
	total := dims.Length.Mul(cfg.PricePerCmLength.In(cur)).
		Add(dims.Width.Mul(cfg.PricePerCmWidth.In(cur))).
		Add(dims.Height.Mul(cfg.PricePerCmHeight.In(cur)))

	if req.HasDivider {
		total = total.Add(dims.Width.Mul(cfg.DividerPricePerCmWidth.In(cur)))
	}
	if req.HasGutter {
		total = total.Add(cfg.GutterPrice.In(cur))
	}
	if req.HasGardenShed {
		total = total.Add(cfg.GardenShedPrice.In(cur))
	}

	for _, sel := range req.Addons {
		if sel.Quantity <= 0 {
			continue
		}
		addon, ok := AddonByID(cfg.Addons, sel.AddonID)
		if !ok {
			return decimal.Zero, &UnavailableOptionError{ProductID: p.ID, Attribute: "addon", OptionID: sel.AddonID}
		}
		unit := addonUnitPrice(addon, dims, cur)
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(sel.Quantity))))
	}

	return money.Round(money.FloorZero(total)), nil
}

// addonUnitPrice derives a single addon's price from its pricing type and
// the configured dimensions. Unknown pricing types contribute zero.
func addonUnitPrice(a Addon, dims Dimensions, cur money.Currency) decimal.Decimal {
	switch a.Pricing {
	case AddonFixed:
		return a.Price.In(cur)
	case AddonPerCmWidth:
		return a.PricePerUnit.In(cur).Mul(dims.Width)
	case AddonPerCmLength:
		return a.PricePerUnit.In(cur).Mul(dims.Length)
	case AddonPerCmHeight:
		return a.PricePerUnit.In(cur).Mul(dims.Height)
	case AddonPerSqMeter:
		hundred := decimal.NewFromInt(100)
		area := dims.Length.Div(hundred).Mul(dims.Width.Div(hundred))
		return a.PricePerUnit.In(cur).Mul(area)
	default:
		return decimal.Zero
	}
}

// OptionByID finds an option in a set.
func OptionByID(opts []Option, id int64) (Option, bool) {
	for _, o := range opts {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// AddonByID finds an addon in a configurator's set.
func AddonByID(addons []Addon, id int64) (Addon, bool) {
	for _, a := range addons {
		if a.ID == id {
			return a, true
		}
	}
	return Addon{}, false
}

// AddonQuote derives an addon's unit price per currency for the given
// dimensions, for snapshotting on a cart line.
func AddonQuote(a Addon, dims Dimensions) money.Pair {
	return money.Pair{
		CZK: money.Round(addonUnitPrice(a, dims, money.CZK)),
		EUR: money.Round(addonUnitPrice(a, dims, money.EUR)),
	}
}
