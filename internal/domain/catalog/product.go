// Package catalog holds the product model and the dynamic price calculator.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Kind distinguishes fixed-price products from made-to-order configurable ones.
type Kind string

const (
	// KindStandard products have a fixed base price and closed option sets.
	KindStandard Kind = "standard"
	// KindCustom products are priced from dimensions via a Configurator.
	KindCustom Kind = "custom"
)

// Option is a selectable product attribute (design, glaze finish, roof
// color) carrying its own surcharge per currency.
type Option struct {
	ID        int64
	Name      string
	Surcharge money.Pair
}

// StandardSpec holds the pricing data specific to standard products.
type StandardSpec struct {
	BasePrice  money.Pair
	Designs    []Option
	Glazes     []Option
	RoofColors []Option
}

// AddonPricing enumerates how an addon price is derived from dimensions.
type AddonPricing string

const (
	AddonFixed       AddonPricing = "FIXED"
	AddonPerCmWidth  AddonPricing = "PER_CM_WIDTH"
	AddonPerCmLength AddonPricing = "PER_CM_LENGTH"
	AddonPerCmHeight AddonPricing = "PER_CM_HEIGHT"
	AddonPerSqMeter  AddonPricing = "PER_SQUARE_METER"
)

// Addon is an optional extra for custom products.
type Addon struct {
	ID           int64
	Name         string
	Pricing      AddonPricing
	Price        money.Pair // used when Pricing == AddonFixed
	PricePerUnit money.Pair // used for dimension-derived pricing
}

// Bounds is an inclusive [Min, Max] range for one dimension, in centimeters.
type Bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Contains reports whether v lies within the inclusive bounds.
func (b Bounds) Contains(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(b.Min) && v.LessThanOrEqual(b.Max)
}

// Configurator holds the per-centimeter price coefficients and dimension
// bounds for a custom product. All prices are duplicated per currency; CZK
// and EUR are priced independently, never converted.
type Configurator struct {
	ProductID int64

	Length Bounds
	Width  Bounds // depth
	Height Bounds

	PricePerCmLength money.Pair
	PricePerCmWidth  money.Pair
	PricePerCmHeight money.Pair

	// DividerPricePerCmWidth prices a divider wall by the shed depth.
	DividerPricePerCmWidth money.Pair
	GutterPrice            money.Pair
	GardenShedPrice        money.Pair

	Addons []Addon
}

// Product is a catalog entry. Exactly one of Standard or Configurator is set
// according to Kind; deactivation is soft so historical order lines keep a
// valid reference.
type Product struct {
	ID        int64
	Name      string
	Slug      string
	Kind      Kind
	Active    bool
	TaxRateID int64

	Standard     *StandardSpec // Kind == KindStandard
	Configurator *Configurator // Kind == KindCustom
}

// IsCustom reports whether the product is configurable per order.
func (p *Product) IsCustom() bool {
	return p.Kind == KindCustom
}

// Repository defines read/write operations for the product catalog.
type Repository interface {
	List(ctx context.Context, activeOnly bool) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	Save(ctx context.Context, p *Product) error
	Deactivate(ctx context.Context, id int64) error
}

// TaxRateRepository resolves tax rates referenced from products and lines.
type TaxRateRepository interface {
	GetByID(ctx context.Context, id int64) (*money.TaxRate, error)
	List(ctx context.Context) ([]money.TaxRate, error)
}
