// Package cart implements the session shopping cart: line identity via
// configuration fingerprints, quantity merging, and multi-currency totals.
package cart

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/money"
)

// AddonLine records one selected addon on a cart item.
type AddonLine struct {
	AddonID  int64  `json:"addonId"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	// UnitPrice snapshots the addon price at selection time.
	UnitPrice money.Pair `json:"unitPrice"`
}

// Item is one cart line. Unit prices and the tax rate are snapshotted when
// the item is added; later catalog edits never change an existing line, so
// the cart total stays stable for the whole session.
type Item struct {
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	ProductSlug string `json:"productSlug"`
	Custom      bool   `json:"custom"`
	Quantity    int    `json:"quantity"`

	DesignID      int64  `json:"designId,omitempty"`
	DesignName    string `json:"designName,omitempty"`
	GlazeID       int64  `json:"glazeId,omitempty"`
	GlazeName     string `json:"glazeName,omitempty"`
	RoofColorID   int64  `json:"roofColorId,omitempty"`
	RoofColorName string `json:"roofColorName,omitempty"`

	// Custom configuration. Dimensions are in centimeters.
	Length        decimal.Decimal `json:"length,omitempty"`
	Width         decimal.Decimal `json:"width,omitempty"`
	Height        decimal.Decimal `json:"height,omitempty"`
	RoofOverstep  string          `json:"roofOverstep,omitempty"`
	HasDivider    bool            `json:"hasDivider,omitempty"`
	HasGutter     bool            `json:"hasGutter,omitempty"`
	HasGardenShed bool            `json:"hasGardenShed,omitempty"`
	Addons        []AddonLine     `json:"addons,omitempty"`

	TaxRateID     int64           `json:"taxRateId"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	ReverseCharge bool            `json:"reverseCharge"`

	UnitPrice money.Pair `json:"unitPrice"`
}

// Fingerprint derives the deterministic line identity from every attribute
// that affects the configuration: product id, custom flag, option ids,
// dimensions, boolean add-ons, addon selections and the tax-rate id. Two
// submissions with an identical fingerprint are the same line and merge;
// any differing attribute yields a distinct line. The canonical key string
// is hashed to a fixed-length hex token usable in URLs and store keys.
func (it *Item) Fingerprint() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "P%d-T%d", it.ProductID, it.TaxRateID)

	if it.Custom {
		sb.WriteString("-C")
		fmt.Fprintf(&sb, "-DIMS[l=%s;w=%s;h=%s]",
			canonDim(it.Length), canonDim(it.Width), canonDim(it.Height))
		writeOptionIDs(&sb, it)
		if it.RoofOverstep != "" {
			fmt.Fprintf(&sb, "-RO(%s)", it.RoofOverstep)
		}
		if it.HasDivider {
			sb.WriteString("-Di")
		}
		if it.HasGutter {
			sb.WriteString("-Gu")
		}
		if it.HasGardenShed {
			sb.WriteString("-Sh")
		}
		if len(it.Addons) > 0 {
			ids := make([]AddonLine, len(it.Addons))
			copy(ids, it.Addons)
			sort.Slice(ids, func(i, j int) bool { return ids[i].AddonID < ids[j].AddonID })
			sb.WriteString("-ADNS[")
			for _, a := range ids {
				fmt.Fprintf(&sb, "%dx%d;", a.AddonID, a.Quantity)
			}
			sb.WriteString("]")
		}
	} else {
		sb.WriteString("-S")
		writeOptionIDs(&sb, it)
	}

	h := fnv.New64a()
	h.Write([]byte(sb.String()))
	return fmt.Sprintf("%016x", h.Sum64())
}

func writeOptionIDs(sb *strings.Builder, it *Item) {
	if it.DesignID != 0 {
		fmt.Fprintf(sb, "-D%d", it.DesignID)
	}
	if it.GlazeID != 0 {
		fmt.Fprintf(sb, "-G%d", it.GlazeID)
	}
	if it.RoofColorID != 0 {
		fmt.Fprintf(sb, "-RC%d", it.RoofColorID)
	}
}

// canonDim normalizes a dimension so 120 and 120.0 fingerprint identically.
// Only trailing zeros are insignificant: a 100.005 and a 100.009 build are
// distinct configurations.
func canonDim(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// LineTotal is unit price times quantity for the given currency, pre-tax,
// rounded to the money scale.
func (it *Item) LineTotal(c money.Currency) decimal.Decimal {
	if it.Quantity <= 0 {
		return decimal.Zero
	}
	return money.Round(it.UnitPrice.In(c).Mul(decimal.NewFromInt(int64(it.Quantity))))
}

// LineTax is the tax amount for this line. Reverse-charge lines contribute
// zero regardless of the nominal rate.
func (it *Item) LineTax(c money.Currency) decimal.Decimal {
	rate := money.TaxRate{Rate: it.TaxRate, ReverseCharge: it.ReverseCharge}
	return rate.TaxAmount(it.LineTotal(c))
}
