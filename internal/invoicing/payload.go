package invoicing

import (
	"fmt"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/money"
	"github.com/drevniko/eshop-backend/internal/domain/order"
)

var one = decimal.NewFromInt(1)

type invoiceLine struct {
	name        string
	description string
	quantity    int
	unitPrice   decimal.Decimal
	taxPct      decimal.Decimal
}

// encodeInvoice renders the provider payload for one order document. The
// variable symbol is always the order code so incoming payments can be
// matched back.
func encodeInvoice(invoiceType string, o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("Invoice")
	e.ObjStart()
	e.FieldStart("type")
	e.Str(invoiceType)
	e.FieldStart("variable")
	e.Str(o.Code)
	e.FieldStart("invoice_currency")
	e.Str(string(o.Currency))
	e.ObjEnd()

	e.FieldStart("InvoiceItem")
	e.ArrStart()
	for _, ln := range invoiceLines(invoiceType, o) {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(ln.name)
		if ln.description != "" {
			e.FieldStart("description")
			e.Str(ln.description)
		}
		e.FieldStart("quantity")
		e.Int(ln.quantity)
		e.FieldStart("unit_price")
		e.Str(ln.unitPrice.StringFixed(money.Scale))
		e.FieldStart("tax")
		e.Str(ln.taxPct.String())
		e.ObjEnd()
	}
	e.ArrEnd()

	e.ObjEnd()
	return e.Bytes()
}

func invoiceLines(invoiceType string, o *order.Order) []invoiceLine {
	switch invoiceType {
	case "proforma":
		// A deposit request is not a tax document; the deposit is billed
		// gross with no tax of its own.
		return []invoiceLine{{
			name:      fmt.Sprintf("Deposit for order %s", o.Code),
			quantity:  1,
			unitPrice: o.DepositAmount,
			taxPct:    decimal.Zero,
		}}
	case "tax_document":
		rate := dominantRate(o)
		return []invoiceLine{{
			name:      fmt.Sprintf("Received deposit for order %s", o.Code),
			quantity:  1,
			unitPrice: netOf(o.DepositAmount, rate),
			taxPct:    percent(rate),
		}}
	default:
		lines := make([]invoiceLine, 0, len(o.Items)+3)
		for _, it := range o.Items {
			taxPct := percent(it.TaxRate)
			if it.ReverseCharge {
				taxPct = decimal.Zero
			}
			lines = append(lines, invoiceLine{
				name:        it.ProductName,
				description: it.Description,
				quantity:    it.Quantity,
				unitPrice:   it.UnitPrice,
				taxPct:      taxPct,
			})
		}
		if o.Discount.Sign() > 0 {
			name := "Discount"
			if o.CouponCode != "" {
				name = fmt.Sprintf("Discount (%s)", o.CouponCode)
			}
			lines = append(lines, invoiceLine{
				name:      name,
				quantity:  1,
				unitPrice: o.Discount.Neg(),
				taxPct:    decimal.Zero,
			})
		}
		if o.ShippingCost.Sign() > 0 {
			lines = append(lines, invoiceLine{
				name:      "Shipping",
				quantity:  1,
				unitPrice: o.ShippingCost,
				taxPct:    percent(o.ShippingTaxRate),
			})
		}
		if o.HasDeposit() {
			rate := dominantRate(o)
			lines = append(lines, invoiceLine{
				name:      fmt.Sprintf("Deposit paid (order %s)", o.Code),
				quantity:  1,
				unitPrice: netOf(o.DepositAmount, rate).Neg(),
				taxPct:    percent(rate),
			})
		}
		return lines
	}
}

// dominantRate picks the tax rate the deposit was effectively taxed at; the
// first non-reverse-charge line decides.
func dominantRate(o *order.Order) decimal.Decimal {
	for _, it := range o.Items {
		if !it.ReverseCharge && it.TaxRate.Sign() > 0 {
			return it.TaxRate
		}
	}
	return decimal.Zero
}

// netOf extracts the tax-exclusive base from a gross amount.
func netOf(gross, rate decimal.Decimal) decimal.Decimal {
	if rate.Sign() <= 0 {
		return gross
	}
	return money.Round(gross.Div(one.Add(rate)))
}

func percent(rate decimal.Decimal) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(100))
}
