package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Webhook event kinds sent by the invoicing provider.
const (
	EventInvoicePaid  = "invoice.paid"
	EventProformaPaid = "proforma.paid"
)

// paymentTolerance absorbs rounding differences between the provider's
// recorded amount and ours.
var paymentTolerance = decimal.RequireFromString("0.01")

// Notification is a parsed provider payment webhook. The variable symbol of
// the payment is the order code.
type Notification struct {
	Kind           string
	VariableSymbol string
	Amount         decimal.Decimal
	Date           time.Time
	ProviderID     int64
}

// ProcessPaymentWebhook matches an incoming payment against the order named
// by its variable symbol. A payment close to the deposit records the
// deposit; one close to the remaining balance or the full total settles the
// order. Anything else, including an unknown order code, is acknowledged
// and logged so the provider stops retrying, since retrying cannot fix a
// mismatched amount. The order row stays locked for the whole match, so a
// webhook racing an admin action sees a consistent payment state.
func (s *Service) ProcessPaymentWebhook(ctx context.Context, n Notification) error {
	lg := zctx.From(ctx).With(
		zap.String("kind", n.Kind),
		zap.String("variable_symbol", n.VariableSymbol),
		zap.String("amount", n.Amount.String()),
	)

	found, err := s.orders.FindByCode(ctx, n.VariableSymbol)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			lg.Warn("payment for unknown order, acknowledging")
			return nil
		}
		return err
	}

	var (
		depositRecorded bool
		settled         bool
		updated         *Order
	)
	err = s.orders.WithOrder(ctx, found.ID, func(_ context.Context, o *Order) error {
		updated = o
		switch {
		case o.HasDeposit() && o.DepositPaidAt == nil && near(n.Amount, o.DepositAmount):
			t := n.Date
			o.DepositPaidAt = &t
			o.PaymentStatus = DepositPaid
			depositRecorded = true
		case o.PaymentStatus != Paid && (near(n.Amount, o.RemainingBalance()) || near(n.Amount, o.Total)):
			t := n.Date
			o.PaidAt = &t
			if o.HasDeposit() && o.DepositPaidAt == nil {
				o.DepositPaidAt = &t
			}
			o.PaymentStatus = Paid
			settled = true
		default:
			lg.Warn("payment amount matches neither deposit nor balance, acknowledging",
				zap.String("order", o.Code),
				zap.String("deposit", o.DepositAmount.String()),
				zap.String("total", o.Total.String()))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if depositRecorded {
		// The receipt for the deposit should follow promptly, but its
		// generation must not fail the webhook; admins can regenerate it.
		if _, err := s.GenerateTaxDocumentForDeposit(ctx, updated.ID); err != nil {
			lg.Warn("generate tax document after deposit payment",
				zap.String("order", updated.Code), zap.Error(err))
		}
	}
	if depositRecorded || settled {
		lg.Info("payment recorded",
			zap.String("order", updated.Code),
			zap.String("status", string(updated.PaymentStatus)))
	}
	return nil
}

func near(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(paymentTolerance)
}
