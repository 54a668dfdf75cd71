package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/drevniko/eshop-backend/internal/domain/order"
)

const webhookDateLayout = "2006-01-02"

// parsePaymentWebhook decodes the provider's payment notification. Amounts
// arrive as JSON numbers or strings depending on the provider version, so
// both are accepted.
func parsePaymentWebhook(body []byte) (order.Notification, error) {
	var n order.Notification
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "event":
			v, err := d.Str()
			if err != nil {
				return err
			}
			n.Kind = v
			return nil
		case "variable_symbol":
			v, err := d.Str()
			if err != nil {
				return err
			}
			n.VariableSymbol = v
			return nil
		case "amount":
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				if err != nil {
					return err
				}
				amount, err := decimal.NewFromString(v)
				if err != nil {
					return err
				}
				n.Amount = amount
				return nil
			default:
				raw, err := d.Raw()
				if err != nil {
					return err
				}
				amount, err := decimal.NewFromString(raw.String())
				if err != nil {
					return err
				}
				n.Amount = amount
				return nil
			}
		case "date":
			v, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(webhookDateLayout, v)
			if err != nil {
				return err
			}
			n.Date = t
			return nil
		case "invoice_id":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			n.ProviderID = v
			return nil
		default:
			return d.Skip()
		}
	})
	return n, err
}

// PaymentWebhook receives provider payment notifications. Unknown event
// kinds are acknowledged so the provider stops retrying events this service
// does not consume.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	n, err := parsePaymentWebhook(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	ctx := r.Context()
	switch n.Kind {
	case order.EventInvoicePaid, order.EventProformaPaid:
	default:
		zctx.From(ctx).Info("ignoring webhook event", zap.String("event", n.Kind))
		w.WriteHeader(http.StatusOK)
		return
	}
	if n.VariableSymbol == "" {
		respondError(w, http.StatusBadRequest, "missing variable_symbol")
		return
	}
	if n.Date.IsZero() {
		n.Date = time.Now()
	}

	if err := h.orders.ProcessPaymentWebhook(ctx, n); err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
