// Package invoicing talks to the external invoicing provider. The provider
// exposes a form-over-HTTP API with a {error, error_message, data} response
// envelope; every document lives under data.Invoice.
package invoicing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/drevniko/eshop-backend/internal/domain/order"
)

// ProviderError wraps any failure of a provider call. The caller cannot
// distinguish timeouts from rejections; everything is retryable from its
// point of view.
type ProviderError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("invoicing provider: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("invoicing provider: %s failed", e.Op)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Config holds the provider credentials and endpoint.
type Config struct {
	BaseURL string
	Email   string
	APIKey  string
	// Timeout bounds every provider call. Zero means 15s.
	Timeout time.Duration
}

// Client implements order.InvoiceProvider against the provider API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ order.InvoiceProvider = (*Client)(nil)

// NewClient creates a provider client with an instrumented, timeout-bounded
// HTTP transport.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CreateProforma issues the deposit request document.
func (c *Client) CreateProforma(ctx context.Context, o *order.Order) (*order.Document, error) {
	return c.createInvoice(ctx, "create proforma", "proforma", o)
}

// CreateTaxDocument issues the receipt for a received deposit.
func (c *Client) CreateTaxDocument(ctx context.Context, o *order.Order) (*order.Document, error) {
	return c.createInvoice(ctx, "create tax document", "tax_document", o)
}

// CreateFinalInvoice issues the settlement invoice.
func (c *Client) CreateFinalInvoice(ctx context.Context, o *order.Order) (*order.Document, error) {
	return c.createInvoice(ctx, "create final invoice", "regular", o)
}

// SendByEmail asks the provider to email the document to the customer.
func (c *Client) SendByEmail(ctx context.Context, invoiceID int64, email, subject string) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("invoice_id")
	e.Int64(invoiceID)
	e.FieldStart("to")
	e.Str(email)
	e.FieldStart("subject")
	e.Str(subject)
	e.ObjEnd()

	_, err := c.post(ctx, "send by email", "/invoices/send.json", e.Bytes())
	return err
}

// MarkAsSent flags the document as delivered without the provider sending
// anything, for invoices forwarded from the shop's own mailbox.
func (c *Client) MarkAsSent(ctx context.Context, invoiceID int64, email, subject string) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("InvoiceEmail")
	e.ObjStart()
	e.FieldStart("invoice_id")
	e.Int64(invoiceID)
	e.FieldStart("email")
	e.Str(email)
	e.FieldStart("subject")
	e.Str(subject)
	e.ObjEnd()
	e.ObjEnd()

	_, err := c.post(ctx, "mark as sent", "/invoices/mark_as_sent", e.Bytes())
	return err
}

// MarkAsPaid records a payment against the document at the provider.
func (c *Client) MarkAsPaid(ctx context.Context, invoiceID int64, amount decimal.Decimal, paidAt time.Time) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("InvoicePayment")
	e.ObjStart()
	e.FieldStart("invoice_id")
	e.Int64(invoiceID)
	e.FieldStart("amount")
	e.Str(amount.StringFixed(2))
	e.FieldStart("payment_type")
	e.Str("transfer")
	e.FieldStart("created")
	e.Str(paidAt.Format("2006-01-02"))
	e.ObjEnd()
	e.ObjEnd()

	_, err := c.post(ctx, "mark as paid", "/invoice_payments/add.json", e.Bytes())
	return err
}

func (c *Client) createInvoice(ctx context.Context, op, invoiceType string, o *order.Order) (*order.Document, error) {
	body := encodeInvoice(invoiceType, o)
	doc, err := c.post(ctx, op, "/invoices/create.json", body)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// post sends the payload and parses the response envelope. A non-zero
// "error" field in a 200 response is still a provider failure.
func (c *Client) post(ctx context.Context, op, path string, body []byte) (*order.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("SFAPI email=%s&apikey=%s", c.cfg.Email, c.cfg.APIKey))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if env.errCode != 0 {
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Message: env.errMessage}
	}
	if env.invoiceID == 0 {
		// Calls like send or mark-as-paid return no document.
		return nil, nil
	}
	return &order.Document{
		ID:     env.invoiceID,
		Number: env.invoiceNumber,
		PDFURL: c.pdfURL(env.invoiceID, env.token),
	}, nil
}

func (c *Client) pdfURL(id int64, token string) string {
	if token == "" {
		return ""
	}
	return fmt.Sprintf("%s/invoices/pdf/%d/token:%s", c.cfg.BaseURL, id, token)
}

type envelope struct {
	errCode       int
	errMessage    string
	invoiceID     int64
	invoiceNumber string
	token         string
}

func parseEnvelope(raw []byte) (*envelope, error) {
	var env envelope
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "error":
			v, err := d.Int()
			if err != nil {
				return err
			}
			env.errCode = v
			return nil
		case "error_message":
			v, err := d.Str()
			if err != nil {
				return err
			}
			env.errMessage = v
			return nil
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "Invoice" {
					return d.Skip()
				}
				return d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "id":
						v, err := d.Int64()
						if err != nil {
							return err
						}
						env.invoiceID = v
						return nil
					case "invoice_no_formatted":
						v, err := d.Str()
						if err != nil {
							return err
						}
						env.invoiceNumber = v
						return nil
					case "token":
						v, err := d.Str()
						if err != nil {
							return err
						}
						env.token = v
						return nil
					default:
						return d.Skip()
					}
				})
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parsing provider response: %w", err)
	}
	return &env, nil
}
