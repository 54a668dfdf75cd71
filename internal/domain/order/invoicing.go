package order

import (
	"context"
	"fmt"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// The three-document workflow: a proforma asks for the deposit, a tax
// document acknowledges the received deposit, and the final invoice settles
// the rest. Each generate call is idempotent: once a provider id is stored
// on the order, repeat calls return the stored reference without touching
// the provider.
//
// Provider calls run outside any database transaction. Two concurrent
// generators may therefore both create a document; the single-round-trip
// conditional store picks exactly one winner and the loser's document is
// left orphaned at the provider (reconciled by ListMissingInvoiceID sweeps).

// GenerateProformaInvoice creates the deposit request document.
func (s *Service) GenerateProformaInvoice(ctx context.Context, orderID int64) (*Document, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.ProformaID != 0 {
		return &Document{ID: o.ProformaID, Number: o.ProformaNumber}, nil
	}
	if !o.HasDeposit() {
		return nil, &IllegalStateError{OrderCode: o.Code, Reason: "order has no deposit, generate the final invoice instead"}
	}

	doc, err := s.provider.CreateProforma(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("creating proforma for order %s: %w", o.Code, err)
	}
	return s.storeDocument(ctx, o, KindProforma, doc)
}

// GenerateTaxDocumentForDeposit creates the receipt for a paid deposit.
func (s *Service) GenerateTaxDocumentForDeposit(ctx context.Context, orderID int64) (*Document, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.TaxDocumentID != 0 {
		return &Document{ID: o.TaxDocumentID, Number: o.TaxDocumentNumber}, nil
	}
	if !o.HasDeposit() {
		return nil, &IllegalStateError{OrderCode: o.Code, Reason: "order has no deposit"}
	}
	if o.DepositPaidAt == nil {
		return nil, &IllegalStateError{OrderCode: o.Code, Reason: "deposit not paid yet"}
	}

	doc, err := s.provider.CreateTaxDocument(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("creating tax document for order %s: %w", o.Code, err)
	}
	return s.storeDocument(ctx, o, KindTaxDocument, doc)
}

// GenerateFinalInvoice creates the settlement invoice. On deposit orders the
// tax document must exist first so the final invoice can reference the
// already-taxed deposit.
func (s *Service) GenerateFinalInvoice(ctx context.Context, orderID int64) (*Document, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.FinalInvoiceID != 0 {
		return &Document{ID: o.FinalInvoiceID, Number: o.FinalInvoiceNumber}, nil
	}
	if o.HasDeposit() && o.TaxDocumentID == 0 {
		return nil, &IllegalStateError{OrderCode: o.Code, Reason: "tax document for the deposit must be generated first"}
	}

	doc, err := s.provider.CreateFinalInvoice(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("creating final invoice for order %s: %w", o.Code, err)
	}
	return s.storeDocument(ctx, o, KindFinal, doc)
}

// storeDocument persists the provider reference, resolving a lost race by
// returning the winner's document. The courtesy email send never fails the
// operation.
func (s *Service) storeDocument(ctx context.Context, o *Order, kind InvoiceKind, doc *Document) (*Document, error) {
	stored, err := s.orders.SetInvoiceDocument(ctx, o.ID, kind, *doc)
	if err != nil {
		return nil, fmt.Errorf("storing %s reference for order %s: %w", kind, o.Code, err)
	}
	if !stored {
		zctx.From(ctx).Warn("concurrent invoice generation, keeping first document",
			zap.String("order", o.Code), zap.String("kind", string(kind)),
			zap.Int64("orphaned_invoice_id", doc.ID))
		fresh, err := s.orders.FindByID(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindProforma:
			return &Document{ID: fresh.ProformaID, Number: fresh.ProformaNumber}, nil
		case KindTaxDocument:
			return &Document{ID: fresh.TaxDocumentID, Number: fresh.TaxDocumentNumber}, nil
		default:
			return &Document{ID: fresh.FinalInvoiceID, Number: fresh.FinalInvoiceNumber}, nil
		}
	}

	if o.Email != "" {
		if err := s.provider.SendByEmail(ctx, doc.ID, o.Email, documentSubject(kind, o.Code)); err != nil {
			zctx.From(ctx).Warn("send invoice by email",
				zap.String("order", o.Code), zap.Int64("invoice_id", doc.ID), zap.Error(err))
		}
	}
	return doc, nil
}

// SendInvoiceByEmail asks the provider to email an already generated
// document to the order's customer.
func (s *Service) SendInvoiceByEmail(ctx context.Context, orderID int64, kind InvoiceKind) error {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	invoiceID := o.InvoiceID(kind)
	if invoiceID == 0 {
		return &IllegalStateError{OrderCode: o.Code, Reason: fmt.Sprintf("%s not generated yet", kind)}
	}
	if o.Email == "" {
		return &IllegalStateError{OrderCode: o.Code, Reason: "order has no customer email"}
	}
	if err := s.provider.SendByEmail(ctx, invoiceID, o.Email, documentSubject(kind, o.Code)); err != nil {
		return fmt.Errorf("sending %s for order %s: %w", kind, o.Code, err)
	}
	return nil
}

// MarkInvoiceSent flags a document as delivered at the provider, for
// invoices forwarded from the shop's own mailbox rather than the provider's.
func (s *Service) MarkInvoiceSent(ctx context.Context, orderID int64, kind InvoiceKind) error {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	invoiceID := o.InvoiceID(kind)
	if invoiceID == 0 {
		return &IllegalStateError{OrderCode: o.Code, Reason: fmt.Sprintf("%s not generated yet", kind)}
	}
	if err := s.provider.MarkAsSent(ctx, invoiceID, o.Email, documentSubject(kind, o.Code)); err != nil {
		return fmt.Errorf("marking %s sent for order %s: %w", kind, o.Code, err)
	}
	return nil
}

func documentSubject(kind InvoiceKind, orderCode string) string {
	switch kind {
	case KindProforma:
		return fmt.Sprintf("Proforma invoice for order %s", orderCode)
	case KindTaxDocument:
		return fmt.Sprintf("Deposit receipt for order %s", orderCode)
	default:
		return fmt.Sprintf("Invoice for order %s", orderCode)
	}
}
