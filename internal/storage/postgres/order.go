package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drevniko/eshop-backend/internal/domain/order"
)

const (
	orderColumns = `id, code, customer_id, guest_session, email, currency,
		shipping_cost, shipping_tax_rate, shipping_tax, coupon_code, discount,
		subtotal, tax, total, state_id, payment_status, deposit_amount,
		deposit_paid_at, paid_at,
		sf_proforma_id, sf_proforma_number,
		sf_tax_document_id, sf_tax_document_number,
		sf_final_invoice_id, sf_final_invoice_number,
		shipped_at, delivered_at, cancelled_at, created_at`

	nextOrderCodeSQL = `SELECT nextval('order_code_seq')`

	insertOrderSQL = `INSERT INTO orders (code, customer_id, guest_session, email, currency,
			shipping_cost, shipping_tax_rate, shipping_tax, coupon_code, discount,
			subtotal, tax, total, state_id, payment_status, deposit_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, product_name,
			description, custom, quantity, unit_price, tax_rate, reverse_charge,
			line_total, fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	getOrderByIDSQL   = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByCodeSQL = `SELECT ` + orderColumns + ` FROM orders WHERE code = $1`
	lockOrderSQL      = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	getOrderItemsSQL = `SELECT id, order_id, product_id, product_name, description, custom,
			quantity, unit_price, tax_rate, reverse_charge, line_total, fingerprint
		FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderSQL = `UPDATE orders SET state_id = $2, payment_status = $3,
			deposit_paid_at = $4, paid_at = $5,
			shipped_at = $6, delivered_at = $7, cancelled_at = $8
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its lines in one transaction, assigning the
// id and the sequential order code.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var seq int64
	if err := tx.QueryRow(ctx, nextOrderCodeSQL).Scan(&seq); err != nil {
		return fmt.Errorf("allocating order code: %w", err)
	}
	o.Code = fmt.Sprintf("%d", seq)

	var customerID *int64
	if o.CustomerID != 0 {
		customerID = &o.CustomerID
	}
	err = tx.QueryRow(ctx, insertOrderSQL,
		o.Code, customerID, o.GuestSession, o.Email, o.Currency,
		o.ShippingCost, o.ShippingTaxRate, o.ShippingTax, o.CouponCode, o.Discount,
		o.Subtotal, o.Tax, o.Total, o.StateID, o.PaymentStatus, o.DepositAmount, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Code, err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := tx.QueryRow(ctx, insertOrderItemSQL,
			o.ID, it.ProductID, it.ProductName, it.Description, it.Custom,
			it.Quantity, it.UnitPrice, it.TaxRate, it.ReverseCharge,
			it.LineTotal, it.Fingerprint,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("creating order item for %q: %w", o.Code, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.Code, err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	o, err := r.findOne(ctx, getOrderByIDSQL, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{ID: id}
		}
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) FindByCode(ctx context.Context, code string) (*order.Order, error) {
	o, err := r.findOne(ctx, getOrderByCodeSQL, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{Code: code}
		}
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) findOne(ctx context.Context, query string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	if err := r.loadItems(ctx, r.pool, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// WithOrder runs fn with the order row locked. Mutations fn makes to the
// payment and lifecycle fields are written back before commit. Lines are
// immutable after creation and are not written back.
func (r *OrderRepository) WithOrder(ctx context.Context, id int64, fn func(ctx context.Context, o *order.Order) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, lockOrderSQL, id)
	if err != nil {
		return fmt.Errorf("locking order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &order.NotFoundError{ID: id}
		}
		return fmt.Errorf("locking order %d: %w", id, err)
	}
	if err := r.loadItems(ctx, tx, &o); err != nil {
		return err
	}

	if err := fn(ctx, &o); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, updateOrderSQL,
		o.ID, o.StateID, o.PaymentStatus,
		o.DepositPaidAt, o.PaidAt,
		o.ShippedAt, o.DeliveredAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.Code, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.Code, err)
	}
	return nil
}

// SetInvoiceDocument stores the provider document reference only when the
// column is still empty, in a single round trip. A false return means a
// concurrent generator won.
func (r *OrderRepository) SetInvoiceDocument(ctx context.Context, orderID int64, kind order.InvoiceKind, doc order.Document) (bool, error) {
	idCol, numberCol, err := invoiceColumns(kind)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(
		`UPDATE orders SET %s = $2, %s = $3 WHERE id = $1 AND %s IS NULL`,
		idCol, numberCol, idCol)
	tag, err := r.pool.Exec(ctx, query, orderID, doc.ID, doc.Number)
	if err != nil {
		return false, fmt.Errorf("storing %s for order %d: %w", kind, orderID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListMissingInvoiceID returns deposit-paid orders that still lack the given
// document, for reconciliation sweeps.
func (r *OrderRepository) ListMissingInvoiceID(ctx context.Context, kind order.InvoiceKind) ([]order.Order, error) {
	idCol, _, err := invoiceColumns(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT %s FROM orders WHERE %s IS NULL AND deposit_paid_at IS NOT NULL ORDER BY id`,
		orderColumns, idCol)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing orders missing %s: %w", kind, err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders missing %s: %w", kind, err)
	}
	return orders, nil
}

// List returns the admin listing page and the total row count for the
// filter.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.StateCode != "" {
		where = append(where, fmt.Sprintf(
			"state_id = (SELECT id FROM order_states WHERE code = %s)", arg(f.StateCode)))
	}
	if f.PaymentStatus != "" {
		where = append(where, "payment_status = "+arg(string(f.PaymentStatus)))
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= "+arg(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at < "+arg(*f.CreatedTo))
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders"+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		orderColumns, cond, arg(limit), arg(f.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *OrderRepository) loadItems(ctx context.Context, q querier, o *order.Order) error {
	rows, err := q.Query(ctx, getOrderItemsSQL, o.ID)
	if err != nil {
		return fmt.Errorf("loading items for order %q: %w", o.Code, err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("loading items for order %q: %w", o.Code, err)
	}
	o.Items = items
	return nil
}

func invoiceColumns(kind order.InvoiceKind) (idCol, numberCol string, err error) {
	switch kind {
	case order.KindProforma:
		return "sf_proforma_id", "sf_proforma_number", nil
	case order.KindTaxDocument:
		return "sf_tax_document_id", "sf_tax_document_number", nil
	case order.KindFinal:
		return "sf_final_invoice_id", "sf_final_invoice_number", nil
	default:
		return "", "", fmt.Errorf("unknown invoice kind %q", kind)
	}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o              order.Order
		customerID     *int64
		proformaID     *int64
		taxDocumentID  *int64
		finalInvoiceID *int64
	)
	err := row.Scan(
		&o.ID, &o.Code, &customerID, &o.GuestSession, &o.Email, &o.Currency,
		&o.ShippingCost, &o.ShippingTaxRate, &o.ShippingTax, &o.CouponCode, &o.Discount,
		&o.Subtotal, &o.Tax, &o.Total, &o.StateID, &o.PaymentStatus, &o.DepositAmount,
		&o.DepositPaidAt, &o.PaidAt,
		&proformaID, &o.ProformaNumber,
		&taxDocumentID, &o.TaxDocumentNumber,
		&finalInvoiceID, &o.FinalInvoiceNumber,
		&o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.CreatedAt,
	)
	if customerID != nil {
		o.CustomerID = *customerID
	}
	if proformaID != nil {
		o.ProformaID = *proformaID
	}
	if taxDocumentID != nil {
		o.TaxDocumentID = *taxDocumentID
	}
	if finalInvoiceID != nil {
		o.FinalInvoiceID = *finalInvoiceID
	}
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Description,
		&it.Custom, &it.Quantity, &it.UnitPrice, &it.TaxRate, &it.ReverseCharge,
		&it.LineTotal, &it.Fingerprint,
	)
	return it, err
}
