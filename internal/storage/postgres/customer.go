package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drevniko/eshop-backend/internal/domain/customer"
)

const (
	getCustomerByIDSQL    = `SELECT id, email, name, created_at FROM customers WHERE id = $1`
	getCustomerByEmailSQL = `SELECT id, email, name, created_at FROM customers WHERE LOWER(email) = LOWER($1)`

	upsertCustomerSQL = `INSERT INTO customers (email, name)
		VALUES (LOWER($1), $2)
		ON CONFLICT (email) DO UPDATE SET email = customers.email
		RETURNING id, email, name, created_at`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*customer.Customer, error) {
	return r.findOne(ctx, getCustomerByIDSQL, id)
}

func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return r.findOne(ctx, getCustomerByEmailSQL, email)
}

// GetOrCreate resolves the customer row for an email, creating it on first
// use. The no-op conflict update makes the insert return the existing row.
func (r *CustomerRepository) GetOrCreate(ctx context.Context, email, name string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, upsertCustomerSQL, email, name).
		Scan(&c.ID, &c.Email, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("resolving customer %q: %w", email, err)
	}
	return &c, nil
}

func (r *CustomerRepository) findOne(ctx context.Context, query string, arg any) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting customer: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (customer.Customer, error) {
		var c customer.Customer
		err := row.Scan(&c.ID, &c.Email, &c.Name, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer: %w", err)
	}
	return &c, nil
}
