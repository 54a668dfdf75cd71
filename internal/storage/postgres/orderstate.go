package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drevniko/eshop-backend/internal/domain/order"
)

const (
	getStateByIDSQL   = `SELECT id, code, name, display_order, is_final FROM order_states WHERE id = $1`
	getStateByCodeSQL = `SELECT id, code, name, display_order, is_final FROM order_states WHERE code = $1`
	listStatesSQL     = `SELECT id, code, name, display_order, is_final FROM order_states ORDER BY display_order`
)

var _ order.StateRepository = (*OrderStateRepository)(nil)

// OrderStateRepository implements order.StateRepository backed by PostgreSQL.
type OrderStateRepository struct {
	pool *pgxpool.Pool
}

// NewOrderStateRepository returns an OrderStateRepository that uses the
// given pool.
func NewOrderStateRepository(pool *pgxpool.Pool) *OrderStateRepository {
	return &OrderStateRepository{pool: pool}
}

func (r *OrderStateRepository) GetByID(ctx context.Context, id int64) (*order.State, error) {
	return r.findOne(ctx, getStateByIDSQL, id, fmt.Sprintf("#%d", id))
}

func (r *OrderStateRepository) GetByCode(ctx context.Context, code string) (*order.State, error) {
	return r.findOne(ctx, getStateByCodeSQL, code, code)
}

func (r *OrderStateRepository) findOne(ctx context.Context, query string, arg any, name string) (*order.State, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order state: %w", err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanState)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.StateNotFoundError{Code: name}
		}
		return nil, fmt.Errorf("getting order state: %w", err)
	}
	return &s, nil
}

func (r *OrderStateRepository) List(ctx context.Context) ([]order.State, error) {
	rows, err := r.pool.Query(ctx, listStatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing order states: %w", err)
	}

	states, err := pgx.CollectRows(rows, scanState)
	if err != nil {
		return nil, fmt.Errorf("listing order states: %w", err)
	}
	return states, nil
}

func scanState(row pgx.CollectableRow) (order.State, error) {
	var s order.State
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.DisplayOrder, &s.Final)
	return s, err
}
