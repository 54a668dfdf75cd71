package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drevniko/eshop-backend/internal/domain/catalog"
	"github.com/drevniko/eshop-backend/internal/domain/money"
)

const (
	getTaxRateSQL   = `SELECT id, name, rate, reverse_charge FROM tax_rates WHERE id = $1`
	listTaxRatesSQL = `SELECT id, name, rate, reverse_charge FROM tax_rates ORDER BY id`
)

var _ catalog.TaxRateRepository = (*TaxRateRepository)(nil)

// TaxRateRepository implements catalog.TaxRateRepository backed by PostgreSQL.
type TaxRateRepository struct {
	pool *pgxpool.Pool
}

// NewTaxRateRepository returns a TaxRateRepository that uses the given pool.
func NewTaxRateRepository(pool *pgxpool.Pool) *TaxRateRepository {
	return &TaxRateRepository{pool: pool}
}

func (r *TaxRateRepository) GetByID(ctx context.Context, id int64) (*money.TaxRate, error) {
	rows, err := r.pool.Query(ctx, getTaxRateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting tax rate %d: %w", id, err)
	}

	rate, err := pgx.CollectExactlyOneRow(rows, scanTaxRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tax rate %d not found", id)
		}
		return nil, fmt.Errorf("getting tax rate %d: %w", id, err)
	}
	return &rate, nil
}

func (r *TaxRateRepository) List(ctx context.Context) ([]money.TaxRate, error) {
	rows, err := r.pool.Query(ctx, listTaxRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing tax rates: %w", err)
	}

	rates, err := pgx.CollectRows(rows, scanTaxRate)
	if err != nil {
		return nil, fmt.Errorf("listing tax rates: %w", err)
	}
	return rates, nil
}

func scanTaxRate(row pgx.CollectableRow) (money.TaxRate, error) {
	var t money.TaxRate
	err := row.Scan(&t.ID, &t.Name, &t.Rate, &t.ReverseCharge)
	return t, err
}
