package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drevniko/eshop-backend/internal/domain/catalog"
)

const (
	productColumns = `id, name, slug, kind, active, tax_rate_id, standard, configurator`

	listProductsSQL       = `SELECT ` + productColumns + ` FROM products ORDER BY id`
	listActiveProductsSQL = `SELECT ` + productColumns + ` FROM products WHERE active = TRUE ORDER BY id`
	getProductByIDSQL     = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductBySlugSQL   = `SELECT ` + productColumns + ` FROM products WHERE slug = $1`

	insertProductSQL = `INSERT INTO products (name, slug, kind, active, tax_rate_id, standard, configurator)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	updateProductSQL = `UPDATE products
		SET name = $2, slug = $3, kind = $4, active = $5, tax_rate_id = $6,
			standard = $7, configurator = $8, updated_at = NOW()
		WHERE id = $1`

	deactivateProductSQL = `UPDATE products SET active = FALSE, updated_at = NOW() WHERE id = $1`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL. The
// option sets and configurator coefficients live in JSONB columns; they are
// read and replaced as a whole with the product.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) List(ctx context.Context, activeOnly bool) ([]catalog.Product, error) {
	query := listProductsSQL
	if activeOnly {
		query = listActiveProductsSQL
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*catalog.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	return r.getOne(ctx, getProductBySlugSQL, slug)
}

func (r *ProductRepository) getOne(ctx context.Context, query string, arg any) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return &p, nil
}

// Save inserts the product when it has no id yet, otherwise updates it.
func (r *ProductRepository) Save(ctx context.Context, p *catalog.Product) error {
	standardJSON, configuratorJSON, err := marshalSpecs(p)
	if err != nil {
		return err
	}

	if p.ID == 0 {
		err := r.pool.QueryRow(ctx, insertProductSQL,
			p.Name, p.Slug, p.Kind, p.Active, p.TaxRateID, standardJSON, configuratorJSON,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("inserting product %q: %w", p.Slug, err)
		}
		return nil
	}

	_, err = r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Slug, p.Kind, p.Active, p.TaxRateID, standardJSON, configuratorJSON,
	)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deactivateProductSQL, id)
	if err != nil {
		return fmt.Errorf("deactivating product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func marshalSpecs(p *catalog.Product) ([]byte, []byte, error) {
	var standardJSON, configuratorJSON []byte
	var err error
	if p.Standard != nil {
		standardJSON, err = json.Marshal(p.Standard)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling standard spec: %w", err)
		}
	}
	if p.Configurator != nil {
		configuratorJSON, err = json.Marshal(p.Configurator)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling configurator: %w", err)
		}
	}
	return standardJSON, configuratorJSON, nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p                catalog.Product
		standardJSON     []byte
		configuratorJSON []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Kind, &p.Active, &p.TaxRateID,
		&standardJSON, &configuratorJSON)
	if err != nil {
		return p, err
	}

	if len(standardJSON) > 0 {
		p.Standard = &catalog.StandardSpec{}
		if err := json.Unmarshal(standardJSON, p.Standard); err != nil {
			return p, fmt.Errorf("unmarshaling standard spec for product %d: %w", p.ID, err)
		}
	}
	if len(configuratorJSON) > 0 {
		p.Configurator = &catalog.Configurator{}
		if err := json.Unmarshal(configuratorJSON, p.Configurator); err != nil {
			return p, fmt.Errorf("unmarshaling configurator for product %d: %w", p.ID, err)
		}
	}
	return p, nil
}
