package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/coupon"
)

const (
	couponColumns = `id, code, name, description, percentage, value, fixed_czk, fixed_eur,
		free_shipping, min_order_czk, min_order_eur, start_date, expiration_date,
		usage_limit, usage_limit_per_customer, used_times, active`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`
	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	listCouponsSQL     = `SELECT ` + couponColumns + ` FROM coupons ORDER BY id`

	insertCouponSQL = `INSERT INTO coupons (code, name, description, percentage, value,
			fixed_czk, fixed_eur, free_shipping, min_order_czk, min_order_eur,
			start_date, expiration_date, usage_limit, usage_limit_per_customer, used_times, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	updateCouponSQL = `UPDATE coupons SET code = $2, name = $3, description = $4,
			percentage = $5, value = $6, fixed_czk = $7, fixed_eur = $8, free_shipping = $9,
			min_order_czk = $10, min_order_eur = $11, start_date = $12, expiration_date = $13,
			usage_limit = $14, usage_limit_per_customer = $15, active = $16
		WHERE id = $1`

	incrementCouponUsageSQL = `UPDATE coupons SET used_times = used_times + 1 WHERE id = $1`

	countCustomerUsageSQL = `SELECT COUNT(*) FROM orders o
		JOIN coupons c ON o.coupon_code = c.code
		WHERE o.customer_id = $1 AND c.id = $2`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// Per-customer usage is counted against placed orders, so the counter
// survives coupon edits.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByCodeSQL, code)
}

func (r *CouponRepository) FindByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByIDSQL, id)
}

func (r *CouponRepository) findOne(ctx context.Context, query string, arg any) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("finding coupon: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon: %w", err)
	}
	return &c, nil
}

func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

// Save inserts the coupon when it has no id yet, otherwise updates it. The
// usage counter is never written on update; only IncrementUsage touches it.
func (r *CouponRepository) Save(ctx context.Context, c *coupon.Coupon) error {
	if c.ID == 0 {
		err := r.pool.QueryRow(ctx, insertCouponSQL,
			c.Code, c.Name, c.Description, c.Percentage, c.Value,
			c.FixedValue.CZK, c.FixedValue.EUR, c.FreeShipping,
			c.MinOrderValue.CZK, c.MinOrderValue.EUR,
			c.StartDate, c.ExpirationDate,
			c.UsageLimit, c.UsageLimitPerCustomer, c.UsedTimes, c.Active,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.Name, c.Description, c.Percentage, c.Value,
		c.FixedValue.CZK, c.FixedValue.EUR, c.FreeShipping,
		c.MinOrderValue.CZK, c.MinOrderValue.EUR,
		c.StartDate, c.ExpirationDate,
		c.UsageLimit, c.UsageLimitPerCustomer, c.Active,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %d: %w", c.ID, err)
	}
	return nil
}

// IncrementUsage atomically increments the global usage counter.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, incrementCouponUsageSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %d: %w", id, err)
	}
	return nil
}

func (r *CouponRepository) CountCustomerUsage(ctx context.Context, customerID, couponID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countCustomerUsageSQL, customerID, couponID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting coupon %d usage for customer %d: %w", couponID, customerID, err)
	}
	return count, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c                  coupon.Coupon
		fixedCZK, fixedEUR decimal.Decimal
		minCZK, minEUR     decimal.Decimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &c.Percentage, &c.Value,
		&fixedCZK, &fixedEUR, &c.FreeShipping, &minCZK, &minEUR,
		&c.StartDate, &c.ExpirationDate,
		&c.UsageLimit, &c.UsageLimitPerCustomer, &c.UsedTimes, &c.Active,
	)
	c.FixedValue.CZK = fixedCZK
	c.FixedValue.EUR = fixedEUR
	c.MinOrderValue.CZK = minCZK
	c.MinOrderValue.EUR = minEUR
	return c, err
}
