package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/drevniko/eshop-backend/internal/domain/catalog"
	"github.com/drevniko/eshop-backend/internal/domain/coupon"
	"github.com/drevniko/eshop-backend/internal/domain/money"
	"github.com/drevniko/eshop-backend/internal/notify"
	"github.com/drevniko/eshop-backend/internal/storage/postgres"
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedOrderStates(ctx, pool); err != nil {
		return errors.Wrap(err, "seed order states")
	}
	if err := seedTaxRates(ctx, pool); err != nil {
		return errors.Wrap(err, "seed tax rates")
	}
	if err := seedProducts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedEmailTemplates(ctx, pool); err != nil {
		return errors.Wrap(err, "seed email templates")
	}

	return nil
}

func seedOrderStates(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding order states")

	states := []struct {
		code  string
		name  string
		order int
		final bool
	}{
		{"NEW", "New", 1, false},
		{"PROCESSING", "Processing", 2, false},
		{"IN_PRODUCTION", "In production", 3, false},
		{"AT_ZINC_PLATING", "At zinc plating", 4, false},
		{"READY_TO_SHIP", "Ready to ship", 5, false},
		{"SHIPPED", "Shipped", 6, false},
		{"DELIVERED", "Delivered", 7, true},
		{"CANCELLED", "Cancelled", 8, true},
	}
	for _, s := range states {
		_, err := pool.Exec(ctx, `
			INSERT INTO order_states (code, name, display_order, is_final)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO UPDATE
			SET name = EXCLUDED.name, display_order = EXCLUDED.display_order, is_final = EXCLUDED.is_final`,
			s.code, s.name, s.order, s.final,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert state %s", s.code)
		}
	}
	return nil
}

func seedTaxRates(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding tax rates")

	rates := []struct {
		id            int64
		name          string
		rate          string
		reverseCharge bool
	}{
		{1, "Standard 21%", "0.21", false},
		{2, "Reduced 12%", "0.12", false},
		{3, "Reverse charge", "0.21", true},
	}
	for _, r := range rates {
		_, err := pool.Exec(ctx, `
			INSERT INTO tax_rates (id, name, rate, reverse_charge)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, rate = EXCLUDED.rate, reverse_charge = EXCLUDED.reverse_charge`,
			r.id, r.name, decimal.RequireFromString(r.rate), r.reverseCharge,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert tax rate %s", r.name)
		}
	}
	_, err := pool.Exec(ctx, `SELECT setval('tax_rates_id_seq', (SELECT MAX(id) FROM tax_rates))`)
	return errors.Wrap(err, "bump tax rate sequence")
}

func demoProducts() []*catalog.Product {
	return []*catalog.Product{
		{
			Name: "Doghouse Classic", Slug: "doghouse-classic",
			Kind: catalog.KindStandard, Active: true, TaxRateID: 1,
			Standard: &catalog.StandardSpec{
				BasePrice: money.NewPair("2000.00", "80.00"),
				Designs: []catalog.Option{
					{ID: 1, Name: "Flat roof", Surcharge: money.NewPair("0", "0")},
					{ID: 2, Name: "Pitched roof", Surcharge: money.NewPair("350.00", "14.00")},
				},
				Glazes: []catalog.Option{
					{ID: 10, Name: "Natural", Surcharge: money.NewPair("0", "0")},
					{ID: 11, Name: "Walnut", Surcharge: money.NewPair("150.00", "6.00")},
					{ID: 12, Name: "Teak", Surcharge: money.NewPair("150.00", "6.00")},
				},
				RoofColors: []catalog.Option{
					{ID: 20, Name: "Green", Surcharge: money.NewPair("0", "0")},
					{ID: 21, Name: "Anthracite", Surcharge: money.NewPair("120.00", "5.00")},
				},
			},
		},
		{
			Name: "Garden House", Slug: "garden-house",
			Kind: catalog.KindCustom, Active: true, TaxRateID: 1,
			Configurator: &catalog.Configurator{
				Length: catalog.Bounds{Min: decimal.NewFromInt(100), Max: decimal.NewFromInt(500)},
				Width:  catalog.Bounds{Min: decimal.NewFromInt(80), Max: decimal.NewFromInt(300)},
				Height: catalog.Bounds{Min: decimal.NewFromInt(100), Max: decimal.NewFromInt(250)},

				PricePerCmLength: money.NewPair("40.00", "1.60"),
				PricePerCmWidth:  money.NewPair("30.00", "1.20"),
				PricePerCmHeight: money.NewPair("20.00", "0.80"),

				DividerPricePerCmWidth: money.NewPair("10.00", "0.40"),
				GutterPrice:            money.NewPair("500.00", "20.00"),
				GardenShedPrice:        money.NewPair("3000.00", "120.00"),

				Addons: []catalog.Addon{
					{ID: 1, Name: "Feeding hatch", Pricing: catalog.AddonFixed, Price: money.NewPair("600.00", "24.00")},
					{ID: 2, Name: "Insulation", Pricing: catalog.AddonPerSqMeter, PricePerUnit: money.NewPair("250.00", "10.00")},
					{ID: 3, Name: "Window", Pricing: catalog.AddonFixed, Price: money.NewPair("800.00", "32.00")},
				},
			},
		},
	}
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo products")

	repo := postgres.NewProductRepository(pool)
	for _, p := range demoProducts() {
		existing, err := repo.GetBySlug(ctx, p.Slug)
		switch {
		case err == nil:
			p.ID = existing.ID
		case errors.Is(err, catalog.ErrNotFound):
		default:
			return errors.Wrapf(err, "look up product %s", p.Slug)
		}
		if err := repo.Save(ctx, p); err != nil {
			return errors.Wrapf(err, "save product %s", p.Slug)
		}
		slog.Info("upserted product", slog.Int64("id", p.ID), slog.String("slug", p.Slug))
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	repo := postgres.NewCouponRepository(pool)
	coupons := []*coupon.Coupon{
		{
			Code: "SLEVA10", Name: "10 % off",
			Percentage: true, Value: decimal.NewFromInt(10),
			Active: true,
		},
		{
			Code: "DOPRAVAZDARMA", Name: "Free shipping",
			FreeShipping:  true,
			MinOrderValue: money.NewPair("5000.00", "200.00"),
			Active:        true,
		},
	}
	for _, c := range coupons {
		if err := c.ValidateDefinition(); err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
		existing, err := repo.FindByCode(ctx, c.Code)
		switch {
		case err == nil:
			c.ID = existing.ID
		case errors.Is(err, coupon.ErrNotFound):
		default:
			return errors.Wrapf(err, "look up coupon %s", c.Code)
		}
		if err := repo.Save(ctx, c); err != nil {
			return errors.Wrapf(err, "save coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code))
	}
	return nil
}

func seedEmailTemplates(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding email templates")

	repo := postgres.NewEmailTemplateRepository(pool)
	templates := []notify.TemplateConfig{
		{
			StateCode: "NEW",
			Subject:   "We received your order {{.OrderCode}}",
			Body:      "Thank you for your order. The total is {{.Total}} {{.Currency}}.",
			Enabled:   true,
		},
		{
			StateCode: "SHIPPED",
			Subject:   "Order {{.OrderCode}} is on its way",
			Body:      "Your order has been handed to the carrier.",
			Enabled:   true,
		},
		{
			StateCode: "DELIVERED",
			Subject:   "Order {{.OrderCode}} was delivered",
			Body:      "We hope you enjoy it. Let us know how it went.",
			Enabled:   false,
		},
	}
	for i := range templates {
		if err := repo.Save(ctx, &templates[i]); err != nil {
			return errors.Wrapf(err, "save template %s", templates[i].StateCode)
		}
		slog.Info("upserted template", slog.String("state", templates[i].StateCode))
	}
	return nil
}
