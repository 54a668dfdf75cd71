// Command coupon-ingest imports bulk promo-code exports. Marketing delivers
// several gzipped code lists; a code is only considered valid when it appears
// in at least two of them, which filters out the typo-ridden drafts that keep
// landing in the drop directory.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/drevniko/eshop-backend/internal/domain/coupon"
	"github.com/drevniko/eshop-backend/internal/domain/money"
	"github.com/drevniko/eshop-backend/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 12
)

// codeRule describes the benefit granted by a known campaign code. Codes not
// listed here fall back to the default 10 % discount.
type codeRule struct {
	percentage   bool
	value        string
	fixedCZK     string
	fixedEUR     string
	freeShipping bool
	name         string
}

var codeRules = map[string]codeRule{
	"JARNISLEVA":  {percentage: true, value: "15", name: "Spring sale: 15% off"},
	"ZIMNISLEVA":  {percentage: true, value: "20", name: "Winter sale: 20% off"},
	"STOVKADOLU":  {value: "0", fixedCZK: "100", fixedEUR: "4", name: "100 CZK / 4 EUR off"},
	"DOPRAVANULA": {freeShipping: true, value: "0", name: "Free shipping"},
}

var defaultRule = codeRule{percentage: true, value: "10", name: "Promo code: 10% off"}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	var exports []string
	for i := 1; i <= numFiles; i++ {
		path := filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i))
		if _, err := os.Stat(path); err != nil {
			return errors.Wrapf(err, "check file %s", path)
		}
		exports = append(exports, path)
	}

	slog.Info("pass 1: building bloom filters")
	filters, err := indexExports(ctx, exports)
	if err != nil {
		return errors.Wrap(err, "index exports")
	}

	slog.Info("pass 2: finding codes present in 2+ files")
	validCodes, err := crossReference(ctx, exports, filters)
	if err != nil {
		return errors.Wrap(err, "cross-reference exports")
	}
	slog.Info("valid codes found", slog.Int("count", len(validCodes)))
	if len(validCodes) == 0 {
		slog.Info("no valid codes to insert")
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, postgres.NewCouponRepository(pool), validCodes)
}

// indexExports builds one bloom filter per export file, all files in
// parallel.
func indexExports(ctx context.Context, exports []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(exports))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range exports {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			seen, err := eachCode(ctx, path, func(code string) {
				filter.AddString(code)
			})
			if err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("codes", seen))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// crossReference re-streams every export and keeps the codes that some other
// export's bloom filter also claims to contain. Each code accumulates a
// bitmask of the exports it was seen in; two or more set bits make it valid.
func crossReference(ctx context.Context, exports []string, filters []*bloom.BloomFilter) ([]string, error) {
	perFile := make([]map[string]uint8, len(exports))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range exports {
		g.Go(func() error {
			hits := make(map[string]uint8)
			seen, err := eachCode(ctx, path, func(code string) {
				for j, other := range filters {
					if j == i {
						continue
					}
					if other.TestString(code) {
						hits[code] |= 1 << uint8(i)
						break
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "cross-reference %s", path)
			}
			slog.Info("pass 2 complete",
				slog.String("file", path),
				slog.Uint64("codes", seen),
				slog.Int("candidates", len(hits)),
			)
			perFile[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint8)
	for _, hits := range perFile {
		for code, mask := range hits {
			merged[code] |= mask
		}
	}

	valid := make([]string, 0, len(merged))
	for code, mask := range merged {
		if bits.OnesCount8(mask) >= 2 {
			valid = append(valid, code)
		}
	}
	return valid, nil
}

// eachCode streams a gzipped export line by line, calling fn for every code
// of plausible length, and returns how many it saw.
func eachCode(ctx context.Context, path string, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	var seen uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return seen, err
		}
		code := scanner.Text()
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		fn(code)
		seen++
		if seen%progressEvery == 0 {
			slog.Info("progress", slog.String("file", path), slog.Uint64("codes", seen))
		}
	}
	return seen, errors.Wrap(scanner.Err(), "scan")
}

// writeCoupons upserts all valid coupon codes.
func writeCoupons(ctx context.Context, repo *postgres.CouponRepository, codes []string) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	for i, code := range codes {
		rule, ok := codeRules[code]
		if !ok {
			rule = defaultRule
		}

		c := &coupon.Coupon{
			Code:         code,
			Name:         rule.name,
			Percentage:   rule.percentage,
			Value:        decimal.RequireFromString(rule.value),
			FreeShipping: rule.freeShipping,
			Active:       true,
		}
		if rule.fixedCZK != "" {
			c.FixedValue = money.NewPair(rule.fixedCZK, rule.fixedEUR)
		}
		if err := c.ValidateDefinition(); err != nil {
			return errors.Wrapf(err, "coupon %s", code)
		}

		existing, err := repo.FindByCode(ctx, code)
		switch {
		case err == nil:
			c.ID = existing.ID
		case errors.Is(err, coupon.ErrNotFound):
		default:
			return errors.Wrapf(err, "look up coupon %s", code)
		}
		if err := repo.Save(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}

	return nil
}
