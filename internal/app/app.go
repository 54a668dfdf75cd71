package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drevniko/eshop-backend/internal/domain/coupon"
	"github.com/drevniko/eshop-backend/internal/domain/money"
	"github.com/drevniko/eshop-backend/internal/domain/order"
	"github.com/drevniko/eshop-backend/internal/handler"
	"github.com/drevniko/eshop-backend/internal/invoicing"
	"github.com/drevniko/eshop-backend/internal/notify"
	"github.com/drevniko/eshop-backend/internal/session"
	"github.com/drevniko/eshop-backend/internal/storage/postgres"
	"github.com/drevniko/eshop-backend/pkg/health"
	"github.com/drevniko/eshop-backend/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the notification
// dispatcher, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	shipping, err := parseShipping(cfg.Shipping)
	if err != nil {
		return errors.Wrap(err, "parse shipping config")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis: cart sessions and the email-template cache.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	taxRateRepo := postgres.NewTaxRateRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	stateRepo := postgres.NewOrderStateRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	templateRepo := notify.NewCachedTemplates(postgres.NewEmailTemplateRepository(pool), rdb)

	carts := session.NewRedisStore(rdb)

	// External invoicing provider.
	provider := invoicing.NewClient(invoicing.Config{
		BaseURL: cfg.Invoicing.BaseURL,
		Email:   cfg.Invoicing.Email,
		APIKey:  cfg.Invoicing.APIKey,
		Timeout: cfg.Invoicing.Timeout,
	})

	// Order event stream: producer feeds the dispatcher, which renders and
	// sends the per-state notification emails.
	producer := notify.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer func() { _ = producer.Close() }()

	dispatcher := notify.NewDispatcher(
		cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID,
		templateRepo, notify.NewLogSender(lg.Named("mailer")), lg.Named("dispatcher"),
	)

	// Domain services.
	couponValidator := coupon.NewValidator(couponRepo)
	orderService := order.NewService(orderRepo, stateRepo, couponRepo, provider, producer, shipping)

	// HTTP handlers.
	h := handler.NewHandler(
		productRepo, taxRateRepo, couponRepo, couponValidator,
		carts, customerRepo, orderService, stateRepo, templateRepo,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.Recovery(),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					AllowOrigins:     cfg.CORS.Origins,
					AllowHeaders:     []string{"Content-Type", "Authorization"},
					AllowCredentials: cfg.CORS.AllowCredentials,
					MaxAge:           86400,
				}),
				httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
					Max:    cfg.RateLimit.Max,
					Window: cfg.RateLimit.Window,
				}),
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.LogRequests(),
			),
			"eshop-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := dispatcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "dispatcher")
		}
		return nil
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if err := dispatcher.Close(); err != nil {
			lg.Error("Dispatcher close error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

func parseShipping(cfg ShippingConfig) (order.ShippingConfig, error) {
	czk, err := decimal.NewFromString(cfg.CostCZK)
	if err != nil {
		return order.ShippingConfig{}, errors.Wrap(err, "shipping cost CZK")
	}
	eur, err := decimal.NewFromString(cfg.CostEUR)
	if err != nil {
		return order.ShippingConfig{}, errors.Wrap(err, "shipping cost EUR")
	}
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return order.ShippingConfig{}, errors.Wrap(err, "shipping tax rate")
	}
	return order.ShippingConfig{
		Cost: money.Pair{CZK: czk, EUR: eur},
		Tax:  money.TaxRate{Rate: rate},
	}, nil
}
