package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/services/order/internal/config"
	"github.com/utafrali/storefront/services/order/internal/event"
	handler "github.com/utafrali/storefront/services/order/internal/handler/http"
	"github.com/utafrali/storefront/services/order/internal/inventory"
	"github.com/utafrali/storefront/services/order/internal/repository/postgres"
	"github.com/utafrali/storefront/services/order/internal/service"
)

// Version is stamped into traces.
var Version = "dev"

// App wires together all dependencies and runs the order service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	shutdownTraces tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
// Pending migrations are applied before the server is built.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownTraces, err := tracing.Init(ctx, tracing.FromCommon("order-service", Version, cfg.Common))
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	pgCfg := database.DefaultPostgresConfig(cfg.PostgresDSN())
	pgCfg.MaxConns = cfg.PostgresMaxConns
	pool, err := database.NewPostgresPool(ctx, pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, postgres.Migrations(), logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "order"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}
	database.SetSlowQueryLogging(cfg.SlowQuery, logger)

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	eventProducer := event.NewProducer(producer, logger)

	var restocker inventory.Restocker
	switch cfg.RestockMode {
	case config.RestockModeHTTP:
		clientCfg := httpclient.DefaultConfig()
		clientCfg.Timeout = cfg.InventoryTimeout
		breaker := httpclient.NewCircuitBreakerClient(
			httpclient.New(clientCfg),
			httpclient.DefaultCircuitBreakerConfig("inventory"),
			logger,
		)
		restocker = inventory.NewHTTPRestocker(cfg.InventoryURL, breaker, logger)
	default:
		restocker = inventory.NewEventRestocker(eventProducer)
	}
	logger.Info("restock notifier configured", slog.String("mode", cfg.RestockMode))

	repo := postgres.NewOrderRepository(pool)
	orderService := service.NewOrderService(repo, restocker, eventProducer, logger)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", pool.Ping)
	healthHandler.RegisterNonCritical("kafka", producer.Ping)

	orderHandler := handler.NewOrderHandler(orderService, money.NewFormatter(cfg.Locale), logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		producer: producer,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:      handler.NewRouter(orderHandler, healthHandler, middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		shutdownTraces: shutdownTraces,
	}, nil
}

// Run serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	a.pool.Close()

	if err := a.shutdownTraces(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
