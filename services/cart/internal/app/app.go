package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/services/cart/internal/catalog"
	"github.com/utafrali/storefront/services/cart/internal/config"
	"github.com/utafrali/storefront/services/cart/internal/event"
	handler "github.com/utafrali/storefront/services/cart/internal/handler/http"
	redisrepo "github.com/utafrali/storefront/services/cart/internal/repository/redis"
	"github.com/utafrali/storefront/services/cart/internal/service"
)

// Version is stamped into traces.
var Version = "dev"

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumer       *pkgkafka.Consumer
	httpServer     *http.Server
	shutdownTraces tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownTraces, err := tracing.Init(ctx, tracing.FromCommon("cart-service", Version, cfg.Common))
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	var lookup catalog.Lookup = catalog.Static{}
	if cfg.CatalogURL != "" {
		clientCfg := httpclient.DefaultConfig()
		clientCfg.Timeout = cfg.CatalogTimeout
		breaker := httpclient.NewCircuitBreakerClient(
			httpclient.New(clientCfg),
			httpclient.DefaultCircuitBreakerConfig("catalog"),
			logger,
		)
		lookup = catalog.NewHTTPLookup(cfg.CatalogURL, breaker, logger)
		logger.Info("catalog lookup enabled", slog.String("url", cfg.CatalogURL))
	} else {
		logger.Warn("CATALOG_URL not set, trusting client supplied product data")
	}

	repo := redisrepo.NewCartRepository(rdb, cfg.TTL())
	cartService := service.NewCartService(repo, lookup, event.NewProducer(producer, logger), logger, service.Config{
		TTL:      cfg.TTL(),
		Currency: cfg.Currency,
	})

	a := &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		producer:       producer,
		shutdownTraces: shutdownTraces,
	}

	if cfg.ConsumeOrders {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		a.consumer = event.NewOrderCreatedConsumer(event.ConsumerDeps{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.ConsumerGroup,
			Carts:       cartService,
			Idempotency: pkgkafka.NewRedisIdempotencyStore(rdb, "cart:processed:", cfg.IdempotencyTTL),
			DLQ:         a.dlq,
			Logger:      logger,
		})
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("redis", repo.Ping)
	healthHandler.RegisterNonCritical("kafka", producer.Ping)

	cartHandler := handler.NewCartHandler(cartService, money.NewFormatter(cfg.Locale), logger)
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler.NewRouter(cartHandler, healthHandler, middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// Run serves HTTP and consumes order events until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Start(gctx)
		})
	}

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

	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	if err := a.shutdownTraces(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
