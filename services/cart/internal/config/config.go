package config

import (
	"fmt"
	"time"

	"golang.org/x/text/currency"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Config holds all configuration for the cart service.
type Config struct {
	pkgconfig.Common

	// HTTP server
	HTTPPort        int           `env:"CART_HTTP_PORT" envDefault:"8003"`
	ShutdownTimeout time.Duration `env:"CART_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass     string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`

	// Cart TTL in hours (default: 7 days)
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Display
	Currency string `env:"CART_CURRENCY" envDefault:"USD"`
	Locale   string `env:"CART_LOCALE" envDefault:"en-US"`

	// Catalog lookup. An empty URL trusts the prices and stock sent by the client.
	CatalogURL     string        `env:"CATALOG_URL" envDefault:""`
	CatalogTimeout time.Duration `env:"CATALOG_TIMEOUT" envDefault:"3s"`

	// order.created consumer
	ConsumeOrders  bool          `env:"CART_CONSUME_ORDERS" envDefault:"true"`
	ConsumerGroup  string        `env:"CART_CONSUMER_GROUP" envDefault:"cart-service"`
	IdempotencyTTL time.Duration `env:"CART_IDEMPOTENCY_TTL" envDefault:"24h"`
}

// TTL returns the cart expiry as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if err := pkgconfig.ValidatePort("HTTP port", c.HTTPPort); err != nil {
		return err
	}
	if err := c.Common.Validate(); err != nil {
		return err
	}
	if c.CartTTL < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be positive, got %d", c.CartTTL)
	}
	if _, err := currency.ParseISO(c.Currency); err != nil {
		return fmt.Errorf("invalid CART_CURRENCY %q: %w", c.Currency, err)
	}
	if c.ConsumeOrders && c.ConsumerGroup == "" {
		return fmt.Errorf("CART_CONSUMER_GROUP is required when consuming orders")
	}
	return nil
}
