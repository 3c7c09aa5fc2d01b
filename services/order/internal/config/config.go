package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Restock modes.
const (
	RestockModeEvent = "event"
	RestockModeHTTP  = "http"
)

// Config holds all configuration for the order service.
type Config struct {
	pkgconfig.Common

	// HTTP server
	HTTPPort        int           `env:"ORDER_HTTP_PORT" envDefault:"8004"`
	ShutdownTimeout time.Duration `env:"ORDER_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// PostgreSQL
	PostgresHost     string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string        `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass     string        `env:"POSTGRES_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB       string        `env:"ORDER_DB_NAME" envDefault:"order_db"`
	PostgresSSL      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32         `env:"POSTGRES_MAX_CONNS" envDefault:"25"`
	SlowQuery        time.Duration `env:"ORDER_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Restock notification on Cancelled and Refund Success.
	RestockMode      string        `env:"RESTOCK_MODE" envDefault:"event"`
	InventoryURL     string        `env:"INVENTORY_URL" envDefault:""`
	InventoryTimeout time.Duration `env:"INVENTORY_TIMEOUT" envDefault:"3s"`

	// Display
	Locale string `env:"ORDER_LOCALE" envDefault:"en-US"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load order config: %w", err)
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
	if err := pkgconfig.ValidatePort("Postgres port", c.PostgresPort); err != nil {
		return err
	}
	if err := c.Common.Validate(); err != nil {
		return err
	}
	if c.PostgresMaxConns < 1 {
		return fmt.Errorf("POSTGRES_MAX_CONNS must be positive, got %d", c.PostgresMaxConns)
	}
	switch c.RestockMode {
	case RestockModeEvent:
	case RestockModeHTTP:
		if c.InventoryURL == "" {
			return fmt.Errorf("INVENTORY_URL is required when RESTOCK_MODE is %q", RestockModeHTTP)
		}
	default:
		return fmt.Errorf("invalid RESTOCK_MODE %q, want %q or %q", c.RestockMode, RestockModeEvent, RestockModeHTTP)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPass),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDB,
		RawQuery: "sslmode=" + url.QueryEscape(c.PostgresSSL),
	}
	return u.String()
}
