package config

import (
	"fmt"
	"strings"

	pkgconfig "github.com/Dugo220203tg/storefront/pkg/config"
)

// Config holds all configuration for the storefront client engine.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Local HTTP surface the UI talks to.
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Remote storefront backend.
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:5000/api"`

	// Redis session storage.
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Session TTL in hours (default: 3 days).
	SessionTTL int `env:"SESSION_TTL_HOURS" envDefault:"72"`

	// Flat shipping fee in cents applied at checkout.
	ShippingFee int64 `env:"SHIPPING_FEE_CENTS" envDefault:"1000"`

	// Upper bound for checkout network calls, in seconds.
	CheckoutTimeout int `env:"CHECKOUT_TIMEOUT_SECONDS" envDefault:"30"`

	// CORS origins for the UI.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Per-IP rate limiting on the local surface.
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"100"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("API_BASE_URL must not be empty")
	}
	if c.SessionTTL < 1 {
		return fmt.Errorf("invalid session TTL: %d hours", c.SessionTTL)
	}
	if c.ShippingFee < 0 {
		return fmt.Errorf("shipping fee must not be negative: %d", c.ShippingFee)
	}
	if c.CheckoutTimeout < 1 {
		return fmt.Errorf("invalid checkout timeout: %d seconds", c.CheckoutTimeout)
	}
	return nil
}
