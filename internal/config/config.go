// Package config loads the runtime configuration for the parley server from
// the process environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every recognized server setting. All values come from the
// environment; see the envconfig tags for the variable names.
type Config struct {
	Port           string   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL    string   `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret      string   `envconfig:"JWT_SECRET" required:"true"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`

	// TokenTTL bounds the validity of issued bearer tokens.
	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// MaxMessageSize is the per-frame read limit on live connections, in bytes.
	MaxMessageSize int64 `envconfig:"MAX_MESSAGE_SIZE" default:"512"`

	RateLimitBurst          int           `envconfig:"RATE_LIMIT_BURST" default:"5"`
	RateLimitRefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
}

// Load reads the configuration from the environment and applies defaults for
// anything out of range.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	cfg.sanitize()
	return &cfg, nil
}

func (c *Config) sanitize() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 512
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 5
	}
	if c.RateLimitRefillInterval <= 0 {
		c.RateLimitRefillInterval = time.Second
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
}

// ListenAddr returns the address for the HTTP listener, accepting the port
// with or without a leading colon.
func (c *Config) ListenAddr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
