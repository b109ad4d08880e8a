// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains server configuration parameters.
type Config struct {
	HTTP     HTTP     `envPrefix:"HTTP_"`
	Database Database `envPrefix:"DATABASE_"`
	Auth     Auth     `envPrefix:"AUTH_"`
	SMTP     SMTP     `envPrefix:"SMTP_"`
	CORS     CORS     `envPrefix:"CORS_"`
}

// HTTP contains HTTP server parameters.
type HTTP struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST" envDefault:"20"`
	RateLimitPerSec int           `env:"RATE_LIMIT_PER_SEC" envDefault:"10"`
}

// Database contains database connection parameters.
type Database struct {
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// Auth contains token issuance parameters.
type Auth struct {
	Secret     string        `env:"SECRET"`
	Issuer     string        `env:"ISSUER" envDefault:"clientdesk"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"336h"`
	ConfirmTTL time.Duration `env:"CONFIRM_TTL" envDefault:"24h"`
	PolicyFile string        `env:"POLICY_FILE"`
}

// SMTP contains confirmation mail delivery parameters. When Addr is empty the
// service logs confirmation links instead of sending mail.
type SMTP struct {
	Addr       string `env:"ADDR"`
	From       string `env:"FROM" envDefault:"no-reply@clientdesk.org"`
	Username   string `env:"USERNAME"`
	Password   string `env:"PASSWORD"`
	ConfirmURL string `env:"CONFIRM_URL" envDefault:"http://localhost:8080/api/v1/auth/confirm"`
}

// CORS contains allowed browser origins.
type CORS struct {
	Origins []string `env:"ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:4200"`
}

// Load parses configuration from the environment. The env prefix for every
// variable is CLIENTDESK_ (e.g. CLIENTDESK_AUTH_SECRET).
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CLIENTDESK_"}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
