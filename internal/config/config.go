// Package config loads application configuration from the environment,
// with a .env file picked up in development when present.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/tradepost/tradepost/internal/auth/oauth"
	"github.com/tradepost/tradepost/internal/mail"
	"github.com/tradepost/tradepost/pkg/pg"
	"github.com/tradepost/tradepost/pkg/redis"
)

// Config is the full application configuration tree.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// FrontendURL is where browser flows land: reset links and OAuth
	// post-login redirects point here.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Session SessionConfig
	PG      pg.Config
	Redis   redis.Config
	Mail    mail.Config
	Google  oauth.GoogleConfig
	GitHub  oauth.GitHubConfig

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// SessionConfig controls session lifetime and the session cookie.
type SessionConfig struct {
	CookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"session"`
	TTL        time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	ResetTTL   time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
}

// IsProduction reports whether the app runs with production settings.
// Cookies are marked Secure only in production.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads configuration from the environment. A missing .env file is
// not an error; required variables absent from the environment are.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
