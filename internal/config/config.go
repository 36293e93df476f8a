// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvProduction は本番環境を示すAPP_ENVの値。
const EnvProduction = "production"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort  string `env:"PORT" envDefault:"8080"`
	Environment string `env:"APP_ENV" envDefault:"development"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// Session
	SessionSecret     string `env:"JWT_SECRET,notEmpty"`
	TokenValidityDays int    `env:"JWT_EXPIRES_DAYS" envDefault:"7"`
	CookieDomain      string `env:"COOKIE_DOMAIN"`

	// Database
	Database Database `envPrefix:"DATABASE_"`

	// Google
	GoogleClientID string `env:"GOOGLE_CLIENT_ID,notEmpty"`
	GoogleCertsURL string `env:"GOOGLE_CERTS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`

	// Events cache
	RedisURL       string        `env:"REDIS_URL"`
	EventsCacheTTL time.Duration `env:"EVENTS_CACHE_TTL" envDefault:"60s"`

	// Worker
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Logging
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}

// Database はPostgreSQL接続プールの設定。
type Database struct {
	URL             string        `env:"URL,notEmpty"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.TokenValidityDays < 1 {
		return nil, errors.New("JWT_EXPIRES_DAYS must be at least 1")
	}

	return cfg, nil
}

// CookieSecure はセッションCookieにSecure属性を付与すべきかを返す。
func (c *Config) CookieSecure() bool {
	return c.Environment == EnvProduction
}
