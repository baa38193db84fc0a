// Package config defines the top-level configuration for the seconds daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SECONDSD_* environment
// variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Feed     FeedConfig     `toml:"feed"`
	Tiers    []TierConfig   `toml:"tiers"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	History  HistoryConfig  `toml:"history"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds the backend exchange API endpoint and credentials.
type ExchangeConfig struct {
	BaseURL            string `toml:"base_url"`
	Token              string `toml:"token"`
	EncryptedTokenPath string `toml:"encrypted_token_path"`
	TokenPassword      string `toml:"token_password"`
}

// FeedConfig holds the reference price feed parameters.
type FeedConfig struct {
	Enabled bool     `toml:"enabled"`
	WsHost  string   `toml:"ws_host"`
	Symbols []string `toml:"symbols"`
}

// TierConfig is one duration tier row.
type TierConfig struct {
	DurationSeconds   int     `toml:"duration_seconds"`
	PayoutRatePercent float64 `toml:"payout_rate_percent"`
	MinAmount         float64 `toml:"min_amount"`
	MaxAmount         float64 `toml:"max_amount"`
}

// PostgresConfig holds PostgreSQL connection parameters for the settlement
// journal.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// S3Config holds S3-compatible object storage parameters for journal
// archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP API server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds operator alert channel parameters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig controls settlement journal export to blob storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// HistoryConfig controls the trade history poller.
type HistoryConfig struct {
	PollInterval duration `toml:"poll_interval"`
}

// duration wraps time.Duration for TOML decoding.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. The
// tier sheet defaults to the production rows.
func Defaults() Config {
	tiers := domain.DefaultTiers()
	tierCfgs := make([]TierConfig, 0, len(tiers))
	for _, t := range tiers {
		tierCfgs = append(tierCfgs, TierConfig{
			DurationSeconds:   t.DurationSeconds,
			PayoutRatePercent: t.PayoutRatePercent,
			MinAmount:         t.MinAmount,
			MaxAmount:         t.MaxAmount,
		})
	}

	return Config{
		Exchange: ExchangeConfig{
			BaseURL: "http://localhost:3000",
		},
		Feed: FeedConfig{
			Enabled: true,
			WsHost:  "wss://stream.binance.com:9443",
			Symbols: []string{"BTCUSDT", "ETHUSDT"},
		},
		Tiers: tierCfgs,
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "secondsd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "secondsd-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{6 * time.Hour},
			RetentionDays: 30,
		},
		History: HistoryConfig{
			PollInterval: duration{time.Minute},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// TierTable builds the validated domain tier table from the configured rows.
func (c *Config) TierTable() (*domain.TierTable, error) {
	rows := make([]domain.DurationTier, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		rows = append(rows, domain.DurationTier{
			DurationSeconds:   t.DurationSeconds,
			PayoutRatePercent: t.PayoutRatePercent,
			MinAmount:         t.MinAmount,
			MaxAmount:         t.MaxAmount,
		})
	}
	return domain.NewTierTable(rows)
}

var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange — a token source is required for modes that talk to the
	// backend, which is all of them.
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.Token == "" && c.Exchange.EncryptedTokenPath == "" {
		errs = append(errs, "exchange: either token or encrypted_token_path must be set")
	}
	if c.Exchange.EncryptedTokenPath != "" && c.Exchange.TokenPassword == "" {
		errs = append(errs, "exchange: token_password is required when encrypted_token_path is set")
	}

	// Feed
	if c.Feed.Enabled {
		if c.Feed.WsHost == "" {
			errs = append(errs, "feed: ws_host must not be empty when the feed is enabled")
		}
		if len(c.Feed.Symbols) == 0 {
			errs = append(errs, "feed: at least one symbol is required when the feed is enabled")
		}
	}

	// Tiers — full validation happens in TierTable; catch emptiness early.
	if len(c.Tiers) == 0 {
		errs = append(errs, "tiers: at least one tier row is required")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when redis is enabled")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.RetentionDays <= 0 {
			errs = append(errs, "archive: retention_days must be positive when archival is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive when archival is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archival is enabled")
		}
	}

	// History
	if c.History.PollInterval.Duration <= 0 {
		errs = append(errs, "history: poll_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
