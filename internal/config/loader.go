package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SECONDSD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SECONDSD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "SECONDSD_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.Token, "SECONDSD_EXCHANGE_TOKEN")
	setStr(&cfg.Exchange.EncryptedTokenPath, "SECONDSD_EXCHANGE_ENCRYPTED_TOKEN_PATH")
	setStr(&cfg.Exchange.TokenPassword, "SECONDSD_EXCHANGE_TOKEN_PASSWORD")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "SECONDSD_FEED_ENABLED")
	setStr(&cfg.Feed.WsHost, "SECONDSD_FEED_WS_HOST")
	setStringSlice(&cfg.Feed.Symbols, "SECONDSD_FEED_SYMBOLS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SECONDSD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SECONDSD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SECONDSD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SECONDSD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SECONDSD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SECONDSD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SECONDSD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SECONDSD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SECONDSD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SECONDSD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SECONDSD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SECONDSD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SECONDSD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SECONDSD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SECONDSD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SECONDSD_REDIS_MAX_RETRIES")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SECONDSD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SECONDSD_S3_REGION")
	setStr(&cfg.S3.Bucket, "SECONDSD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SECONDSD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SECONDSD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SECONDSD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SECONDSD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SECONDSD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SECONDSD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SECONDSD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SECONDSD_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SECONDSD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SECONDSD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SECONDSD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SECONDSD_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SECONDSD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "SECONDSD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "SECONDSD_ARCHIVE_RETENTION_DAYS")

	// ── History ──
	setDuration(&cfg.History.PollInterval, "SECONDSD_HISTORY_POLL_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "SECONDSD_MODE")
	setStr(&cfg.LogLevel, "SECONDSD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
