package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/quicktrade/secondsd/internal/blob/s3"
	"github.com/quicktrade/secondsd/internal/cache/redis"
	"github.com/quicktrade/secondsd/internal/config"
	"github.com/quicktrade/secondsd/internal/crypto"
	"github.com/quicktrade/secondsd/internal/domain"
	"github.com/quicktrade/secondsd/internal/notify"
	"github.com/quicktrade/secondsd/internal/platform/exchange"
	"github.com/quicktrade/secondsd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Backend exchange API.
	Exchange *exchange.Client

	// Tier sheet, validated at wire time.
	Tiers *domain.TierTable

	// Settlement journal.
	Journal domain.SettlementJournal

	// Redis-backed components; nil when Redis is disabled.
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage; nil unless archival is wired.
	BlobWriter domain.BlobWriter

	// Operator alerts.
	Notifier *notify.Notifier
}

// needsS3 reports whether the mode runs the journal archiver.
func needsS3(cfg *config.Config) bool {
	if !cfg.Archive.Enabled {
		return false
	}
	switch strings.ToLower(cfg.Mode) {
	case "monitor", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Tier sheet ---
	tiers, err := cfg.TierTable()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: tiers: %w", err)
	}
	deps.Tiers = tiers

	// --- Exchange client ---
	token, err := crypto.LoadToken(crypto.TokenConfig{
		RawToken:           cfg.Exchange.Token,
		EncryptedTokenPath: cfg.Exchange.EncryptedTokenPath,
		TokenPassword:      cfg.Exchange.TokenPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: exchange token: %w", err)
	}
	deps.Exchange = exchange.NewClient(cfg.Exchange.BaseURL, func() string { return token })

	// --- PostgreSQL settlement journal ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.Journal = postgres.NewJournalStore(pgClient.Pool())

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (only when the archiver runs) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
