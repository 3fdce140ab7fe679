package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/stakearena/internal/blob/s3"
	"github.com/alanyoungcy/stakearena/internal/cache/redis"
	"github.com/alanyoungcy/stakearena/internal/config"
	"github.com/alanyoungcy/stakearena/internal/domain"
	"github.com/alanyoungcy/stakearena/internal/notify"
	"github.com/alanyoungcy/stakearena/internal/store/postgres"
)

// Dependencies holds every externally-backed resource the application modes
// build services from: Postgres stores, Redis caches, blob storage, and the
// operator notifier. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Postgres-backed stores.
	Accounts domain.AccountStore
	Escrows  domain.EscrowStore
	Records  domain.MatchRecordStore
	Stats    domain.StatsStore
	Vouchers domain.VoucherStore
	Audit    domain.AuditStore

	// Redis-backed coordination.
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Presence    domain.PresenceCache
	Leaderboard domain.LeaderboardCache

	// Blob storage, wired only when archival is enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifier pushes operator alerts. Always non-nil; with no channels
	// configured it is a no-op.
	Notifier *notify.Notifier
}

// Wire connects to Postgres, Redis, and (when archival is enabled) S3, and
// returns the assembled Dependencies plus a cleanup function that closes every
// connection in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Postgres.
	pg, err := postgres.New(ctx, postgres.ClientConfig{
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
	closers = append(closers, pg.Close)

	if cfg.Postgres.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: migrations: %w", err)
		}
		logger.InfoContext(ctx, "migrations applied")
	}

	pool := pg.Pool()
	deps.Accounts = postgres.NewAccountStore(pool)
	deps.Escrows = postgres.NewEscrowStore(pool)
	deps.Records = postgres.NewMatchRecordStore(pool)
	deps.Stats = postgres.NewStatsStore(pool)
	deps.Vouchers = postgres.NewVoucherStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// Redis.
	rds, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = rds.Close() })

	deps.SignalBus = redis.NewSignalBus(rds)
	deps.RateLimiter = redis.NewRateLimiter(rds)
	deps.Locks = redis.NewLockManager(rds)
	deps.Presence = redis.NewPresenceCache(rds)
	deps.Leaderboard = redis.NewLeaderboardCache(rds)

	// S3 blob storage, only when match archival is on.
	if cfg.Archive.Enabled {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
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
		writer := s3blob.NewWriter(s3c)
		reader := s3blob.NewReader(s3c)
		deps.BlobWriter = writer
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(writer, reader, deps.Records, deps.Audit)
	}

	// Operator notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("archive", cfg.Archive.Enabled),
		slog.Int("notify_senders", len(senders)),
	)

	return deps, cleanup, nil
}
