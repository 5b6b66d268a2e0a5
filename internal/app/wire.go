package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/leagueauction/internal/blob/s3"
	"github.com/alanyoungcy/leagueauction/internal/cache/redis"
	"github.com/alanyoungcy/leagueauction/internal/config"
	"github.com/alanyoungcy/leagueauction/internal/crypto"
	"github.com/alanyoungcy/leagueauction/internal/notify"
	"github.com/alanyoungcy/leagueauction/internal/queue"
	"github.com/alanyoungcy/leagueauction/internal/service"
	"github.com/alanyoungcy/leagueauction/internal/store/postgres"
)

// Dependencies bundles every dependency that the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Clients, kept for health probes.
	Postgres *postgres.Client
	Redis    *redis.Client

	// Stores
	AuctionStore *postgres.AuctionStore
	AuditStore   *postgres.AuditStore

	// Caches
	SignalBus     *redis.SignalBus
	SnapshotCache *redis.SnapshotCache
	RateLimiter   *redis.RateLimiter
	LockManager   *redis.LockManager // nil unless distributed locks are enabled

	// Blob storage; nil when S3 is disabled.
	Archiver *s3blob.ArchiveImpl

	// Broker; nil when AMQP is disabled.
	Results *queue.ResultsPublisher

	// Notifications
	Notifier *notify.Notifier

	// Services
	Auctions *service.AuctionService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:              cfg.Postgres.DSN,
		Host:             cfg.Postgres.Host,
		Port:             cfg.Postgres.Port,
		Database:         cfg.Postgres.Database,
		User:             cfg.Postgres.User,
		Password:         cfg.Postgres.Password,
		SSLMode:          cfg.Postgres.SSLMode,
		MaxConns:         cfg.Postgres.PoolMaxConns,
		MinConns:         cfg.Postgres.PoolMinConns,
		MaxConnLifetime:  cfg.Postgres.MaxConnLifetime.Duration,
		StatementTimeout: cfg.Postgres.StatementTimeout.Duration,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Postgres = pgClient

	// Run migrations if enabled.
	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.AuctionStore = postgres.NewAuctionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient

	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.SnapshotCache = redis.NewSnapshotCache(redisClient, cfg.Redis.SnapshotTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient, 0, 0)
	if cfg.Redis.DistributedLocks {
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.AuditStore,
		)
	}

	// --- AMQP results hand-off ---
	if cfg.AMQP.Enabled {
		deps.Results = queue.NewResultsPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, logger).
			WithSigner(crypto.NewHMACSigner(cfg.AMQP.SigningSecret))
		closers = append(closers, func() { _ = deps.Results.Close() })
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

	deps.Auctions = newAuctionService(cfg, deps, logger)

	return deps, cleanup, nil
}

// newAuctionService assembles the service over every configured backend.
// Optional backends are attached only when present so that no typed nil
// ends up behind an interface.
func newAuctionService(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *service.AuctionService {
	svc := service.NewAuctionService(deps.AuctionStore, deps.AuditStore, logger).
		WithBidStore(deps.AuctionStore).
		WithSignalBus(deps.SignalBus).
		WithSnapshotCache(deps.SnapshotCache).
		WithRateLimiter(deps.RateLimiter, service.BidLimit{
			Limit:  cfg.Server.BidRateLimit,
			Window: cfg.Server.BidRateWindow.Duration,
		})

	if deps.LockManager != nil {
		svc.WithLockManager(deps.LockManager, cfg.Redis.LockTTL.Duration)
	}
	if deps.Archiver != nil {
		svc.WithArchiver(deps.Archiver)
	}
	if deps.Results != nil {
		svc.WithResultsPublisher(deps.Results)
	}
	if deps.Notifier.Enabled() {
		svc.WithNotifier(deps.Notifier)
	}
	return svc
}
