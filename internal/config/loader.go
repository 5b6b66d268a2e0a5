package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AUCTIOND_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AUCTIOND_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Auction ──
	setInt(&cfg.Auction.BidTimerSeconds, "AUCTIOND_AUCTION_BID_TIMER_SECONDS")
	setInt64(&cfg.Auction.MinimumBid, "AUCTIOND_AUCTION_MINIMUM_BID")
	setInt64(&cfg.Auction.BidIncrement, "AUCTIOND_AUCTION_BID_INCREMENT")
	setInt64(&cfg.Auction.DefaultBudget, "AUCTIOND_AUCTION_DEFAULT_BUDGET")
	setInt(&cfg.Auction.MaxItemsPerParticipant, "AUCTIOND_AUCTION_MAX_ITEMS_PER_PARTICIPANT")
	setInt(&cfg.Auction.NominationTimeoutSeconds, "AUCTIOND_AUCTION_NOMINATION_TIMEOUT_SECONDS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AUCTIOND_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // conventional alias
	setStr(&cfg.Postgres.Host, "AUCTIOND_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AUCTIOND_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AUCTIOND_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AUCTIOND_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AUCTIOND_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AUCTIOND_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AUCTIOND_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AUCTIOND_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AUCTIOND_POSTGRES_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.StatementTimeout, "AUCTIOND_POSTGRES_STATEMENT_TIMEOUT")
	setBool(&cfg.Postgres.RunMigrations, "AUCTIOND_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AUCTIOND_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AUCTIOND_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AUCTIOND_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AUCTIOND_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AUCTIOND_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AUCTIOND_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "AUCTIOND_REDIS_KEY_PREFIX")
	setBool(&cfg.Redis.DistributedLocks, "AUCTIOND_REDIS_DISTRIBUTED_LOCKS")
	setDuration(&cfg.Redis.LockTTL, "AUCTIOND_REDIS_LOCK_TTL")
	setDuration(&cfg.Redis.SnapshotTTL, "AUCTIOND_REDIS_SNAPSHOT_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AUCTIOND_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AUCTIOND_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AUCTIOND_S3_REGION")
	setStr(&cfg.S3.Bucket, "AUCTIOND_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AUCTIOND_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AUCTIOND_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AUCTIOND_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AUCTIOND_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "AUCTIOND_S3_PREFIX")

	// ── AMQP ──
	setBool(&cfg.AMQP.Enabled, "AUCTIOND_AMQP_ENABLED")
	setStr(&cfg.AMQP.URL, "AUCTIOND_AMQP_URL")
	setStr(&cfg.AMQP.Queue, "AUCTIOND_AMQP_QUEUE")
	setStr(&cfg.AMQP.SigningSecret, "AUCTIOND_AMQP_SIGNING_SECRET")

	// ── Server ──
	setInt(&cfg.Server.Port, "AUCTIOND_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AUCTIOND_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AUCTIOND_SERVER_API_KEY")
	setStr(&cfg.Server.JWTSecret, "AUCTIOND_SERVER_JWT_SECRET")
	setDuration(&cfg.Server.TokenTTL, "AUCTIOND_SERVER_TOKEN_TTL")
	setInt(&cfg.Server.RequestRateLimit, "AUCTIOND_SERVER_REQUEST_RATE_LIMIT")
	setDuration(&cfg.Server.RequestRateWindow, "AUCTIOND_SERVER_REQUEST_RATE_WINDOW")
	setInt(&cfg.Server.BidRateLimit, "AUCTIOND_SERVER_BID_RATE_LIMIT")
	setDuration(&cfg.Server.BidRateWindow, "AUCTIOND_SERVER_BID_RATE_WINDOW")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.TickInterval, "AUCTIOND_SCHEDULER_TICK_INTERVAL")
	setStr(&cfg.Scheduler.ArchiveCron, "AUCTIOND_SCHEDULER_ARCHIVE_CRON")
	setInt(&cfg.Scheduler.ArchiveBatch, "AUCTIOND_SCHEDULER_ARCHIVE_BATCH")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AUCTIOND_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AUCTIOND_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AUCTIOND_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AUCTIOND_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AUCTIOND_MODE")
	setStr(&cfg.LogLevel, "AUCTIOND_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
