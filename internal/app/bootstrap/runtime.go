package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/havana-support/internal/chat"
	appconfig "github.com/wolfman30/havana-support/internal/config"
	"github.com/wolfman30/havana-support/internal/faq"
	"github.com/wolfman30/havana-support/internal/live"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// ConnectPostgres opens a pgx pool plus a database/sql handle sharing it.
// An empty URL returns nils so callers fall back to in-memory storage.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *logging.Logger) (*pgxpool.Pool, *sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, stdlib.OpenDBFromPool(pool), nil
}

// BuildChatRepository picks Postgres when a pool is available.
func BuildChatRepository(pool *pgxpool.Pool, logger *logging.Logger) chat.Repository {
	if logger == nil {
		logger = logging.Default()
	}
	if pool == nil {
		logger.Warn("DATABASE_URL not set; sessions are kept in memory")
		return chat.NewInMemoryRepository()
	}
	return chat.NewPostgresRepository(pool)
}

// BuildFAQRepository reads the taxonomy from SQL, or the built-in seed
// without a database, and caches the lists in Redis when available.
func BuildFAQRepository(cfg *appconfig.Config, db *sql.DB, redisClient *redis.Client, logger *logging.Logger) faq.Repository {
	if logger == nil {
		logger = logging.Default()
	}

	var repo faq.Repository
	if db != nil {
		repo = faq.NewSQLRepository(db)
	} else {
		logger.Warn("no database; serving the built-in FAQ taxonomy")
		repo = faq.NewSeedRepository()
	}
	if redisClient == nil {
		return repo
	}

	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.FAQCacheTTL
	}
	logger.Info("faq taxonomy cache enabled", "ttl", ttl.String())
	return faq.NewCachedRepository(repo, redisClient, ttl, logger)
}

// BuildBroker returns the Redis broker when LIVE_BROKER=redis and a client
// exists; every other combination gets the in-process broker.
func BuildBroker(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) live.Broker {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil && cfg.LiveBroker == "redis" {
		if redisClient != nil {
			return live.NewRedisBroker(redisClient, logger)
		}
		logger.Warn("LIVE_BROKER=redis but redis is unavailable; using in-memory broker")
	}
	return live.NewMemoryBroker()
}
