package faq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/havana-support/pkg/logging"
)

const (
	categoriesKey    = "faq:categories"
	subcategoriesKey = "faq:subcategories"
)

// CachedRepository serves the taxonomy lists from Redis and falls through to
// the wrapped repository on a miss. Items are never cached.
type CachedRepository struct {
	inner  Repository
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *logging.Logger
}

// NewCachedRepository wraps inner with a Redis cache.
func NewCachedRepository(inner Repository, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRepository {
	if inner == nil {
		panic("faq: inner repository required")
	}
	if client == nil {
		panic("faq: redis client required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedRepository{
		inner:  inner,
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("havana.internal.faq.cache"),
		logger: logger,
	}
}

func (c *CachedRepository) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.load(ctx, categoriesKey, &out, func(ctx context.Context) (any, error) {
		return c.inner.Categories(ctx)
	})
	return out, err
}

func (c *CachedRepository) Subcategories(ctx context.Context) ([]Subcategory, error) {
	var out []Subcategory
	err := c.load(ctx, subcategoriesKey, &out, func(ctx context.Context) (any, error) {
		return c.inner.Subcategories(ctx)
	})
	return out, err
}

func (c *CachedRepository) Items(ctx context.Context, subcategoryID int64) ([]Item, error) {
	return c.inner.Items(ctx, subcategoryID)
}

func (c *CachedRepository) ItemsForTopics(ctx context.Context, topics []string) ([]Item, error) {
	return c.inner.ItemsForTopics(ctx, topics)
}

// Invalidate drops the cached lists.
func (c *CachedRepository) Invalidate(ctx context.Context) error {
	return c.redis.Del(ctx, categoriesKey, subcategoriesKey).Err()
}

func (c *CachedRepository) load(ctx context.Context, key string, dest any, fetch func(context.Context) (any, error)) error {
	ctx, span := c.tracer.Start(ctx, "faq.cache_load")
	defer span.End()
	span.SetAttributes(attribute.String("faq.cache_key", key))

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, dest); jsonErr == nil {
			span.SetAttributes(attribute.Bool("faq.cache_hit", true))
			return nil
		}
		c.logger.Warn("faq cache entry unreadable", "key", key)
	case !errors.Is(err, redis.Nil):
		// Redis trouble degrades to a direct read.
		span.RecordError(err)
		c.logger.Warn("faq cache read failed", "key", key, "error", err)
	}
	span.SetAttributes(attribute.Bool("faq.cache_hit", false))

	fresh, err := fetch(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	encoded, err := json.Marshal(fresh)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.logger.Warn("faq cache write failed", "key", key, "error", err)
	}
	return json.Unmarshal(encoded, dest)
}
