package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/models"
	"github.com/community-pulse/internal/service"
)

// CacheKeyType represents the kinds of per-date views cached in Redis
type CacheKeyType string

const (
	// CacheKeyStats is the community_daily_stats row
	CacheKeyStats CacheKeyType = "stats"
	// CacheKeyLeaderboard is the Patacoin leaderboard
	CacheKeyLeaderboard CacheKeyType = "leaderboard"
	// CacheKeyGrowth is the growth comparison
	CacheKeyGrowth CacheKeyType = "growth"
)

var dateKeyTypes = []CacheKeyType{CacheKeyStats, CacheKeyLeaderboard, CacheKeyGrowth}

// StatsCache is a JSON read-through cache for per-date API views
type StatsCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewStatsCache creates a new stats cache
func NewStatsCache(redis *RedisCache, ttl time.Duration) *StatsCache {
	return &StatsCache{redis: redis, ttl: ttl}
}

// DateKey builds pulse:<type>:<yyyy-mm-dd>
func DateKey(keyType CacheKeyType, date time.Time) string {
	return strings.Join([]string{"pulse", string(keyType), models.DateOnly(date).Format(models.DateLayout)}, ":")
}

// Set stores value as JSON under key
func (c *StatsCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, c.ttl); err != nil {
		return errors.NewCacheError("set "+key, err)
	}
	return nil
}

// Get decodes key into dest. The bool is false on a miss.
func (c *StatsCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.NewCacheError("get "+key, err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// InvalidateDate drops every cached view of date
func (c *StatsCache) InvalidateDate(ctx context.Context, date time.Time) error {
	keys := make([]string, 0, len(dateKeyTypes))
	for _, t := range dateKeyTypes {
		keys = append(keys, DateKey(t, date))
	}
	if err := c.redis.Del(ctx, keys...); err != nil {
		return errors.NewCacheError("invalidate date", err)
	}
	return nil
}

// Fetch returns the cached value for key, or calls load and caches its
// result. Cache failures fall through to load; they never fail the read.
func Fetch[T any](ctx context.Context, c *StatsCache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if c != nil {
		var cached T
		if hit, err := c.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if c != nil {
		_ = c.Set(ctx, key, value) // nolint:errcheck // best effort
	}
	return value, nil
}

var _ service.CacheInvalidator = (*StatsCache)(nil)
