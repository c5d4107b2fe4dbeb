package storage

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/community-pulse/internal/service"
)

// RunLockKey is the Redis key guarding the daily cycle
const RunLockKey = "pulse:run-lock"

// Deletes the key only while it still holds our token, so an expired lock
// taken over by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock is a single-holder lock with a TTL. A crashed holder's
// lock expires on its own.
type RedisRunLock struct {
	cache *RedisCache
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	token string
}

// NewRedisRunLock creates a lock on RunLockKey
func NewRedisRunLock(cache *RedisCache, ttl time.Duration) *RedisRunLock {
	return &RedisRunLock{cache: cache, key: RunLockKey, ttl: ttl}
}

// TryAcquire takes the lock if nobody holds it
func (l *RedisRunLock) TryAcquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.cache.Client().SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release drops the lock if this instance still holds it
func (l *RedisRunLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return nil
	}
	return releaseScript.Run(ctx, l.cache.Client(), []string{l.key}, token).Err()
}

// Holder returns the current holder's token, or "" when the lock is free
func (l *RedisRunLock) Holder(ctx context.Context) (string, error) {
	holder, err := l.cache.Get(ctx, l.key)
	if stderrors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}

var _ service.RunLock = (*RedisRunLock)(nil)
