package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisLockTTL    = 5 * time.Minute
	DefaultRedisLockPrefix = "travel-intel:lock:"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes holders across processes sharing one Redis.
// The lock expires after TTL if the holder dies.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultRedisLockTTL
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, prefix: DefaultRedisLockPrefix}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (Unlock, error) {
	token := uuid.NewString()
	redisKey := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, &LockContentionError{Key: key}
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("lock: release %s: %w", key, err)
		}
		return nil
	}, nil
}
