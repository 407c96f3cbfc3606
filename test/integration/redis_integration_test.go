package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"travel-intel/pkg/cache"
	"travel-intel/pkg/lock"
	"travel-intel/pkg/storage"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Skipping integration test: redis unreachable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisDurableCacheTier(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()

	store, err := cache.NewRedisStore(rdb, "travel-intel:test:"+uuid.NewString()+":", storage.DefaultRetryPolicy)
	require.NoError(t, err)

	key, err := cache.Key("Lisbon", "itinerary", "abc123")
	require.NoError(t, err)

	writer := cache.New(cache.WithDurable(store))
	require.NoError(t, writer.Put(ctx, key, []byte(`{"days":3}`), time.Minute))

	// A fresh process sees the value through the durable tier.
	reader := cache.New(cache.WithDurable(store))
	got, ok, err := reader.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"days":3}`, string(got))
	assert.Equal(t, int64(1), reader.Stats().DurableHits)

	removed, err := reader.Clear(ctx, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 1)
}

func TestRedisStoreRejectsMisKeyedValue(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	prefix := "travel-intel:test:" + uuid.NewString() + ":"

	store, err := cache.NewRedisStore(rdb, prefix, storage.DefaultRetryPolicy)
	require.NoError(t, err)

	original, err := cache.Key("Lisbon", "itinerary", "abc123")
	require.NoError(t, err)
	other, err := cache.Key("Porto", "itinerary", "abc123")
	require.NoError(t, err)

	require.NoError(t, store.Store(ctx, cache.Entry{Key: original, Value: []byte(`{"days":3}`), StoredAt: time.Now(), TTL: time.Minute}))
	raw, err := rdb.Get(ctx, prefix+original).Bytes()
	require.NoError(t, err)
	require.NoError(t, rdb.Set(ctx, prefix+other, raw, time.Minute).Err())
	t.Cleanup(func() { rdb.Del(context.Background(), prefix+original, prefix+other) })

	_, ok, err := store.Load(ctx, other)
	assert.Error(t, err)
	assert.False(t, ok)

	c := cache.New(cache.WithDurable(store))
	_, ok, err = c.Get(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()
	key := "consolidate:" + uuid.NewString()

	a := lock.NewRedisLocker(rdb, time.Minute)
	b := lock.NewRedisLocker(rdb, time.Minute)

	unlock, err := a.TryLock(ctx, key)
	require.NoError(t, err)

	_, err = b.TryLock(ctx, key)
	assert.ErrorIs(t, err, lock.ErrLockContention)

	require.NoError(t, unlock(ctx))
	unlockB, err := b.TryLock(ctx, key)
	require.NoError(t, err)
	require.NoError(t, unlockB(ctx))
}
