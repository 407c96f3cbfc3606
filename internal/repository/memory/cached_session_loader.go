package memory

import (
	"context"
	"time"

	"travel-intel/internal/entity"
	"travel-intel/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// CachedSessionLoader keeps loaded record stores around so consecutive runs
// over the same sessions skip re-reading them. Failed loads are not cached.
type CachedSessionLoader struct {
	next  contract.SessionLoader
	cache *cache.Cache
}

func NewCachedSessionLoader(next contract.SessionLoader, ttl time.Duration) *CachedSessionLoader {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSessionLoader{
		next:  next,
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (l *CachedSessionLoader) Load(ctx context.Context, destinationID, sessionID string) (*entity.RecordStore, error) {
	key := sessionKey(destinationID, sessionID)
	if x, found := l.cache.Get(key); found {
		return x.(*entity.RecordStore), nil
	}
	store, err := l.next.Load(ctx, destinationID, sessionID)
	if err != nil {
		return nil, err
	}
	l.cache.Set(key, store, cache.DefaultExpiration)
	return store, nil
}

func (l *CachedSessionLoader) Forget(destinationID, sessionID string) {
	l.cache.Delete(sessionKey(destinationID, sessionID))
}

func (l *CachedSessionLoader) Len() int {
	return l.cache.ItemCount()
}
