package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"travel-intel/pkg/storage"
)

// DurableStore is the second cache tier. Load reports found=false for keys it
// does not hold; expiry is decided by the caller.
type DurableStore interface {
	Load(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context, prefix string) (int, error)
	Close() error
}

// NewDurableStore picks a backend from address: empty means no durable tier,
// redis:// or rediss:// selects Redis, anything else is a directory path.
func NewDurableStore(ctx context.Context, address string, retry storage.RetryPolicy) (DurableStore, error) {
	address = strings.TrimSpace(address)
	switch {
	case address == "":
		return nil, nil
	case strings.HasPrefix(address, "redis://"), strings.HasPrefix(address, "rediss://"):
		opt, err := redis.ParseURL(address)
		if err != nil {
			return nil, fmt.Errorf("cache: parse redis address: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("cache: connect redis: %w", err)
		}
		return NewRedisStore(rdb, "", retry)
	default:
		return NewFileStore(strings.TrimPrefix(address, "file://"), retry)
	}
}

// FileStore keeps one envelope file per key, named by the key's SHA-256, and
// replaces files with write-temp-then-rename.
type FileStore struct {
	dir   string
	retry storage.RetryPolicy
	codec *codec
}

func NewFileStore(dir string, retry storage.RetryPolicy) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache: file store needs a directory")
	}
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, retry: retry, codec: c}, nil
}

const entrySuffix = ".entry"

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+entrySuffix)
}

func (s *FileStore) Load(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := storage.ReadFile(ctx, s.retry, s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	e, err := s.codec.decode(raw)
	if err != nil {
		return Entry{}, false, err
	}
	if e.Key != key {
		return Entry{}, false, fmt.Errorf("cache: entry file for %s holds key %s", key, e.Key)
	}
	return e, true, nil
}

func (s *FileStore) Store(ctx context.Context, e Entry) error {
	raw, err := s.codec.encode(e)
	if err != nil {
		return err
	}
	return storage.WriteFile(ctx, s.retry, s.path(e.Key), raw)
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	return storage.RemoveFile(ctx, s.retry, s.path(key))
}

// Clear removes every entry whose key has prefix. Unreadable files are removed too.
func (s *FileStore) Clear(ctx context.Context, prefix string) (int, error) {
	entries, err := storage.ReadDir(ctx, s.retry, s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entrySuffix) {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		if prefix != "" {
			raw, err := storage.ReadFile(ctx, s.retry, path)
			if err == nil {
				if e, derr := s.codec.decode(raw); derr == nil && !strings.HasPrefix(e.Key, prefix) {
					continue
				}
			}
		}
		if err := storage.RemoveFile(ctx, s.retry, path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *FileStore) Close() error {
	s.codec.close()
	return nil
}

// DefaultRedisPrefix namespaces cache keys in a shared Redis.
const DefaultRedisPrefix = "travel-intel:cache:"

// RedisStore keeps envelopes as Redis strings with a PX expiry matching the TTL.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	retry  storage.RetryPolicy
	codec  *codec
}

func NewRedisStore(rdb *redis.Client, prefix string, retry storage.RetryPolicy) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("cache: redis store needs a client")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	return &RedisStore{rdb: rdb, prefix: prefix, retry: retry, codec: c}, nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := storage.Do(ctx, s.retry, "redis get", key, func() ([]byte, error) {
		b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		return Entry{}, false, err
	}
	if raw == nil {
		return Entry{}, false, nil
	}
	e, err := s.codec.decode(raw)
	if err != nil {
		return Entry{}, false, err
	}
	if e.Key != key {
		return Entry{}, false, fmt.Errorf("cache: redis value for %s holds key %s", key, e.Key)
	}
	return e, true, nil
}

func (s *RedisStore) Store(ctx context.Context, e Entry) error {
	raw, err := s.codec.encode(e)
	if err != nil {
		return err
	}
	ttl := max(e.TTL, 0)
	_, err = storage.Do(ctx, s.retry, "redis set", e.Key, func() (struct{}, error) {
		return struct{}{}, s.rdb.Set(ctx, s.prefix+e.Key, raw, ttl).Err()
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := storage.Do(ctx, s.retry, "redis del", key, func() (struct{}, error) {
		return struct{}{}, s.rdb.Del(ctx, s.prefix+key).Err()
	})
	return err
}

// Clear scans for prefixed keys and deletes them in batches.
func (s *RedisStore) Clear(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	match := s.prefix + prefix + "*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, 500).Result()
		if err != nil {
			return removed, &storage.StorageError{Op: "redis scan", Path: match, Attempts: 1, Err: err}
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, &storage.StorageError{Op: "redis del", Path: match, Attempts: 1, Err: err}
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func (s *RedisStore) Close() error {
	s.codec.close()
	return s.rdb.Close()
}
