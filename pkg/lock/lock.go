// Package lock provides the per-destination advisory lock held for the
// duration of a consolidation run.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLockContention matches any *LockContentionError with errors.Is.
var ErrLockContention = errors.New("lock is held")

// LockContentionError reports that another run holds the lock for Key.
type LockContentionError struct {
	Key string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("lock: %q is held by another consolidation", e.Key)
}

func (e *LockContentionError) Is(target error) bool { return target == ErrLockContention }

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

// Locker hands out non-blocking exclusive locks by key.
type Locker interface {
	TryLock(ctx context.Context, key string) (Unlock, error)
}

// MemoryLocker serializes holders within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, &LockContentionError{Key: key}
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
