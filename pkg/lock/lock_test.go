package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerContention(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	unlock, err := l.TryLock(ctx, "santorini")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "santorini")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockContention)
	var lce *LockContentionError
	require.ErrorAs(t, err, &lce)
	assert.Equal(t, "santorini", lce.Key)

	other, err := l.TryLock(ctx, "mykonos")
	require.NoError(t, err, "different destinations never contend")
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	again, err := l.TryLock(ctx, "santorini")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMemoryLockerDoubleUnlockIsSafe(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	first, err := l.TryLock(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, first(ctx))

	second, err := l.TryLock(ctx, "k")
	require.NoError(t, err)

	// A stale unlock from the first holder must not free the second.
	require.NoError(t, first(ctx))
	_, err = l.TryLock(ctx, "k")
	assert.ErrorIs(t, err, ErrLockContention)
	require.NoError(t, second(ctx))
}

func TestMemoryLockerSingleHolderUnderRace(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.TryLock(ctx, "k"); err == nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.EqualValues(t, 1, winners.Load())
}
