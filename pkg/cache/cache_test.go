package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"travel-intel/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = storage.RetryPolicy{Attempts: 2, Delay: time.Millisecond}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFileStore(t *testing.T, dir string) *FileStore {
	t.Helper()
	fs, err := NewFileStore(dir, fastRetry)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestKey(t *testing.T) {
	k1, err := Key("santorini", "themes", "abc")
	require.NoError(t, err)
	assert.Regexp(t, `^themes:[0-9a-f]{64}$`, k1)

	k2, err := Key("santorini", "themes", "abd")
	require.NoError(t, err)
	k3, err := Key("santorini", "nuances", "abc")
	require.NoError(t, err)
	k4, err := Key("mykonos", "themes", "abc")
	require.NoError(t, err)
	again, err := Key(" santorini ", "THEMES", "abc")
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
	assert.Equal(t, k1, again)

	for name, args := range map[string][3]string{
		"no destination": {"", "themes", "abc"},
		"no stage":       {"santorini", "", "abc"},
		"no input hash":  {"santorini", "themes", ""},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Key(args[0], args[1], args[2])
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestPutGetMemoryOnly(t *testing.T) {
	ctx := context.Background()
	c := New()

	require.NoError(t, c.Put(ctx, "k", []byte("v"), time.Hour))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	st := c.Stats()
	assert.EqualValues(t, 1, st.MemoryHits)
	assert.EqualValues(t, 1, st.Misses)
	assert.False(t, st.DurableTier)
	assert.InDelta(t, 0.5, st.HitRate(), 1e-9)
}

func TestReturnedValueIsACopy(t *testing.T) {
	ctx := context.Background()
	c := New()
	in := []byte("abc")
	require.NoError(t, c.Put(ctx, "k", in, time.Hour))
	in[0] = 'X'

	v, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
	v[0] = 'Y'
	v2, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(v2))
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	require.NoError(t, c.Put(ctx, "k", []byte("v"), time.Minute))
	clock.Advance(59 * time.Second)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok, "entry should live until its TTL")

	clock.Advance(time.Second)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "entry must be a miss once TTL elapsed")
	assert.EqualValues(t, 1, c.Stats().Expirations)
}

func TestDefaultTTLAppliesWhenZero(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New(WithClock(clock.Now), WithDefaultTTL(time.Hour))

	require.NoError(t, c.Put(ctx, "k", []byte("v"), 0))
	clock.Advance(59 * time.Minute)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	clock.Advance(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLRUEviction(t *testing.T) {
	ctx := context.Background()
	c := New(WithMaxEntries(2))

	require.NoError(t, c.Put(ctx, "a", []byte("1"), time.Hour))
	require.NoError(t, c.Put(ctx, "b", []byte("2"), time.Hour))
	_, ok, _ := c.Get(ctx, "a")
	require.True(t, ok)
	require.NoError(t, c.Put(ctx, "c", []byte("3"), time.Hour))

	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)

	st := c.Stats()
	assert.EqualValues(t, 1, st.Evictions)
	assert.Equal(t, 2, st.MemoryEntries)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c := New(WithDurable(newFileStore(t, t.TempDir())))
	require.NoError(t, c.Put(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, c.Invalidate(ctx, "k"))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDurableHitRepopulatesMemory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newFakeClock()

	writer := New(WithDurable(newFileStore(t, dir)), WithClock(clock.Now))
	require.NoError(t, writer.Put(ctx, "k", []byte("payload"), time.Hour))

	// A fresh process: empty memory, same directory.
	reader := New(WithDurable(newFileStore(t, dir)), WithClock(clock.Now))
	v, ok, err := reader.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", string(v))
	assert.EqualValues(t, 1, reader.Stats().DurableHits)

	_, ok, _ = reader.Get(ctx, "k")
	assert.True(t, ok)
	assert.EqualValues(t, 1, reader.Stats().MemoryHits)

	// The repopulated entry keeps its original expiry.
	clock.Advance(time.Hour)
	_, ok, _ = reader.Get(ctx, "k")
	assert.False(t, ok)
}

func TestExpiredDurableEntryIsMissAndDeleted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newFakeClock()

	store := newFileStore(t, dir)
	writer := New(WithDurable(store), WithClock(clock.Now))
	require.NoError(t, writer.Put(ctx, "k", []byte("v"), time.Minute))

	clock.Advance(2 * time.Minute)
	reader := New(WithDurable(store), WithClock(clock.Now))
	_, ok, err := reader.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "expired durable entry should be removed")
}

func TestCorruptDurableEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newFileStore(t, dir)
	require.NoError(t, os.WriteFile(store.path("k"), []byte("{not json"), 0o644))

	c := New(WithDurable(store))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.EqualValues(t, 1, c.Stats().DurableErrors)
}

type failingStore struct {
	loadErr, storeErr error
}

func (f *failingStore) Load(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, f.loadErr
}

func (f *failingStore) Store(context.Context, Entry) error         { return f.storeErr }
func (f *failingStore) Delete(context.Context, string) error       { return nil }
func (f *failingStore) Clear(context.Context, string) (int, error) { return 0, nil }
func (f *failingStore) Close() error                               { return nil }

type recordingLogger struct{ warnings int }

func (l *recordingLogger) Warn(string, string, map[string]interface{}) { l.warnings++ }

func TestDurableReadFailureIsMiss(t *testing.T) {
	log := &recordingLogger{}
	c := New(WithDurable(&failingStore{loadErr: &storage.StorageError{Op: "read", Attempts: 3, Err: errors.New("io")}}), WithLogger(log))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, log.warnings)
}

func TestDurableWriteFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	c := New(WithDurable(&failingStore{storeErr: &storage.StorageError{Op: "write", Attempts: 3, Err: errors.New("disk full")}}))
	err := c.Put(ctx, "k", []byte("v"), time.Hour)
	assert.ErrorIs(t, err, storage.ErrStorage)

	// Memory still serves the value written in this process.
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
}

func TestFileStoreWriteFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// The durable "directory" is a regular file, so every write fails.
	c := New(WithDurable(newFileStore(t, filepath.Join(blocker, "cache"))))
	err := c.Put(context.Background(), "k", []byte("v"), time.Hour)
	assert.ErrorIs(t, err, storage.ErrStorage)
}

func TestClearByPrefix(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t, t.TempDir())
	c := New(WithDurable(store))

	themeKey, _ := Key("santorini", "themes", "h1")
	nuanceKey, _ := Key("santorini", "nuances", "h1")
	require.NoError(t, c.Put(ctx, themeKey, []byte("t"), time.Hour))
	require.NoError(t, c.Put(ctx, nuanceKey, []byte("n"), time.Hour))

	removed, err := c.Clear(ctx, "themes:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "one memory entry and one durable entry")

	_, ok, _ := c.Get(ctx, themeKey)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, nuanceKey)
	assert.True(t, ok)
}

func TestMemoize(t *testing.T) {
	ctx := context.Background()
	c := New()
	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	v, hit, err := Memoize(ctx, c, "k", time.Hour, fn)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "computed", string(v))

	v, hit, err = Memoize(ctx, c, "k", time.Hour, fn)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "computed", string(v))
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, _, err = Memoize(ctx, c, "other", time.Hour, func(context.Context) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	_, ok, _ := c.Get(ctx, "other")
	assert.False(t, ok, "failed computations are not cached")
}

func TestNewDurableStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewDurableStore(ctx, "", fastRetry)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewDurableStore(ctx, "file://"+t.TempDir(), fastRetry)
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := New(WithMaxEntries(16))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := string(rune('a' + (g+i)%26))
				_ = c.Put(ctx, key, []byte{byte(i)}, time.Hour)
				_, _, _ = c.Get(ctx, key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Stats().MemoryEntries, 16)
}
