package cache

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a controllable time source for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(clock *fakeClock) *Cache {
	return New(Config{}, slog.Default(), WithClock(clock.Now))
}

type sample struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tasks", Key("tasks"))
	assert.Equal(t, "tasks:list", Key("tasks", "list"))
	assert.Equal(t, "tasks:user:42", Key("tasks", "user", "42"))
}

func TestCache_SetAndGet(t *testing.T) {
	t.Parallel()

	c := newTestCache(newFakeClock())

	stored := sample{Name: "alpha", Tags: []string{"a", "b"}}
	require.NoError(t, c.Set("k", stored, time.Minute))

	var got sample
	found, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, stored, got)
}

func TestCache_EmptyKeyRejected(t *testing.T) {
	t.Parallel()

	c := newTestCache(newFakeClock())

	err := c.Set("", "value", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)

	var dest string
	_, err = c.Get("", &dest)
	assert.ErrorIs(t, err, ErrInvalidKey)

	// Has treats the empty key the same way: never present.
	assert.False(t, c.Has(""))
}

func TestCache_ValuesAreIsolated(t *testing.T) {
	t.Parallel()

	c := newTestCache(newFakeClock())

	original := sample{Name: "alpha", Tags: []string{"a", "b"}}
	require.NoError(t, c.Set("k", original, time.Minute))

	// Mutating the original after Set must not affect the cached copy.
	original.Name = "mutated"
	original.Tags[0] = "z"

	var first sample
	found, err := c.Get("k", &first)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alpha", first.Name)
	assert.Equal(t, []string{"a", "b"}, first.Tags)

	// Mutating a returned value must not affect later reads.
	first.Tags[1] = "y"

	var second sample
	found, err = c.Get("k", &second)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"a", "b"}, second.Tags)
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := newTestCache(clock)

	require.NoError(t, c.Set("k", "value", time.Minute))

	var dest string
	found, err := c.Get("k", &dest)
	require.NoError(t, err)
	assert.True(t, found)

	clock.Advance(time.Minute + time.Second)

	found, err = c.Get("k", &dest)
	require.NoError(t, err)
	assert.False(t, found)

	// The expired entry was reclaimed by the lookup itself.
	assert.Zero(t, c.Len())
}

func TestCache_ExpiryIsAbsolute(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := newTestCache(clock)

	require.NoError(t, c.Set("k", "value", time.Minute))

	// Reads partway through the TTL must not extend it.
	clock.Advance(45 * time.Second)
	var dest string
	found, err := c.Get("k", &dest)
	require.NoError(t, err)
	require.True(t, found)

	clock.Advance(30 * time.Second)
	found, err = c.Get("k", &dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_DefaultTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := New(Config{DefaultTTL: 10 * time.Second}, slog.Default(), WithClock(clock.Now))

	require.NoError(t, c.Set("k", "value", 0))

	clock.Advance(5 * time.Second)
	assert.True(t, c.Has("k"))

	clock.Advance(6 * time.Second)
	assert.False(t, c.Has("k"))
}

func TestCache_HasReclaimsExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := newTestCache(clock)

	require.NoError(t, c.Set("k", "value", time.Minute))
	require.Equal(t, 1, c.Len())

	clock.Advance(2 * time.Minute)

	assert.False(t, c.Has("k"))
	assert.Zero(t, c.Len())
}

func TestCache_Delete(t *testing.T) {
	t.Parallel()

	c := newTestCache(newFakeClock())

	require.NoError(t, c.Set("k", "value", time.Minute))
	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))
	assert.False(t, c.Has("k"))
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := newTestCache(newFakeClock())

	require.NoError(t, c.Set("a", 1, time.Minute))
	require.NoError(t, c.Set("b", 2, time.Minute))
	require.Equal(t, 2, c.Len())

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestCache_Overwrite(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := newTestCache(clock)

	require.NoError(t, c.Set("k", "old", time.Minute))
	require.NoError(t, c.Set("k", "new", time.Hour))

	// Overwrite replaces both value and expiry.
	clock.Advance(30 * time.Minute)

	var dest string
	found, err := c.Get("k", &dest)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", dest)
}

func TestCache_Sweep(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := newTestCache(clock)

	require.NoError(t, c.Set("expired-1", 1, time.Minute))
	require.NoError(t, c.Set("expired-2", 2, time.Minute))
	require.NoError(t, c.Set("live", 3, time.Hour))
	require.Equal(t, 3, c.Len())

	clock.Advance(10 * time.Minute)
	c.sweep()

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Has("live"))
}

func TestCache_SweeperLifecycle(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := New(Config{SweepInterval: 5 * time.Millisecond}, slog.Default(), WithClock(clock.Now))

	require.NoError(t, c.Set("k", "value", time.Minute))
	clock.Advance(2 * time.Minute)

	c.StartSweeper()

	require.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, time.Millisecond)

	c.Stop()
}

func TestCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := newTestCache(newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := Key("worker", string(rune('a'+n)))
			for j := 0; j < 100; j++ {
				assert.NoError(t, c.Set(key, j, time.Minute))
				var dest int
				_, err := c.Get(key, &dest)
				assert.NoError(t, err)
				c.Has(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, c.Len())
}
