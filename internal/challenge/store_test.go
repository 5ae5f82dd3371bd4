package challenge

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

type storeFixture struct {
	store   Store
	advance func(time.Duration)
}

func fixtures(t *testing.T) map[string]storeFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	mem := newMemoryStore(clock.Now)

	return map[string]storeFixture{
		"redis":  {store: NewRedisStore(client, time.Second), advance: mr.FastForward},
		"memory": {store: mem, advance: clock.Advance},
	}
}

func TestStore_GetSetExpire(t *testing.T) {
	for name, f := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := f.store.Get(ctx, "otp:code:1")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, f.store.Set(ctx, "otp:code:1", "123456", time.Minute))
			got, err := f.store.Get(ctx, "otp:code:1")
			require.NoError(t, err)
			assert.Equal(t, "123456", got)

			ttl, err := f.store.TTL(ctx, "otp:code:1")
			require.NoError(t, err)
			assert.InDelta(t, time.Minute, ttl, float64(time.Second))

			f.advance(61 * time.Second)
			_, err = f.store.Get(ctx, "otp:code:1")
			require.ErrorIs(t, err, ErrNotFound)

			ttl, err = f.store.TTL(ctx, "otp:code:1")
			require.NoError(t, err)
			assert.Zero(t, ttl)
		})
	}
}

func TestStore_IncrAnchorsTTLOnFirstIncrement(t *testing.T) {
	for name, f := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			n, err := f.store.Incr(ctx, "otp:rate:1", time.Hour)
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)

			f.advance(30 * time.Minute)
			n, err = f.store.Incr(ctx, "otp:rate:1", time.Hour)
			require.NoError(t, err)
			assert.EqualValues(t, 2, n)

			// window is not extended by later increments
			f.advance(31 * time.Minute)
			exists, err := f.store.Exists(ctx, "otp:rate:1")
			require.NoError(t, err)
			assert.False(t, exists)

			n, err = f.store.Incr(ctx, "otp:rate:1", time.Hour)
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)
		})
	}
}

func TestStore_SetNXAndDel(t *testing.T) {
	for name, f := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := f.store.SetNX(ctx, "reg:used:jti", "1", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = f.store.SetNX(ctx, "reg:used:jti", "1", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, f.store.Del(ctx, "reg:used:jti", "missing"))
			exists, err := f.store.Exists(ctx, "reg:used:jti")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestStore_CompareAndDel(t *testing.T) {
	for name, f := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := f.store.CompareAndDel(ctx, "otp:code:1", "123456")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, f.store.Set(ctx, "otp:code:1", "123456", time.Minute))
			ok, err = f.store.CompareAndDel(ctx, "otp:code:1", "654321")
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := f.store.Get(ctx, "otp:code:1")
			require.NoError(t, err)
			assert.Equal(t, "123456", got)

			ok, err = f.store.CompareAndDel(ctx, "otp:code:1", "123456")
			require.NoError(t, err)
			assert.True(t, ok)

			_, err = f.store.Get(ctx, "otp:code:1")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ConcurrentCompareAndDel(t *testing.T) {
	for name, f := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 20
			require.NoError(t, f.store.Set(ctx, "otp:code:1", "123456", time.Minute))

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					ok, err := f.store.CompareAndDel(ctx, "otp:code:1", "123456")
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
		})
	}
}

func TestMemoryStore_IncrNonInteger(t *testing.T) {
	s := newMemoryStore(time.Now)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "otp:rate:1", "abc", time.Minute))

	_, err := s.Incr(ctx, "otp:rate:1", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incr otp:rate:1")
	var numErr *strconv.NumError
	assert.ErrorAs(t, err, &numErr)
}

func TestStore_ConcurrentIncr(t *testing.T) {
	for name, f := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 50

			var wg sync.WaitGroup
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					_, err := f.store.Incr(ctx, "otp:attempts:1", time.Minute)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := f.store.Get(ctx, "otp:attempts:1")
			require.NoError(t, err)
			assert.Equal(t, "50", got)
		})
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := newMemoryStore(clock.Now)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "1", time.Second))
	require.NoError(t, s.Set(ctx, "b", "1", 0))
	clock.Advance(2 * time.Second)
	s.sweep()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotContains(t, s.entries, "a")
	assert.Contains(t, s.entries, "b")
}
