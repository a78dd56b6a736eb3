package ratelimit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/supportcore/pkg/kvstore"
	"github.com/dmitrymomot/supportcore/pkg/ratelimit"
)

var epoch = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func newLimiter(t *testing.T, limits ratelimit.Limits, opts ...ratelimit.Option) (*ratelimit.Limiter, *clockwork.FakeClock, *kvstore.MemoryStore) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(epoch)
	store := kvstore.NewMemoryStore(kvstore.WithClock(clock), kvstore.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	base := []ratelimit.Option{
		ratelimit.WithLimits(limits),
		ratelimit.WithClock(clock),
		ratelimit.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return ratelimit.New(store, append(base, opts...)...), clock, store
}

func TestLimiter_HourlyLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, clock, _ := newLimiter(t, ratelimit.Limits{Hour: 100, Day: 1000})

	for i := 1; i <= 100; i++ {
		d, err := limiter.CheckAndIncrement(ctx, "u1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %d", i)
		assert.Equal(t, 100-i, d.RemainingHour)
	}

	d, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ScopeHour, d.Exceeded)
	assert.Equal(t, 0, d.RemainingHour)
	assert.Equal(t, 899, d.RemainingDay)
	assert.Equal(t, time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC), d.ResetAt)
	assert.Equal(t, 30*time.Minute, d.RetryAfter())

	err = d.Err()
	require.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)
	var exceeded *ratelimit.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, ratelimit.ScopeHour, exceeded.Scope)
	assert.Equal(t, 100, exceeded.Limit)

	// rejected calls still count
	d, err = limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(102), d.Hour.Count)

	clock.Advance(30*time.Minute + time.Second)
	d, err = limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Hour.Count)
	assert.Equal(t, int64(103), d.Day.Count)
	assert.Equal(t, 99, d.RemainingHour)
}

func TestLimiter_DailyLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, clock, _ := newLimiter(t, ratelimit.Limits{Hour: 100, Day: 3})

	for range 3 {
		d, err := limiter.CheckAndIncrement(ctx, "u1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ScopeDay, d.Exceeded)
	assert.Equal(t, 0, d.RemainingDay)
	assert.Equal(t, 96, d.RemainingHour)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), d.ResetAt)

	// the next hour does not reset the day
	clock.Advance(time.Hour)
	d, err = limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	clock.Advance(13 * time.Hour)
	d, err = limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_HourCheckedFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, _ := newLimiter(t, ratelimit.Limits{Hour: 1, Day: 1})

	_, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)

	d, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ScopeHour, d.Exceeded)
	assert.Equal(t, int64(2), d.Day.Count, "both windows count")
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	limiter, _, _ := newLimiter(t, ratelimit.Limits{})
	d, err := limiter.CheckAndIncrement(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, -1, d.RemainingHour)
	assert.Equal(t, -1, d.RemainingDay)
	assert.NoError(t, d.Err())
	assert.Zero(t, d.RetryAfter())
}

func TestLimiter_UsersAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, _ := newLimiter(t, ratelimit.Limits{Hour: 1, Day: 10})

	d, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.CheckAndIncrement(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, _ := newLimiter(t, ratelimit.Limits{Hour: 20, Day: 1000})

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.CheckAndIncrement(ctx, "u1")
			if assert.NoError(t, err) && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), allowed.Load())
}

func TestLimiter_LimitsFunc(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var hour atomic.Int64
	hour.Store(1)
	limiter, _, _ := newLimiter(t, ratelimit.Limits{}, ratelimit.WithLimitsFunc(func() ratelimit.Limits {
		return ratelimit.Limits{Hour: int(hour.Load()), Day: 100}
	}))

	_, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	d, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	hour.Store(5)
	d, err = limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.RemainingHour)
}

func TestLimiter_Status(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, _ := newLimiter(t, ratelimit.Limits{Hour: 2, Day: 10})

	d, err := limiter.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.RemainingHour)
	assert.Zero(t, d.Hour.Count)

	_, err = limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)

	d, err = limiter.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.RemainingHour)
	assert.Equal(t, 9, d.RemainingDay)

	_, err = limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)

	d, err = limiter.Status(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ScopeHour, d.Exceeded)
	assert.Equal(t, int64(2), d.Hour.Count, "status does not count")
}

func TestLimiter_Reset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, _ := newLimiter(t, ratelimit.Limits{Hour: 1, Day: 10})

	_, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	d, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NoError(t, limiter.Reset(ctx, "u1"))

	d, err = limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Day.Count)
}

func TestLimiter_CounterKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	limiter, _, store := newLimiter(t, ratelimit.Limits{Hour: 10, Day: 10})

	_, err := limiter.CheckAndIncrement(ctx, "u1")
	require.NoError(t, err)

	keys, err := store.Scan(ctx, "ratelimit:u1:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		ratelimit.Key("u1", ratelimit.ScopeHour, ratelimit.Bucket(ratelimit.ScopeHour, epoch)),
		ratelimit.Key("u1", ratelimit.ScopeDay, ratelimit.Bucket(ratelimit.ScopeDay, epoch)),
	}, keys)
}

func TestLimiter_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty user", func(t *testing.T) {
		t.Parallel()
		limiter, _, _ := newLimiter(t, ratelimit.Limits{Hour: 1, Day: 1})
		_, err := limiter.CheckAndIncrement(ctx, "")
		assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
		_, err = limiter.Status(ctx, "")
		assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
		assert.ErrorIs(t, limiter.Reset(ctx, ""), ratelimit.ErrKeyRequired)
	})

	t.Run("storage unavailable fails closed", func(t *testing.T) {
		t.Parallel()
		limiter := ratelimit.New(failingStore{}, ratelimit.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		d, err := limiter.CheckAndIncrement(ctx, "u1")
		assert.Nil(t, d)
		assert.ErrorIs(t, err, kvstore.ErrUnavailable)
	})

	t.Run("corrupt counter", func(t *testing.T) {
		t.Parallel()
		limiter, _, store := newLimiter(t, ratelimit.Limits{Hour: 1, Day: 1})
		key := ratelimit.Key("u1", ratelimit.ScopeHour, ratelimit.Bucket(ratelimit.ScopeHour, epoch))
		require.NoError(t, store.Set(ctx, key, []byte("nope"), time.Minute))

		_, err := limiter.Status(ctx, "u1")
		assert.ErrorIs(t, err, ratelimit.ErrCorruptCounter)
	})

	t.Run("nil store panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { ratelimit.New(nil) })
	})
}

type failingStore struct {
	kvstore.Store
}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.Join(kvstore.ErrUnavailable, context.DeadlineExceeded)
}
