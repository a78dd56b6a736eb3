package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/supportcore/pkg/config"
)

// mutableEnv is an environment whose values can be swapped between reloads.
type mutableEnv struct {
	mu   sync.Mutex
	vars map[string]string
}

func newMutableEnv(vars map[string]string) *mutableEnv {
	return &mutableEnv{vars: vars}
}

func (e *mutableEnv) set(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[key] = value
}

func (e *mutableEnv) replace(vars map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars = vars
}

func (e *mutableEnv) snapshot() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

type reloadRecorder struct {
	ok, failed atomic.Int32
}

func (r *reloadRecorder) ConfigReloaded(err error) {
	if err != nil {
		r.failed.Add(1)
		return
	}
	r.ok.Add(1)
}

func TestManager_Load(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	mgr := config.NewManager(
		config.WithStaticEnviron(map[string]string{"MAX_SESSIONS": "25"}),
		config.WithManagerClock(clock),
	)
	assert.Nil(t, mgr.Current())
	assert.Panics(t, func() { mgr.MustCurrent() })

	require.NoError(t, mgr.Load(context.Background()))

	snap := mgr.Current()
	require.NotNil(t, snap)
	assert.Equal(t, 25, snap.MaxSessions)
	assert.Equal(t, uint64(1), snap.Revision)
	assert.Equal(t, clock.Now(), snap.LoadedAt)
	assert.Same(t, snap, mgr.MustCurrent())
}

func TestManager_LoadFailsFast(t *testing.T) {
	t.Parallel()

	mgr := config.NewManager(config.WithStaticEnviron(map[string]string{"CACHE_TTL": "abc"}))

	err := mgr.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrValidation)
	assert.Nil(t, mgr.Current())
}

func TestManager_Reload(t *testing.T) {
	t.Parallel()

	env := newMutableEnv(map[string]string{"MAX_REQUESTS_HOUR": "10"})
	recorder := &reloadRecorder{}
	mgr := config.NewManager(config.WithEnviron(env.snapshot), config.WithReloadObserver(recorder))
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	var hooked []int
	mgr.OnReload(func(previous, current *config.Snapshot) {
		hooked = append(hooked, previous.MaxRequestsHour, current.MaxRequestsHour)
	})

	t.Run("applies new values", func(t *testing.T) {
		env.set("MAX_REQUESTS_HOUR", "20")

		snap, err := mgr.Reload(ctx)
		require.NoError(t, err)
		assert.Equal(t, 20, snap.MaxRequestsHour)
		assert.Equal(t, 20, mgr.Current().MaxRequestsHour)
		assert.Equal(t, uint64(2), mgr.Current().Revision)
		assert.Equal(t, []int{10, 20}, hooked)
	})

	t.Run("rejects invalid values and keeps previous", func(t *testing.T) {
		before := mgr.Current()
		env.set("MAX_REQUESTS_HOUR", "-1")

		_, err := mgr.Reload(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrValidation)
		assert.Same(t, before, mgr.Current())
	})

	t.Run("rejects unparsable values and keeps previous", func(t *testing.T) {
		before := mgr.Current()
		env.set("MAX_REQUESTS_HOUR", "20")
		env.set("CACHE_TTL", "abc")

		_, err := mgr.Reload(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrValidation)
		assert.Same(t, before, mgr.Current())
		assert.Equal(t, 20, mgr.Current().MaxRequestsHour)
	})

	assert.Equal(t, int32(1), recorder.ok.Load())
	assert.Equal(t, int32(2), recorder.failed.Load())
}

func TestManager_SnapshotsAreImmutable(t *testing.T) {
	t.Parallel()

	env := newMutableEnv(map[string]string{"FEATURE_FLAGS": "beta:true"})
	mgr := config.NewManager(config.WithEnviron(env.snapshot))
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	first := mgr.Current()
	env.set("FEATURE_FLAGS", "beta:false")
	_, err := mgr.Reload(ctx)
	require.NoError(t, err)

	assert.True(t, first.Feature("beta"))
	assert.False(t, mgr.Current().Feature("beta"))
}

func TestManager_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	t.Parallel()

	a := map[string]string{"MAX_REQUESTS_HOUR": "10", "MAX_REQUESTS_DAY": "100"}
	b := map[string]string{"MAX_REQUESTS_HOUR": "20", "MAX_REQUESTS_DAY": "200"}
	env := newMutableEnv(a)
	mgr := config.NewManager(config.WithEnviron(env.snapshot), config.WithManagerLogger(discardLogger()))
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := mgr.Current()
				if snap.MaxRequestsDay != snap.MaxRequestsHour*10 {
					t.Errorf("torn snapshot: hour=%d day=%d", snap.MaxRequestsHour, snap.MaxRequestsDay)
					return
				}
			}
		}()
	}

	for i := range 200 {
		if i%2 == 0 {
			env.replace(b)
		} else {
			env.replace(a)
		}
		_, err := mgr.Reload(ctx)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestManager_DynamicFileSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte("MAX_REQUESTS_HOUR: 3\nMAINTENANCE_MODE: true\nFEATURE_FLAGS:\n  order_lookup: true\n"), 0o600))

	env := newMutableEnv(map[string]string{
		"MAX_REQUESTS_HOUR":     "100",
		"ENABLE_DYNAMIC_CONFIG": "true",
		"DYNAMIC_CONFIG_SOURCE": path,
	})
	mgr := config.NewManager(config.WithEnviron(env.snapshot))
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	snap := mgr.Current()
	assert.Equal(t, 3, snap.MaxRequestsHour)
	assert.True(t, snap.MaintenanceMode)
	assert.True(t, snap.Feature("order_lookup"))

	t.Run("invalid override is rejected", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("MAX_REQUESTS_HOUR: 0\n"), 0o600))

		_, err := mgr.Reload(ctx)
		assert.ErrorIs(t, err, config.ErrValidation)
		assert.Same(t, snap, mgr.Current())
	})

	t.Run("malformed document is rejected", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("::: not yaml"), 0o600))

		_, err := mgr.Reload(ctx)
		assert.ErrorIs(t, err, config.ErrInvalidSource)
		assert.Same(t, snap, mgr.Current())
	})

	t.Run("missing document is rejected", func(t *testing.T) {
		require.NoError(t, os.Remove(path))

		_, err := mgr.Reload(ctx)
		assert.ErrorIs(t, err, config.ErrSourceNotFound)
		assert.Same(t, snap, mgr.Current())
	})
}

type fakeSource struct {
	data []byte
	err  error
}

func (f fakeSource) Fetch(context.Context) ([]byte, error) { return f.data, f.err }

func TestManager_SourceResolver(t *testing.T) {
	t.Parallel()

	var requested string
	mgr := config.NewManager(
		config.WithStaticEnviron(map[string]string{
			"ENABLE_DYNAMIC_CONFIG": "true",
			"DYNAMIC_CONFIG_SOURCE": "s3://ops/support/overrides.yaml",
		}),
		config.WithSourceResolver(func(_ context.Context, location string) (config.Source, error) {
			requested = location
			return fakeSource{data: []byte("CACHE_SIZE: 42\n")}, nil
		}),
	)

	require.NoError(t, mgr.Load(context.Background()))
	assert.Equal(t, "s3://ops/support/overrides.yaml", requested)
	assert.Equal(t, 42, mgr.Current().CacheSize)
}

func TestManager_SourceFailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	fail := atomic.Bool{}
	mgr := config.NewManager(
		config.WithStaticEnviron(map[string]string{
			"ENABLE_DYNAMIC_CONFIG": "true",
			"DYNAMIC_CONFIG_SOURCE": "remote",
		}),
		config.WithSourceResolver(func(context.Context, string) (config.Source, error) {
			if fail.Load() {
				return fakeSource{err: errors.Join(config.ErrSourceUnavailable, errors.New("timeout"))}, nil
			}
			return fakeSource{data: []byte("CACHE_SIZE: 7\n")}, nil
		}),
	)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	fail.Store(true)
	_, err := mgr.Reload(ctx)
	assert.ErrorIs(t, err, config.ErrSourceUnavailable)
	assert.Equal(t, 7, mgr.Current().CacheSize)
}
