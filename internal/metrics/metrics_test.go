package metrics_test

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/supportcore/internal/metrics"
	"github.com/dmitrymomot/supportcore/pkg/cache"
	"github.com/dmitrymomot/supportcore/pkg/config"
	"github.com/dmitrymomot/supportcore/pkg/ratelimit"
	"github.com/dmitrymomot/supportcore/pkg/redis"
	"github.com/dmitrymomot/supportcore/pkg/session"
)

var (
	_ redis.CommandObserver = (*metrics.RedisMetrics)(nil)
	_ redis.StateObserver   = (*metrics.RedisMetrics)(nil)
	_ session.Observer      = (*metrics.SessionMetrics)(nil)
	_ ratelimit.Observer    = (*metrics.RateLimitMetrics)(nil)
	_ cache.Observer        = (*metrics.CacheMetrics)(nil)
	_ config.ReloadObserver = (*metrics.ConfigMetrics)(nil)
)

func TestNewSet_RegistersOnce(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics.NewSet(reg)
	assert.Panics(t, func() { metrics.NewSet(reg) }, "duplicate registration must fail")
}

func TestRedisMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	m.ObserveCommand("get", 2*time.Millisecond, nil)
	m.ObserveCommand("get", time.Millisecond, errors.New("boom"))
	m.ObserveDialError()
	m.BreakerStateChanged("open")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DialErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))

	m.BreakerStateChanged("half-open")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState))
	m.BreakerStateChanged("closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerChanges.WithLabelValues("open")))
}

func TestSessionMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.NewSessionMetrics(prometheus.NewRegistry())
	m.SessionCreated()
	m.SessionCreated()
	m.SessionRejected()
	m.SessionDestroyed()
	m.SessionTransitioned("start", "start_auth", "awaiting_auth")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Created))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Destroyed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("start_auth", "awaiting_auth")))
}

func TestRateLimitMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.NewRateLimitMetrics(prometheus.NewRegistry())
	m.RequestAdmitted()
	m.RequestRejected("hour")
	m.RequestRejected("hour")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("allowed", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("rejected", "hour")))
}

func TestCacheMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.NewCacheMetrics(prometheus.NewRegistry())
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.CacheEvicted()
	m.CacheError()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors))
}

func TestConfigMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.NewConfigMetrics(prometheus.NewRegistry())
	m.ConfigReloaded(nil)
	m.ConfigReloaded(config.ErrValidation)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reloads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reloads.WithLabelValues("error")))
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := metrics.NewRegistry()
	set := metrics.NewSet(reg)
	set.Cache.CacheHit()

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "supportcore_cache_hits_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
