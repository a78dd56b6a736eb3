package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/supportcore/pkg/kvstore"
	"github.com/dmitrymomot/supportcore/pkg/logger"
)

const (
	keyPrefix = "cache:"
	indexKey  = "index:cache"
)

// Config bounds the cache.
type Config struct {
	// Size is the maximum number of live entries (<= 0 means unbounded).
	Size int
	// TTL is the default and the maximum entry lifetime.
	TTL time.Duration
}

// ConfigFunc returns the bounds for the next write.
type ConfigFunc func() Config

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{Size: 1000, TTL: time.Hour}
}

// Stats are cumulative since process start or the last ResetStats.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Errors    int64 `json:"errors"`
	Evictions int64 `json:"evictions"`
	Entries   int64 `json:"entries"`
}

// HitRatio returns hits / (hits + misses), or 0 without lookups.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Observer is notified about cache activity.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheEvicted()
	CacheError()
}

// Manager is a size-bounded TTL cache over a kvstore.Store. Values are stored
// as JSON under "cache:{key}". When the cache is full, a write of a new key
// evicts the entry expiring soonest, the oldest one on ties, in the same
// atomic operation as the insert.
type Manager struct {
	store    kvstore.Store
	config   ConfigFunc
	clock    clockwork.Clock
	logger   *slog.Logger
	observer Observer
	group    singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	failures  atomic.Int64
	evictions atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig sets static bounds.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = func() Config { return cfg }
	}
}

// WithConfigFunc reads bounds on every write so they follow config reloads.
func WithConfigFunc(fn ConfigFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.config = fn
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(m *Manager) {
		m.observer = observer
	}
}

// New creates a cache manager backed by store.
func New(store kvstore.Store, opts ...Option) *Manager {
	if store == nil {
		panic("cache: store is required")
	}

	m := &Manager{
		store:  store,
		config: DefaultConfig,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("cache"))
	return m
}

// Get decodes the entry stored at key into dst and reports whether it was a
// hit. Expired, missing, corrupt and unreadable entries are all misses;
// corrupt entries are logged and removed.
func (m *Manager) Get(ctx context.Context, key string, dst any) bool {
	if key == "" {
		m.miss()
		return false
	}

	raw, err := m.store.Get(ctx, keyPrefix+key)
	if errors.Is(err, kvstore.ErrNotFound) {
		m.miss()
		return false
	}
	if err != nil {
		m.logger.WarnContext(ctx, "cache read failed, treating as miss",
			logger.CacheKey(key), logger.Error(err))
		m.fail()
		m.miss()
		return false
	}

	e, err := decodeEntry(key, raw)
	if err == nil {
		if err = json.Unmarshal(e.Value, dst); err != nil {
			err = errors.Join(ErrDeserialization, err)
		}
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "dropping undecodable cache entry",
			logger.CacheKey(key), logger.Error(err))
		m.fail()
		m.miss()
		if _, err := m.store.Remove(ctx, indexKey, keyPrefix+key); err != nil {
			m.logger.WarnContext(ctx, "failed to drop cache entry", logger.CacheKey(key), logger.Error(err))
		}
		return false
	}

	m.hits.Add(1)
	if m.observer != nil {
		m.observer.CacheHit()
	}
	return true
}

// Set stores value at key. A ttl <= 0 uses the configured TTL, and longer
// ttls are capped to it.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	_, err := m.set(ctx, key, value, ttl)
	return err
}

// Fetch decodes the entry at key into dst, or calls load on a miss, stores
// its result and decodes that into dst. Concurrent misses for the same key
// share a single load.
func (m *Manager) Fetch(ctx context.Context, key string, ttl time.Duration, dst any, load func(context.Context) (any, error)) error {
	if key == "" {
		return ErrEmptyKey
	}
	if m.Get(ctx, key, dst) {
		return nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := m.set(ctx, key, value, ttl)
		if errors.Is(err, ErrSerialization) {
			return nil, err
		}
		if err != nil {
			// the value is still good even if it could not be cached
			m.logger.WarnContext(ctx, "failed to cache loaded value", logger.CacheKey(key), logger.Error(err))
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(v.([]byte), dst)
}

// Invalidate removes one entry and reports whether it existed.
func (m *Manager) Invalidate(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	n, err := m.store.Remove(ctx, indexKey, keyPrefix+key)
	return n > 0, err
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were removed. An empty prefix clears the cache.
func (m *Manager) InvalidatePrefix(ctx context.Context, prefix string) (int64, error) {
	keys, err := m.store.Scan(ctx, keyPrefix+prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := m.store.Remove(ctx, indexKey, keys...)
	if err != nil {
		return 0, err
	}
	m.logger.DebugContext(ctx, "cache entries invalidated",
		logger.CacheKey(strings.TrimSuffix(prefix, ":")+"*"), logger.Count(n))
	return n, nil
}

// Stats returns the counters and the current number of live entries.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	n, err := m.store.Len(ctx, indexKey)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Errors:    m.failures.Load(),
		Evictions: m.evictions.Load(),
		Entries:   n,
	}, nil
}

// ResetStats zeroes the counters.
func (m *Manager) ResetStats() {
	m.hits.Store(0)
	m.misses.Store(0)
	m.failures.Store(0)
	m.evictions.Store(0)
}

func (m *Manager) set(ctx context.Context, key string, value any, ttl time.Duration) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}

	cfg := m.config()
	if ttl <= 0 || ttl > cfg.TTL {
		ttl = cfg.TTL
	}

	now := m.clock.Now()
	data, err := json.Marshal(entry{
		Version:    entryVersion,
		Key:        key,
		Value:      payload,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		TTLSeconds: int64(ttl / time.Second),
	})
	if err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}

	evicted, err := m.store.Put(ctx, indexKey, keyPrefix+key, data, ttl, cfg.Size)
	if err != nil {
		return payload, err
	}
	if evicted != "" {
		m.evictions.Add(1)
		if m.observer != nil {
			m.observer.CacheEvicted()
		}
		m.logger.DebugContext(ctx, "cache entry evicted",
			logger.CacheKey(strings.TrimPrefix(evicted, keyPrefix)))
	}
	return payload, nil
}

func (m *Manager) miss() {
	m.misses.Add(1)
	if m.observer != nil {
		m.observer.CacheMiss()
	}
}

func (m *Manager) fail() {
	m.failures.Add(1)
	if m.observer != nil {
		m.observer.CacheError()
	}
}
