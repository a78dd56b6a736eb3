package kvstore

import (
	"bytes"
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type item struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

func (i *item) expired(now time.Time) bool {
	return i.expiresAt.Before(now)
}

// MemoryStore implements Store in process memory.
// A single mutex guards all state, which makes every method atomic.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]*item
	indexes map[string]map[string]struct{}
	clock   clockwork.Clock

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock sets the clock used for expiry. Tests pass a fake clock.
func WithClock(clock clockwork.Clock) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if clock != nil {
			ms.clock = clock
		}
	}
}

// WithCleanupInterval sets how often expired keys are swept.
// Set to 0 to rely on lazy expiry only.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.cleanupInterval = interval
	}
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		items:           make(map[string]*item),
		indexes:         make(map[string]map[string]struct{}),
		clock:           clockwork.NewRealClock(),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ms)
	}

	if ms.cleanupInterval > 0 {
		go ms.cleanup()
	}

	return ms
}

func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	it, ok := ms.live(key, ms.clock.Now())
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(it.value), nil
}

func (ms *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validate(ctx, key, ttl); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock.Now()
	ms.items[key] = &item{value: bytes.Clone(value), createdAt: now, expiresAt: now.Add(ttl)}
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock.Now()
	var n int64
	for _, key := range keys {
		if _, ok := ms.live(key, now); ok {
			n++
		}
		delete(ms.items, key)
	}
	return n, nil
}

func (ms *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := validate(ctx, key, ttl); err != nil {
		return 0, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock.Now()
	it, ok := ms.live(key, now)
	if !ok {
		ms.items[key] = &item{value: []byte("1"), createdAt: now, expiresAt: now.Add(ttl)}
		return 1, nil
	}

	n, err := strconv.ParseInt(string(it.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	it.value = strconv.AppendInt(it.value[:0], n, 10)
	return n, nil
}

func (ms *MemoryStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock.Now()
	keys := make([]string, 0)
	for key, it := range ms.items {
		if strings.HasPrefix(key, prefix) && !it.expired(now) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (ms *MemoryStore) Insert(ctx context.Context, index, key string, value []byte, ttl time.Duration, limit int) ([]byte, bool, error) {
	if err := validate(ctx, key, ttl); err != nil {
		return nil, false, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock.Now()
	members := ms.purge(index, now)

	if it, ok := ms.live(key, now); ok {
		return bytes.Clone(it.value), false, nil
	}
	if limit > 0 && len(members) >= limit {
		return nil, false, ErrLimitReached
	}

	ms.items[key] = &item{value: bytes.Clone(value), createdAt: now, expiresAt: now.Add(ttl)}
	members[key] = struct{}{}
	return bytes.Clone(value), true, nil
}

func (ms *MemoryStore) Put(ctx context.Context, index, key string, value []byte, ttl time.Duration, limit int) (string, error) {
	if err := validate(ctx, key, ttl); err != nil {
		return "", err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock.Now()
	members := ms.purge(index, now)

	var evicted string
	if _, member := members[key]; !member && limit > 0 && len(members) >= limit {
		evicted = ms.victim(members)
		delete(members, evicted)
		delete(ms.items, evicted)
	}

	ms.items[key] = &item{value: bytes.Clone(value), createdAt: now, expiresAt: now.Add(ttl)}
	members[key] = struct{}{}
	return evicted, nil
}

func (ms *MemoryStore) Patch(ctx context.Context, index, key string, patch Patch, ttl time.Duration) ([]byte, error) {
	if err := validate(ctx, key, ttl); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock.Now()
	it, ok := ms.live(key, now)
	if !ok {
		return nil, ErrNotFound
	}
	value, err := patch.Apply(it.value)
	if err != nil {
		return nil, err
	}

	it.value = value
	it.expiresAt = now.Add(ttl)
	if index != "" {
		ms.members(index)[key] = struct{}{}
	}
	return bytes.Clone(value), nil
}

func (ms *MemoryStore) Remove(ctx context.Context, index string, keys ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock.Now()
	members := ms.members(index)
	var n int64
	for _, key := range keys {
		if _, ok := ms.live(key, now); ok {
			n++
		}
		delete(ms.items, key)
		delete(members, key)
	}
	return n, nil
}

func (ms *MemoryStore) Len(ctx context.Context, index string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	return int64(len(ms.purge(index, ms.clock.Now()))), nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (ms *MemoryStore) Close() error {
	ms.closeOnce.Do(func() { close(ms.stopCleanup) })
	return nil
}

// live returns the item at key if it has not expired, dropping it otherwise.
// Caller must hold the lock.
func (ms *MemoryStore) live(key string, now time.Time) (*item, bool) {
	it, ok := ms.items[key]
	if !ok {
		return nil, false
	}
	if it.expired(now) {
		delete(ms.items, key)
		return nil, false
	}
	return it, true
}

func (ms *MemoryStore) members(index string) map[string]struct{} {
	members, ok := ms.indexes[index]
	if !ok {
		members = make(map[string]struct{})
		ms.indexes[index] = members
	}
	return members
}

// purge drops members whose key has expired or was deleted and returns the
// remaining set. Caller must hold the lock.
func (ms *MemoryStore) purge(index string, now time.Time) map[string]struct{} {
	members := ms.members(index)
	for key := range members {
		if _, ok := ms.live(key, now); !ok {
			delete(members, key)
		}
	}
	return members
}

// victim picks the member with the soonest expiry, then the oldest creation
// time, then the lowest key.
func (ms *MemoryStore) victim(members map[string]struct{}) string {
	var (
		best   string
		bestIt *item
	)
	for key := range members {
		it := ms.items[key]
		if bestIt == nil || before(key, it, best, bestIt) {
			best, bestIt = key, it
		}
	}
	return best
}

func before(key string, it *item, otherKey string, other *item) bool {
	if !it.expiresAt.Equal(other.expiresAt) {
		return it.expiresAt.Before(other.expiresAt)
	}
	if !it.createdAt.Equal(other.createdAt) {
		return it.createdAt.Before(other.createdAt)
	}
	return key < otherKey
}

func (ms *MemoryStore) cleanup() {
	ticker := ms.clock.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			ms.removeExpired()
		case <-ms.stopCleanup:
			return
		}
	}
}

func (ms *MemoryStore) removeExpired() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.clock.Now()
	for key, it := range ms.items {
		if it.expired(now) {
			delete(ms.items, key)
		}
	}
	for index := range ms.indexes {
		if len(ms.purge(index, now)) == 0 {
			delete(ms.indexes, index)
		}
	}
}

func validate(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
