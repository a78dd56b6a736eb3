package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/supportcore/pkg/kvstore"
)

// Store implements kvstore.Store on top of Redis. Every multi-step operation
// runs as a Lua script, so it is atomic across all processes sharing the server.
//
// Index scripts touch keys beyond those declared in KEYS (evicted members),
// which Redis Cluster does not allow. Use a standalone server or a hash-tagged
// key layout in that setup.
type Store struct {
	db               redis.UniversalClient
	clock            clockwork.Clock
	operationTimeout time.Duration
	scanBatchSize    int64
}

var _ kvstore.Store = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the clock used to score index members.
func WithClock(clock clockwork.Clock) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithOperationTimeout bounds every store call. Zero disables the bound.
func WithOperationTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.operationTimeout = d
	}
}

// WithScanBatchSize sets the COUNT hint used by Scan.
func WithScanBatchSize(n int64) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.scanBatchSize = n
		}
	}
}

// WithConfig applies the timeout and scan settings of cfg.
func WithConfig(cfg Config) StoreOption {
	return func(s *Store) {
		WithOperationTimeout(cfg.OperationTimeout)(s)
		WithScanBatchSize(cfg.ScanBatchSize)(s)
	}
}

// NewStore wraps a connected client.
func NewStore(client redis.UniversalClient, opts ...StoreOption) *Store {
	s := &Store{
		db:               client,
		clock:            clockwork.NewRealClock(),
		operationTimeout: 2 * time.Second,
		scanBatchSize:    500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	val, err := s.db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validate(key, ttl); err != nil {
		return err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return unavailable(s.db.Set(ctx, key, value, ttl).Err())
}

func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.db.Del(ctx, keys...).Result()
	return n, unavailable(err)
}

func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := validate(key, ttl); err != nil {
		return 0, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := incrScript.Run(ctx, s.db, []string{key}, millis(ttl)).Int64()
	return n, unavailable(err)
}

// Scan walks the keyspace with SCAN so the server is never blocked.
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	pattern := escapeGlob(prefix) + "*"
	keys := make([]string, 0)
	seen := make(map[string]struct{})

	var cursor uint64
	for {
		batch, next, err := s.db.Scan(ctx, cursor, pattern, s.scanBatchSize).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		// SCAN may return a key more than once.
		for _, key := range batch {
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *Store) Insert(ctx context.Context, index, key string, value []byte, ttl time.Duration, limit int) ([]byte, bool, error) {
	if err := validate(key, ttl); err != nil {
		return nil, false, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	reply, err := insertScript.Run(ctx, s.db,
		[]string{key, index, kvstore.CreatedIndexKey(index)},
		s.nowMillis(), millis(ttl), limit, value,
	).Slice()
	if err != nil {
		return nil, false, unavailable(err)
	}
	if len(reply) != 2 {
		return nil, false, fmt.Errorf("%w: insert returned %d elements", ErrUnexpectedReply, len(reply))
	}

	status, _ := reply[0].(int64)
	current, _ := reply[1].(string)
	switch status {
	case 0:
		return []byte(current), true, nil
	case 1:
		return []byte(current), false, nil
	case 2:
		return nil, false, kvstore.ErrLimitReached
	default:
		return nil, false, fmt.Errorf("%w: insert status %d", ErrUnexpectedReply, status)
	}
}

func (s *Store) Put(ctx context.Context, index, key string, value []byte, ttl time.Duration, limit int) (string, error) {
	if err := validate(key, ttl); err != nil {
		return "", err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	evicted, err := putScript.Run(ctx, s.db,
		[]string{key, index, kvstore.CreatedIndexKey(index)},
		s.nowMillis(), millis(ttl), limit, value,
	).Text()
	if err != nil {
		return "", unavailable(err)
	}
	return evicted, nil
}

func (s *Store) Patch(ctx context.Context, index, key string, patch kvstore.Patch, ttl time.Duration) ([]byte, error) {
	if err := validate(key, ttl); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	keys := []string{key}
	if index != "" {
		keys = append(keys, index)
	}

	reply, err := patchScript.Run(ctx, s.db, keys,
		s.nowMillis(), millis(ttl), encoded,
	).Slice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(reply) != 2 {
		return nil, fmt.Errorf("%w: patch returned %d elements", ErrUnexpectedReply, len(reply))
	}

	status, _ := reply[0].(int64)
	value, _ := reply[1].(string)
	switch status {
	case 1:
		return []byte(value), nil
	case 0:
		return nil, kvstore.ErrNotFound
	case -1:
		return nil, kvstore.ErrConflict
	case -2:
		return nil, kvstore.ErrMalformed
	default:
		return nil, fmt.Errorf("%w: patch status %d", ErrUnexpectedReply, status)
	}
}

// Remove deletes keys and their index entries in one MULTI/EXEC block.
func (s *Store) Remove(ctx context.Context, index string, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	members := make([]any, len(keys))
	for i, key := range keys {
		members[i] = key
	}

	var del *redis.IntCmd
	_, err := s.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, index, members...)
		pipe.HDel(ctx, kvstore.CreatedIndexKey(index), keys...)
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return del.Val(), nil
}

func (s *Store) Len(ctx context.Context, index string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := lenScript.Run(ctx, s.db,
		[]string{index, kvstore.CreatedIndexKey(index)},
		s.nowMillis(),
	).Int64()
	return n, unavailable(err)
}

// Ping reports whether the server answers.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return Healthcheck(s.db)(ctx)
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.operationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.operationTimeout)
}

func (s *Store) nowMillis() int64 {
	return s.clock.Now().UnixMilli()
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(kvstore.ErrUnavailable, err)
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return kvstore.ErrEmptyKey
	}
	if ttl <= 0 {
		return kvstore.ErrInvalidTTL
	}
	return nil
}

var globReplacer = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}

// millis converts a TTL to whole milliseconds, rounding sub-millisecond TTLs up.
func millis(ttl time.Duration) int64 {
	return max(ttl.Milliseconds(), 1)
}
