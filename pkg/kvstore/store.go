package kvstore

import (
	"context"
	"time"
)

// Store is an atomic key-value store with TTLs and expiry-ordered indexes.
//
// A limit <= 0 passed to Insert or Put means the index is unbounded.
// All TTLs must be positive.
type Store interface {
	// Get returns the value stored at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value at key, replacing any previous value and TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the given keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
	// Incr increments the counter at key and returns the new value.
	// The TTL is applied only when the increment creates the counter.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Scan lists live keys starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Insert stores value at key and adds key to index unless key is already live,
	// in which case the current value is returned with created set to false.
	// Returns ErrLimitReached when the index already holds limit live members.
	Insert(ctx context.Context, index, key string, value []byte, ttl time.Duration, limit int) (current []byte, created bool, err error)
	// Put stores value at key and adds key to index, evicting one member when the
	// index is full. The evicted key is returned, or "" when nothing was evicted.
	Put(ctx context.Context, index, key string, value []byte, ttl time.Duration, limit int) (evicted string, err error)
	// Patch atomically applies patch to the JSON object at key, refreshes its
	// TTL and returns the new document. Returns ErrNotFound when the key is
	// gone, ErrConflict when an expected field differs and ErrMalformed when
	// the value is not a JSON object. index may be empty for keys that are
	// not indexed.
	Patch(ctx context.Context, index, key string, patch Patch, ttl time.Duration) ([]byte, error)
	// Remove deletes keys and drops them from index.
	Remove(ctx context.Context, index string, keys ...string) (int64, error)
	// Len returns the number of live members of index.
	Len(ctx context.Context, index string) (int64, error)
}

// CreatedIndexKey returns the name of the companion structure holding the
// creation times of index members.
func CreatedIndexKey(index string) string {
	return index + ":created"
}
