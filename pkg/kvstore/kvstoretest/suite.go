// Package kvstoretest provides a conformance suite for kvstore.Store implementations.
package kvstoretest

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/supportcore/pkg/kvstore"
)

// Harness is a store under test plus a way to move its notion of time forward.
type Harness struct {
	Store   kvstore.Store
	Advance func(d time.Duration)
}

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) Harness

// Run executes the conformance suite.
func Run(t *testing.T, newHarness Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.Store.Get(ctx, "missing")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("set and get", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.Store.Set(ctx, "k", []byte("v1"), time.Minute))
		got, err := h.Store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), got)

		require.NoError(t, h.Store.Set(ctx, "k", []byte("v2"), time.Minute))
		got, err = h.Store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		h := newHarness(t)

		assert.ErrorIs(t, h.Store.Set(ctx, "k", []byte("v"), 0), kvstore.ErrInvalidTTL)
		_, err := h.Store.Incr(ctx, "c", -time.Second)
		assert.ErrorIs(t, err, kvstore.ErrInvalidTTL)
	})

	t.Run("keys expire", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.Store.Set(ctx, "k", []byte("v"), 60*time.Second))

		h.Advance(59 * time.Second)
		_, err := h.Store.Get(ctx, "k")
		require.NoError(t, err)

		h.Advance(2 * time.Second)
		_, err = h.Store.Get(ctx, "k")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("delete counts existing keys", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.Store.Set(ctx, "a", []byte("1"), time.Minute))
		require.NoError(t, h.Store.Set(ctx, "b", []byte("2"), time.Minute))

		n, err := h.Store.Delete(ctx, "a", "b", "c")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = h.Store.Delete(ctx, "a")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("incr applies ttl only on creation", func(t *testing.T) {
		h := newHarness(t)

		n, err := h.Store.Incr(ctx, "c", 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		h.Advance(6 * time.Second)
		n, err = h.Store.Incr(ctx, "c", 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err := h.Store.Get(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, "2", string(got))

		// A refreshed TTL would keep the counter alive past the first window.
		h.Advance(5 * time.Second)
		n, err = h.Store.Incr(ctx, "c", 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("incr is atomic", func(t *testing.T) {
		h := newHarness(t)

		const workers = 50
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Store.Incr(ctx, "c", time.Minute)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := h.Store.Get(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(workers), string(got))
	})

	t.Run("scan by prefix", func(t *testing.T) {
		h := newHarness(t)

		for _, key := range []string{"cache:order:1:a", "cache:order:1:b", "cache:order:2:a", "session:u1"} {
			require.NoError(t, h.Store.Set(ctx, key, []byte("v"), time.Minute))
		}

		keys, err := h.Store.Scan(ctx, "cache:order:1:")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"cache:order:1:a", "cache:order:1:b"}, keys)

		keys, err = h.Store.Scan(ctx, "nothing:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("insert is idempotent for live keys", func(t *testing.T) {
		h := newHarness(t)

		current, created, err := h.Store.Insert(ctx, "idx", "k", []byte("first"), time.Minute, 10)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, []byte("first"), current)

		current, created, err = h.Store.Insert(ctx, "idx", "k", []byte("second"), time.Minute, 10)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, []byte("first"), current)

		n, err := h.Store.Len(ctx, "idx")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("insert respects limit", func(t *testing.T) {
		h := newHarness(t)

		for i := range 3 {
			_, created, err := h.Store.Insert(ctx, "idx", "k"+strconv.Itoa(i), []byte("v"), time.Minute, 3)
			require.NoError(t, err)
			require.True(t, created)
		}

		_, _, err := h.Store.Insert(ctx, "idx", "k3", []byte("v"), time.Minute, 3)
		assert.ErrorIs(t, err, kvstore.ErrLimitReached)

		_, err = h.Store.Get(ctx, "k3")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)

		// Existing members are still returned when the index is full.
		_, created, err := h.Store.Insert(ctx, "idx", "k0", []byte("v"), time.Minute, 3)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("insert frees slots of expired members", func(t *testing.T) {
		h := newHarness(t)

		_, _, err := h.Store.Insert(ctx, "idx", "a", []byte("v"), 10*time.Second, 1)
		require.NoError(t, err)

		_, _, err = h.Store.Insert(ctx, "idx", "b", []byte("v"), 10*time.Second, 1)
		require.ErrorIs(t, err, kvstore.ErrLimitReached)

		h.Advance(11 * time.Second)
		_, created, err := h.Store.Insert(ctx, "idx", "b", []byte("v"), 10*time.Second, 1)
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("insert with concurrent callers never exceeds limit", func(t *testing.T) {
		h := newHarness(t)

		const limit = 5
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := h.Store.Insert(ctx, "idx", "k"+strconv.Itoa(i), []byte("v"), time.Minute, limit)
				if errors.Is(err, kvstore.ErrLimitReached) {
					return
				}
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, limit, created)
		n, err := h.Store.Len(ctx, "idx")
		require.NoError(t, err)
		assert.Equal(t, int64(limit), n)
	})

	t.Run("put evicts soonest expiry", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.Store.Put(ctx, "idx", "long", []byte("v"), time.Hour, 2)
		require.NoError(t, err)
		_, err = h.Store.Put(ctx, "idx", "short", []byte("v"), time.Minute, 2)
		require.NoError(t, err)

		evicted, err := h.Store.Put(ctx, "idx", "new", []byte("v"), time.Hour, 2)
		require.NoError(t, err)
		assert.Equal(t, "short", evicted)

		_, err = h.Store.Get(ctx, "short")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
		_, err = h.Store.Get(ctx, "long")
		assert.NoError(t, err)
	})

	t.Run("put breaks expiry ties by creation time", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.Store.Put(ctx, "idx", "z-old", []byte("v"), 20*time.Second, 2)
		require.NoError(t, err)
		h.Advance(10 * time.Second)
		_, err = h.Store.Put(ctx, "idx", "a-young", []byte("v"), 10*time.Second, 2)
		require.NoError(t, err)

		evicted, err := h.Store.Put(ctx, "idx", "new", []byte("v"), time.Minute, 2)
		require.NoError(t, err)
		assert.Equal(t, "z-old", evicted)
	})

	t.Run("put overwrite does not evict", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.Store.Put(ctx, "idx", "a", []byte("1"), time.Minute, 1)
		require.NoError(t, err)

		evicted, err := h.Store.Put(ctx, "idx", "a", []byte("2"), time.Minute, 1)
		require.NoError(t, err)
		assert.Empty(t, evicted)

		got, err := h.Store.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), got)
	})

	t.Run("patch rewrites fields", func(t *testing.T) {
		h := newHarness(t)

		_, _, err := h.Store.Insert(ctx, "idx", "k", []byte(`{"state":"start","step":"1","tags":["a"]}`), 10*time.Second, 0)
		require.NoError(t, err)

		h.Advance(8 * time.Second)
		got, err := h.Store.Patch(ctx, "idx", "k", kvstore.Patch{
			Expect: map[string]string{"state": "start"},
			Unset:  []string{"step"},
			Set:    map[string]json.RawMessage{"state": json.RawMessage(`"menu"`)},
			Merge:  map[string]map[string]json.RawMessage{"data": {"lang": json.RawMessage(`"fa"`)}},
			Append: &kvstore.Append{Field: "tags", Value: json.RawMessage(`"b"`)},
		}, 10*time.Second)
		require.NoError(t, err)

		doc := decodeObject(t, got)
		assert.Equal(t, "menu", doc["state"])
		assert.NotContains(t, doc, "step")
		assert.Equal(t, map[string]any{"lang": "fa"}, doc["data"])
		assert.Equal(t, []any{"a", "b"}, doc["tags"])

		// The patch refreshed the TTL.
		h.Advance(8 * time.Second)
		stored, err := h.Store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, doc, decodeObject(t, stored))

		n, err := h.Store.Len(ctx, "idx")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("patch checks expected fields", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.Store.Set(ctx, "k", []byte(`{"state":"menu"}`), time.Minute))

		_, err := h.Store.Patch(ctx, "", "k", kvstore.Patch{
			Expect: map[string]string{"state": "start"},
			Set:    map[string]json.RawMessage{"state": json.RawMessage(`"help"`)},
		}, time.Minute)
		assert.ErrorIs(t, err, kvstore.ErrConflict)

		_, err = h.Store.Patch(ctx, "", "k", kvstore.Patch{
			Expect: map[string]string{"owner": "a"},
		}, time.Minute)
		assert.ErrorIs(t, err, kvstore.ErrConflict)

		stored, err := h.Store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "menu", decodeObject(t, stored)["state"])

		_, err = h.Store.Patch(ctx, "", "gone", kvstore.Patch{}, time.Minute)
		assert.ErrorIs(t, err, kvstore.ErrNotFound)

		require.NoError(t, h.Store.Set(ctx, "plain", []byte("not json"), time.Minute))
		_, err = h.Store.Patch(ctx, "", "plain", kvstore.Patch{}, time.Minute)
		assert.ErrorIs(t, err, kvstore.ErrMalformed)
	})

	t.Run("patch append keeps the newest elements", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.Store.Set(ctx, "k", []byte(`{}`), time.Minute))
		for _, v := range []string{"1", "2", "3", "4"} {
			_, err := h.Store.Patch(ctx, "", "k", kvstore.Patch{
				Append: &kvstore.Append{Field: "log", Value: json.RawMessage(strconv.Quote(v)), Limit: 3},
			}, time.Minute)
			require.NoError(t, err)
		}

		stored, err := h.Store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []any{"2", "3", "4"}, decodeObject(t, stored)["log"])
	})

	t.Run("concurrent patches lose no updates", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.Store.Set(ctx, "k", []byte(`{"state":"start"}`), time.Minute))

		const workers = 32
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				marker := json.RawMessage(strconv.Quote("w" + strconv.Itoa(i)))
				_, err := h.Store.Patch(ctx, "", "k", kvstore.Patch{
					Merge:  map[string]map[string]json.RawMessage{"data": {"w" + strconv.Itoa(i): marker}},
					Append: &kvstore.Append{Field: "log", Value: marker},
				}, time.Minute)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		stored, err := h.Store.Get(ctx, "k")
		require.NoError(t, err)
		doc := decodeObject(t, stored)
		assert.Len(t, doc["log"], workers)
		assert.Len(t, doc["data"], workers)
		assert.Equal(t, "start", doc["state"])
	})

	t.Run("remove drops keys and members", func(t *testing.T) {
		h := newHarness(t)

		_, _, err := h.Store.Insert(ctx, "idx", "a", []byte("v"), time.Minute, 0)
		require.NoError(t, err)
		_, _, err = h.Store.Insert(ctx, "idx", "b", []byte("v"), time.Minute, 0)
		require.NoError(t, err)

		n, err := h.Store.Remove(ctx, "idx", "a", "missing")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		size, err := h.Store.Len(ctx, "idx")
		require.NoError(t, err)
		assert.Equal(t, int64(1), size)

		n, err = h.Store.Remove(ctx, "idx", "a")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("len ignores expired members", func(t *testing.T) {
		h := newHarness(t)

		_, _, err := h.Store.Insert(ctx, "idx", "a", []byte("v"), 5*time.Second, 0)
		require.NoError(t, err)
		_, _, err = h.Store.Insert(ctx, "idx", "b", []byte("v"), time.Minute, 0)
		require.NoError(t, err)

		h.Advance(6 * time.Second)
		n, err := h.Store.Len(ctx, "idx")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func decodeObject(t *testing.T, raw []byte) map[string]any {
	t.Helper()

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}
