// Package cache provides a size-bounded TTL cache for responses fetched from
// external services, stored in a kvstore.Store.
//
// Entries are JSON envelopes stored under "cache:{key}" that record the key,
// creation time, expiry and TTL next to the value. A read past expiry is a
// miss, never a stale hit. Entries that fail to decode are logged, counted as
// errors, removed and reported as misses; a failing store read is a miss too.
// Writes return storage errors so callers can decide to ignore them.
//
// # Bounds
//
// Config.TTL is both the default and the maximum lifetime of an entry.
// Config.Size bounds live entries: writing a new key into a full cache
// evicts exactly one entry, the one expiring soonest, breaking ties by the
// oldest creation time. Eviction and insert happen in one atomic store
// operation.
//
// # Usage
//
//	manager := cache.New(store, cache.WithConfig(cache.Config{Size: 1000, TTL: time.Hour}))
//
//	var order Order
//	if !manager.Get(ctx, cache.Key("order", serial), &order) {
//	    order, err = api.Order(ctx, serial)
//	    _ = manager.Set(ctx, cache.Key("order", serial), order, 5*time.Minute)
//	}
//
//	// later: drop every cached order
//	manager.InvalidatePrefix(ctx, "order:")
//
// Fetch and Typed combine the two steps and coalesce concurrent misses for
// the same key into a single load.
package cache
