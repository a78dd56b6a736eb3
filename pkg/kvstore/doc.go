// Package kvstore defines the key-value contract the session, rate limit and
// cache layers are built on, together with an in-memory implementation for
// tests and single-process deployments.
//
// Besides plain keys with a TTL, a Store maintains indexes: named sets of keys
// ordered by expiry. Indexes back the bounded collections of the system
// (sessions capped by MAX_SESSIONS, cache entries capped by CACHE_SIZE). Every
// method of a Store is a single atomic step, so two processes sharing a store
// can never both slip past a capacity limit or lose a counter increment.
//
// # Indexed writes
//
//   - Insert adds a key only if it is absent and the index is below its limit.
//     An existing live key is returned unchanged.
//   - Put always writes. When the key is new and the index is full, the member
//     with the soonest expiry is evicted first (oldest creation time on a tie).
//   - Patch rewrites fields of a stored JSON object in place, optionally only
//     while a field still holds an expected value, and refreshes the key's
//     position in the index.
//
// Expired members are purged lazily by every indexed operation.
//
// # Conformance
//
// Implementations are verified with the shared suite in the kvstoretest
// subpackage:
//
//	kvstoretest.Run(t, func(t *testing.T) kvstoretest.Harness { ... })
package kvstore
