// Package cache provides the cache-aside layer for the pickup market:
// a Service implementing get-or-set with per-call TTLs, explicit and
// glob-pattern invalidation, and deterministic key building.
//
// # Contract
//
// The cache is a performance optimization, never a correctness dependency.
// On a hit the fetch function is not called; staleness up to the entry TTL
// is accepted. On a miss the fetch function runs against the source of
// truth and its result is stored best-effort. When the backend store is
// absent or unreachable every read degrades to a miss and every
// invalidation becomes a no-op that reports failure without raising, so
// callers behave identically with and without a cache.
//
// # Keys
//
// Keys are either literal entity keys ("producer:42:shops", "product:p-1")
// or query keys built from a fixed prefix plus a canonical serialization of
// the filter parameters. Canonical means sorted field order: the filter
// maps {a:1, b:2} and {b:2, a:1} always produce the same key. Never rely on
// map iteration or JSON field order for key identity.
//
// # Invalidation
//
// Mutating operations clear related keys explicitly, by exact key or by
// glob pattern (see MatchKey). Pattern invalidation is all-or-nothing from
// the caller's perspective but is not atomic against concurrent writers.
//
// The backend store interface and its implementations live in
// internal/cacheinfra.
package cache
