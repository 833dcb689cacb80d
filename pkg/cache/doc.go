// Package cache persists fetched catalog records in Redis.
//
// The store is deliberately simple: one namespaced key per identifier, no
// TTL and no eviction. A present entry means the identifier never needs
// another network request; staleness is tolerated because catalog data
// changes rarely. Entries disappear only when the store itself is cleared.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	entry, err := manager.Get(ctx, "9541")
//	if err == cache.ErrCacheMiss {
//		// fetch live and Set afterwards
//	}
//
// Set also stamps an informational last-write key. That stamp is never
// consulted by the request scheduler, which keeps its own in-memory state;
// it exists for operators inspecting the store.
//
// Writes are best-effort from the caller's point of view: Set returns an
// error, and the catalog client chooses to log and ignore it because the
// freshly fetched record is still usable in memory.
//
// # Metrics
//
// The manager exports Prometheus metrics:
//
//   - catalog_cache_hits_total - Cache hits
//   - catalog_cache_misses_total - Cache misses
//   - catalog_cache_errors_total{operation} - Cache operation errors
package cache
