// Package cache provides generic, thread-safe caches used as the entry store
// of the normalized GraphQL cache.
//
//   - simple: no eviction
//   - lru: least recently used eviction once MaxSize is exceeded
//   - ttl: entries expire a fixed time after their last write
//   - none: every read misses
//
// Statistics are always collected. Prometheus export is opt-in through
// WithMetrics.
//
//	entries, err := cache.New[json.RawMessage](ctx, cache.Config{
//		Strategy: cache.StrategyLRU,
//		MaxSize:  5000,
//	}, cache.WithMetrics[json.RawMessage](registry, "gqlcache:default"))
//
// Every strategy is safe for concurrent use. Eviction callbacks run outside
// the cache lock, so a callback may call back into the cache.
package cache
