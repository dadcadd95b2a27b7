// Package querycache provides the keyed query cache shared by compiled
// endpoints.
//
// The cache client implements the following features:
//
// - Keyed fetch with stale-time freshness (FetchQuery)
// - Single-flight execution of concurrent fetches for the same key
// - Direct reads and writes of cached data (GetQueryData, SetQueryData)
// - Prefix invalidation by key parts (InvalidateQueries)
// - Pluggable storage: in-memory (sturdyc) or Redis
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	store, err := querycache.NewMemoryStore(querycache.DefaultMemoryConfig())
//	if err != nil {
//		return err
//	}
//	client := querycache.NewClient(store, querycache.DefaultConfig())
//
//	key := querycache.NewKey("user", "getUser", 7)
//	value, err := client.FetchQuery(ctx, key, func(ctx context.Context) (any, error) {
//		return fetchUser(ctx, 7)
//	})
//
//	user, err := querycache.As[User](value)
//
// # Redis Storage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := querycache.NewRedisStore(redisClient, querycache.DefaultRedisConfig())
//
// Values stored in Redis are JSON-encoded; reads return json.RawMessage,
// which As decodes into the requested type.
//
// # Invalidation
//
//	// Removes every entry whose key starts with ["user"]
//	n, err := client.InvalidateQueries(ctx, querycache.NewKey("user"))
//
// # Metrics
//
//   - usable_cache_hits_total{layer} - Cache hits
//   - usable_cache_misses_total - Cache misses
//   - usable_cache_invalidations_total - Entries removed by invalidation
//   - usable_cache_errors_total{operation} - Store operation errors
package querycache
