package querycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usable_cache_hits_total",
			Help: "Total number of query cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses, including stale entries
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usable_cache_misses_total",
			Help: "Total number of query cache misses",
		},
	)

	// CacheInvalidations tracks entries removed by InvalidateQueries
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usable_cache_invalidations_total",
			Help: "Total number of query cache entries invalidated",
		},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usable_cache_errors_total",
			Help: "Total number of query cache store errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "keys"
	)
)
