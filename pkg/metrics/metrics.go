// Package metrics exposes the Prometheus registry used by usable-query.
// Metrics are defined in their own packages (listener, transport,
// querycache) via promauto and registered with the default registerer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registerer.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Listener Metrics (pkg/listener):
//   - usable_listener_notifications_total{type, state} (Counter): Lifecycle notifications
//   - usable_listener_action_errors_total{type} (Counter): Failed or panicking listener actions
//
// Transport Metrics (pkg/transport):
//   - usable_http_requests_total{method, status} (Counter): Requests by method and HTTP status
//   - usable_http_request_duration_seconds{method} (Histogram): Request duration
//   - usable_http_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Cache Metrics (pkg/querycache):
//   - usable_cache_hits_total{layer} (Counter): Fresh cache hits by store (memory, redis)
//   - usable_cache_misses_total (Counter): Misses and stale entries
//   - usable_cache_invalidations_total (Counter): Entries removed by InvalidateQueries
//   - usable_cache_errors_total{operation} (Counter): Store errors by operation
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(usable_cache_hits_total[5m])) /
//   (sum(rate(usable_cache_hits_total[5m])) + sum(rate(usable_cache_misses_total[5m])))
//
//   # Failing listeners
//   rate(usable_listener_action_errors_total[5m]) > 0
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(usable_http_request_duration_seconds_bucket[5m]))
