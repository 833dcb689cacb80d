// Package metrics provides the central Prometheus registry reference for
// the catalog client. All metrics are defined in their respective packages
// (catalog, cache, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the catalog client.
// All metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Scheduler Metrics (pkg/ratelimit):
//   - catalog_live_sends_total (Counter): Live requests released by the scheduler
//   - catalog_window_wait_seconds (Histogram): Time spent waiting for the rate-limit window
//   - catalog_ordering_delays_total (Counter): Ordering delays applied to cache hits
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total (Counter): Cache hits
//   - catalog_cache_misses_total (Counter): Cache misses
//   - catalog_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/catalog):
//   - catalog_requests_total{source, status} (Counter): Live requests by source and HTTP status
//   - catalog_request_duration_seconds{source} (Histogram): Live request duration
//   - catalog_failures_total{kind} (Counter): Failures by kind (not_found, banned, network, malformed)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   rate(catalog_cache_hits_total[5m]) /
//   (rate(catalog_cache_hits_total[5m]) + rate(catalog_cache_misses_total[5m]))
//
//   # Ban Detection
//   increase(catalog_failures_total{kind="banned"}[1h]) > 0
//
//   # P95 Live Request Latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
//
//   # Average Window Wait
//   rate(catalog_window_wait_seconds_sum[5m]) / rate(catalog_window_wait_seconds_count[5m])
