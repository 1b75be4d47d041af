// Package metrics defines the Prometheus metrics exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logbook"

var (
	// HTTPRequestTotal counts requests by method, route template and status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency by method and route template.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// PathQueriesTotal counts per-path queries by shape and outcome.
	PathQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_queries_total",
			Help:      "Per-path aggregation queries by kind (scalar, composite) and result (ok, empty, error, canceled).",
		},
		[]string{"kind", "result"},
	)

	// PathQueryDurationSeconds is the latency of one per-path query.
	PathQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "path_query_duration_seconds",
			Help:      "Per-path aggregation query duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"kind"},
	)

	// CacheRequestsTotal counts discovery cache lookups by cache and result (hit, miss).
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Discovery cache lookups by cache name and result.",
		},
		[]string{"cache", "result"},
	)

	// CacheEvictionsTotal counts capacity evictions by cache.
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Discovery cache entries evicted for capacity.",
		},
		[]string{"cache"},
	)

	// DiscoveryScanDurationSeconds is the latency of a full store scan.
	DiscoveryScanDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_scan_duration_seconds",
			Help:      "Store discovery scan duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"scan"},
	)

	// UnitProviderFailuresTotal counts failed conversion table fetches.
	UnitProviderFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_provider_failures_total",
			Help:      "Failed unit conversion provider fetches.",
		},
	)
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
