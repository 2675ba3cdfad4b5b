// Package metrics exposes the process's prometheus instrumentation: HTTP
// request counters/latency and cache hit/miss counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerMetrics counts HTTP traffic per handler and status.
type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(registry *prometheus.Registry) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pickupmarket",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pickupmarket",
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	registry.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// CacheMetrics implements cache.Recorder over prometheus counters.
type CacheMetrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
}

func NewCacheMetrics(registry *prometheus.Registry) *CacheMetrics {
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pickupmarket",
		Name:      "cache_hits_total",
		Help:      "Total number of cache hits.",
	}, []string{"prefix"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pickupmarket",
		Name:      "cache_misses_total",
		Help:      "Total number of cache misses.",
	}, []string{"prefix"})

	registry.MustRegister(hits, misses)
	return &CacheMetrics{Hits: hits, Misses: misses}
}

func (m *CacheMetrics) Hit(key string) {
	m.Hits.WithLabelValues(keyPrefix(key)).Inc()
}

func (m *CacheMetrics) Miss(key string) {
	m.Misses.WithLabelValues(keyPrefix(key)).Inc()
}

// keyPrefix reduces a cache key to its leading segment so the label set
// stays bounded regardless of entity IDs.
func keyPrefix(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}

// Handler serves the registry in the prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
