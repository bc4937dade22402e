package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments for the service.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheSaveErr  prometheus.Counter
	LatencyMs     *prometheus.HistogramVec
}

// New creates and registers all metrics.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explaind_requests_total",
				Help: "Total explanation requests received per endpoint",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explaind_errors_total",
				Help: "Failed explanation requests per endpoint and status code",
			},
			[]string{"endpoint", "status"},
		),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "explaind_cache_hits",
			Help: "Global explanations served from the cache store",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "explaind_cache_misses",
			Help: "Global explanations recomputed after a cache miss",
		}),
		CacheSaveErr: promauto.NewCounter(prometheus.CounterOpts{
			Name: "explaind_cache_save_errors",
			Help: "Best-effort cache writes that failed",
		}),
		LatencyMs: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "explaind_request_latency_ms",
				Help:    "End-to-end request latency in milliseconds",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),
	}
}
