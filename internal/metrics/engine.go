package metrics

import "github.com/prometheus/client_golang/prometheus"

// Engine Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricing",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"mode", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pricing",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"mode", "model"},
	)

	EmbeddingRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricing",
			Name:      "embedding_retries_total",
			Help:      "Embedding request retries by cause",
		},
		[]string{"cause"}, // "rate_limited" / "server_error" / "network"
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricing",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	SearchResultsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pricing",
			Name:      "search_results_returned",
			Help:      "Number of ranked matches returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		},
		[]string{"mode"},
	)

	ProposalTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricing",
			Name:      "proposal_tasks_total",
			Help:      "Estimated proposal tasks by material source",
		},
		[]string{"source"}, // "region" / "any_region" / "synthetic"
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers engine Prometheus metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingRetriesTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(SearchResultsReturned)
	prometheus.MustRegister(ProposalTasksTotal)
	engineMetricsRegistered = true
}
