package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval outcomes.
const (
	OutcomeSkipped   = "skipped"
	OutcomeRetrieved = "retrieved"
	OutcomeDegraded  = "degraded"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsm_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rsm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rsm_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)

	RetrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsm_memory_retrievals_total",
			Help: "Context retrievals by outcome (skipped, retrieved, degraded).",
		},
		[]string{"outcome"},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rsm_memory_retrieval_duration_seconds",
			Help:    "Duration of the similarity search step.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	HistoricalMessages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rsm_memory_historical_messages",
			Help:    "Number of historical messages merged into a context.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
		},
	)

	ChunksIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rsm_indexer_chunks_indexed_total",
			Help: "Total number of conversation chunks written to the vector store.",
		},
	)

	IndexingFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsm_indexer_failures_total",
			Help: "Indexing failures by stage.",
		},
		[]string{"stage"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsm_embedding_cache_total",
			Help: "Embedding cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		RetrievalsTotal,
		RetrievalDuration,
		HistoricalMessages,
		ChunksIndexedTotal,
		IndexingFailuresTotal,
		EmbeddingCacheTotal,
	)
}
