package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autograde"

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	extractionDuration  *prometheus.HistogramVec
	extractionFailures  *prometheus.CounterVec
	gradingDuration     prometheus.Histogram
	gradingOutcomes     *prometheus.CounterVec
	similarityRuns      *prometheus.CounterVec
	similarityFlags     prometheus.Counter
	similarityPairFails prometheus.Counter
	eventsPublished     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		extractionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time spent converting uploaded documents to text.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		}, []string{"kind", "content_type"})

		extractionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Documents that could not be converted to text.",
		}, []string{"kind", "reason"})

		gradingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grading_duration_seconds",
			Help:      "Time spent grading one submission.",
			Buckets:   prometheus.DefBuckets,
		})

		gradingOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grading_outcomes_total",
			Help:      "Grading attempts by resulting submission status.",
		}, []string{"status"})

		similarityRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarity_runs_total",
			Help:      "Similarity detection runs by mode and result.",
		}, []string{"mode", "result"})

		similarityFlags = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarity_flags_created_total",
			Help:      "Similarity flags persisted.",
		})

		similarityPairFails = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarity_pair_failures_total",
			Help:      "Answer pairs that could not be compared.",
		})

		eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published to the message broker.",
		}, []string{"subject", "result"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			extractionDuration, extractionFailures,
			gradingDuration, gradingOutcomes,
			similarityRuns, similarityFlags, similarityPairFails,
			eventsPublished,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ExtractionDuration exposes the document conversion histogram.
func ExtractionDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return extractionDuration
}

// ExtractionFailures exposes the failed conversion counter.
func ExtractionFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return extractionFailures
}

// GradingDuration exposes the grading latency histogram.
func GradingDuration() prometheus.Histogram {
	RegisterMetrics()
	return gradingDuration
}

// GradingOutcomes exposes the grading outcome counter.
func GradingOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOutcomes
}

// SimilarityRuns exposes the detection run counter.
func SimilarityRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return similarityRuns
}

// SimilarityFlagsCreated exposes the persisted flag counter.
func SimilarityFlagsCreated() prometheus.Counter {
	RegisterMetrics()
	return similarityFlags
}

// SimilarityPairFailures exposes the failed pair counter.
func SimilarityPairFailures() prometheus.Counter {
	RegisterMetrics()
	return similarityPairFails
}

// EventsPublished exposes the broker publish counter.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublished
}
