package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueryMetrics covers the ask path: retrieval tier usage, retrieved chunk
// counts, and end-to-end answer latency.
type QueryMetrics struct {
	registry *prometheus.Registry

	askTotal        *prometheus.CounterVec
	tierTotal       *prometheus.CounterVec
	retrievedChunks *prometheus.HistogramVec
	askDuration     *prometheus.HistogramVec
	noContextTotal  *prometheus.CounterVec
}

func NewQueryMetrics(service string) *QueryMetrics {
	registry := prometheus.NewRegistry()

	askTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorbase",
			Subsystem: "query",
			Name:      "ask_total",
			Help:      "Total answered questions by status.",
		},
		[]string{"service", "status"},
	)
	tierTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorbase",
			Subsystem: "query",
			Name:      "retrieval_tier_total",
			Help:      "Total retrievals by the tier that produced the result.",
		},
		[]string{"service", "tier"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutorbase",
			Subsystem: "query",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutorbase",
			Subsystem: "query",
			Name:      "ask_duration_seconds",
			Help:      "End-to-end question answering duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorbase",
			Subsystem: "query",
			Name:      "no_context_total",
			Help:      "Total questions answered without knowledge-base sources.",
		},
		[]string{"service"},
	)

	registry.MustRegister(askTotal, tierTotal, retrievedChunks, askDuration, noContextTotal)

	return &QueryMetrics{
		registry:        registry,
		askTotal:        askTotal,
		tierTotal:       tierTotal,
		retrievedChunks: retrievedChunks,
		askDuration:     askDuration,
		noContextTotal:  noContextTotal,
	}
}

func (m *QueryMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *QueryMetrics) RecordAsk(service, tier string, chunkCount int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.askTotal.WithLabelValues(service, status).Inc()
	m.askDuration.WithLabelValues(service).Observe(duration.Seconds())

	if err != nil {
		return
	}
	if tier == "" {
		tier = "unknown"
	}
	m.tierTotal.WithLabelValues(service, tier).Inc()
	m.retrievedChunks.WithLabelValues(service).Observe(float64(chunkCount))
	if chunkCount == 0 {
		m.noContextTotal.WithLabelValues(service).Inc()
	}
}
