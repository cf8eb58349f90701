package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec

	chunksPerDocument *prometheus.HistogramVec
	embedBatchTotal   *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorbase",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutorbase",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tutorbase",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutorbase",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	chunksPerDocument := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tutorbase",
			Subsystem: "worker",
			Name:      "chunks_per_document",
			Help:      "Distribution of chunk counts per processed document.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
		[]string{"service"},
	)
	embedBatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tutorbase",
			Subsystem: "worker",
			Name:      "embed_batch_total",
			Help:      "Total embedding provider batches by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, chunksPerDocument, embedBatchTotal)

	return &WorkerMetrics{
		registry:          registry,
		processTotal:      processTotal,
		processDuration:   processDuration,
		processInFlight:   processInFlight,
		queueLag:          queueLag,
		chunksPerDocument: chunksPerDocument,
		embedBatchTotal:   embedBatchTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveChunks(service string, count int) {
	if count < 0 {
		return
	}
	m.chunksPerDocument.WithLabelValues(service).Observe(float64(count))
}

func (m *WorkerMetrics) RecordEmbedBatch(service string, failed bool) {
	outcome := "success"
	if failed {
		outcome = "error"
	}
	m.embedBatchTotal.WithLabelValues(service, outcome).Inc()
}

// PipelineRecorder binds a service label so pipeline code can record chunk
// counts and batch outcomes without carrying label plumbing.
type PipelineRecorder struct {
	metrics *WorkerMetrics
	service string
}

func (m *WorkerMetrics) Pipeline(service string) *PipelineRecorder {
	return &PipelineRecorder{metrics: m, service: service}
}

func (r *PipelineRecorder) ObserveChunks(count int) {
	r.metrics.ObserveChunks(r.service, count)
}

func (r *PipelineRecorder) RecordEmbedBatch(failed bool) {
	r.metrics.RecordEmbedBatch(r.service, failed)
}
