// Package metrics provides pipeline metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the detection pipeline
type PipelineMetrics struct {
	registry *prometheus.Registry

	// Processing outcome metrics
	recordingsProcessedTotal  *prometheus.CounterVec
	processingDurationSeconds *prometheus.HistogramVec

	// Detection metrics
	eventsDetectedTotal    *prometheus.CounterVec
	eventsPerRecordingHist prometheus.Histogram

	// Audio decode metrics
	decodeOperationsTotal *prometheus.CounterVec
	decodeDurationSeconds *prometheus.HistogramVec

	// Contention metrics
	contentionRetriesTotal prometheus.Counter

	// Artifact metrics
	artifactsCreatedTotal *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers new pipeline metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.recordingsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_recordings_processed_total",
			Help: "Total number of recordings run through the pipeline",
		},
		[]string{"outcome"}, // outcome: processed, failed, skipped
	)

	m.processingDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_processing_duration_seconds",
			Help:    "Time taken to process one recording end to end",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"outcome"},
	)

	m.eventsDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_events_detected_total",
			Help: "Total number of saw-call events detected",
		},
		[]string{"species"},
	)

	m.eventsPerRecordingHist = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_events_per_recording",
			Help:    "Number of events detected in one recording",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		},
	)

	m.decodeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_decode_operations_total",
			Help: "Total number of audio decode attempts",
		},
		[]string{"format", "status"}, // format: wav, flac; status: success, error
	)

	m.decodeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_decode_duration_seconds",
			Help:    "Time taken to decode one audio file",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"format"},
	)

	m.contentionRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_contention_retries_total",
			Help: "Total number of database contention retries",
		},
	)

	m.artifactsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_artifacts_created_total",
			Help: "Total number of artifacts produced after detection",
		},
		[]string{"kind", "status"}, // kind: spectrogram, report
	)
}

// Describe implements the Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.recordingsProcessedTotal.Describe(ch)
	m.processingDurationSeconds.Describe(ch)
	m.eventsDetectedTotal.Describe(ch)
	m.eventsPerRecordingHist.Describe(ch)
	m.decodeOperationsTotal.Describe(ch)
	m.decodeDurationSeconds.Describe(ch)
	m.contentionRetriesTotal.Describe(ch)
	m.artifactsCreatedTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.recordingsProcessedTotal.Collect(ch)
	m.processingDurationSeconds.Collect(ch)
	m.eventsDetectedTotal.Collect(ch)
	m.eventsPerRecordingHist.Collect(ch)
	m.decodeOperationsTotal.Collect(ch)
	m.decodeDurationSeconds.Collect(ch)
	m.contentionRetriesTotal.Collect(ch)
	m.artifactsCreatedTotal.Collect(ch)
}

// RecordProcessingOutcome records the outcome and duration of one pipeline run
func (m *PipelineMetrics) RecordProcessingOutcome(outcome string, duration float64) {
	m.recordingsProcessedTotal.WithLabelValues(outcome).Inc()
	m.processingDurationSeconds.WithLabelValues(outcome).Observe(duration)
}

// RecordEventsDetected records the events found in one recording
func (m *PipelineMetrics) RecordEventsDetected(species string, count int) {
	m.eventsDetectedTotal.WithLabelValues(species).Add(float64(count))
	m.eventsPerRecordingHist.Observe(float64(count))
}

// RecordDecode records one audio decode attempt
func (m *PipelineMetrics) RecordDecode(format, status string, duration float64) {
	m.decodeOperationsTotal.WithLabelValues(format, status).Inc()
	m.decodeDurationSeconds.WithLabelValues(format).Observe(duration)
}

// RecordContentionRetry records one database contention retry
func (m *PipelineMetrics) RecordContentionRetry() {
	m.contentionRetriesTotal.Inc()
}

// RecordArtifact records one artifact generation attempt
func (m *PipelineMetrics) RecordArtifact(kind, status string) {
	m.artifactsCreatedTotal.WithLabelValues(kind, status).Inc()
}
