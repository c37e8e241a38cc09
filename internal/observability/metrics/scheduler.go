// Package metrics provides scheduler metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics contains Prometheus metrics for the background scheduler
type SchedulerMetrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	cyclesTotal *prometheus.CounterVec

	// Retry sweep metrics
	retrySweepsTotal prometheus.Counter
	requeuedTotal    prometheus.Counter

	// Queue depth by status
	queueDepthGauge *prometheus.GaugeVec

	// Batch dispatch metrics
	batchRunsTotal *prometheus.CounterVec
}

// NewSchedulerMetrics creates and registers new scheduler metrics
func NewSchedulerMetrics(registry *prometheus.Registry) (*SchedulerMetrics, error) {
	m := &SchedulerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SchedulerMetrics) initMetrics() {
	m.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_cycles_total",
			Help: "Total number of scheduler poll cycles",
		},
		[]string{"outcome"}, // outcome: processed, idle, error
	)

	m.retrySweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_retry_sweeps_total",
			Help: "Total number of retry sweeps over failed recordings",
		},
	)

	m.requeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_requeued_total",
			Help: "Total number of failed recordings returned to the queue",
		},
	)

	m.queueDepthGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Number of recordings per processing status",
		},
		[]string{"status"},
	)

	m.batchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_batch_runs_total",
			Help: "Total number of batch drain runs",
		},
		[]string{"status"}, // status: completed, skipped
	)
}

// Describe implements the Collector interface
func (m *SchedulerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.cyclesTotal.Describe(ch)
	m.retrySweepsTotal.Describe(ch)
	m.requeuedTotal.Describe(ch)
	m.queueDepthGauge.Describe(ch)
	m.batchRunsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *SchedulerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.cyclesTotal.Collect(ch)
	m.retrySweepsTotal.Collect(ch)
	m.requeuedTotal.Collect(ch)
	m.queueDepthGauge.Collect(ch)
	m.batchRunsTotal.Collect(ch)
}

// RecordCycle records one scheduler poll cycle
func (m *SchedulerMetrics) RecordCycle(outcome string) {
	m.cyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordRetrySweep records one retry sweep and how many records it requeued
func (m *SchedulerMetrics) RecordRetrySweep(requeued int) {
	m.retrySweepsTotal.Inc()
	m.requeuedTotal.Add(float64(requeued))
}

// UpdateQueueDepth updates the per-status queue depth gauge
func (m *SchedulerMetrics) UpdateQueueDepth(status string, count int64) {
	m.queueDepthGauge.WithLabelValues(status).Set(float64(count))
}

// RecordBatchRun records one batch drain attempt
func (m *SchedulerMetrics) RecordBatchRun(status string) {
	m.batchRunsTotal.WithLabelValues(status).Inc()
}
