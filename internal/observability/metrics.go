// Package observability provides metrics and monitoring capabilities for the
// saw-call processing service.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zoosonics/sawcall-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Pipeline  *metrics.PipelineMetrics
	Scheduler *metrics.SchedulerMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any collector fails to register.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	schedulerMetrics, err := metrics.NewSchedulerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Pipeline:  pipelineMetrics,
		Scheduler: schedulerMetrics,
	}, nil
}

// RegisterHandlers registers the metrics endpoint with the provided ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
