// Package metrics provides Prometheus metrics collection for provisioning runs.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item outcomes.
const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Collector holds all Prometheus metrics for mongopenter.
type Collector struct {
	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Task metrics
	TaskDuration *prometheus.HistogramVec
	ItemsTotal   *prometheus.CounterVec

	// Grant metrics
	GrantFailures *prometheus.CounterVec

	// Hook metrics
	HooksTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer), prometheus.DefaultGatherer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing and for one-shot CLI runs to avoid global state.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	return newCollector(promauto.With(reg), reg)
}

func newCollector(factory promauto.Factory, gatherer prometheus.Gatherer) *Collector {
	return &Collector{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mongopenter",
				Name:      "runs_total",
				Help:      "Total number of provisioning runs by entry point and status",
			},
			[]string{"entry", "status"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mongopenter",
				Name:      "run_duration_seconds",
				Help:      "Provisioning run duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"entry"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mongopenter",
				Name:      "task_duration_seconds",
				Help:      "Provisioning task duration in seconds",
				Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"task"},
		),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mongopenter",
				Name:      "items_total",
				Help:      "Provisioned items by task and outcome",
			},
			[]string{"task", "outcome"},
		),
		GrantFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mongopenter",
				Name:      "grant_failures_total",
				Help:      "User grants that failed without aborting the run",
			},
			[]string{"database"},
		),
		HooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mongopenter",
				Name:      "hooks_total",
				Help:      "Extension hook invocations by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		gatherer: gatherer,
	}
}

// Item records one provisioned item outcome.
func (c *Collector) Item(task, outcome string) {
	c.ItemsTotal.WithLabelValues(task, outcome).Inc()
}

// WriteTextfile writes all gathered metrics in the text exposition format,
// suitable for the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
