// Package metrics records parser and bulk-update activity in a Prometheus
// registry that can be written out as a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mealie_parser"

// Metrics holds the collectors for one process. It satisfies engine.Recorder.
//
// Safe for concurrent use; parse workers record from their own goroutines.
type Metrics struct {
	registry *prometheus.Registry

	// ParseCalls counts finished parser calls by outcome.
	ParseCalls *prometheus.CounterVec

	// ParseDuration measures parser call latency.
	ParseDuration prometheus.Histogram

	// ParseInFlight is the number of parser calls currently running.
	ParseInFlight prometheus.Gauge

	// BulkItems counts ingredient updates by operation and result.
	BulkItems *prometheus.CounterVec

	// BulkOperations counts finished bulk updates by operation.
	BulkOperations *prometheus.CounterVec
}

// New creates metrics registered on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ParseCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "parse",
				Name:      "calls_total",
				Help:      "Parser calls by outcome",
			},
			[]string{"outcome"},
		),
		ParseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "parse",
			Name:      "duration_seconds",
			Help:      "Parser call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ParseInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "parse",
			Name:      "in_flight",
			Help:      "Parser calls currently running",
		}),
		BulkItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bulk",
				Name:      "items_total",
				Help:      "Ingredient updates by operation and result",
			},
			[]string{"operation", "result"},
		),
		BulkOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bulk",
				Name:      "operations_total",
				Help:      "Finished bulk updates by operation",
			},
			[]string{"operation"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ParseStarted marks a parser call as running.
func (m *Metrics) ParseStarted() {
	m.ParseInFlight.Inc()
}

// ParseFinished records the outcome and latency of a parser call.
func (m *Metrics) ParseFinished(outcome string, elapsed time.Duration) {
	m.ParseInFlight.Dec()
	m.ParseCalls.WithLabelValues(outcome).Inc()
	m.ParseDuration.Observe(elapsed.Seconds())
}

// BulkFinished records one bulk update.
func (m *Metrics) BulkFinished(operation string, succeeded, failed int) {
	m.BulkOperations.WithLabelValues(operation).Inc()
	m.BulkItems.WithLabelValues(operation, "succeeded").Add(float64(succeeded))
	m.BulkItems.WithLabelValues(operation, "failed").Add(float64(failed))
}

// WriteTextfile writes every metric in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
