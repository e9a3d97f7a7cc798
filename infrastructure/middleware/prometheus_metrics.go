// Package middleware provides cross-cutting concerns for the scenario engine.
package middleware

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-ballot/internal/ports"
)

const unknownLabel = "unknown"

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It tracks unit execution latency and outcomes plus the normalization
// results of each table.
//
// Every instance owns its registry, so several collectors can coexist in
// one process and a run can be written out as a node_exporter textfile.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	tableGauges      *prometheus.GaugeVec
	valueHistogram   *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance with all
// metrics registered in a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ballot_unit_duration_seconds",
				Help:    "Execution time of scenario units.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "unit"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ballot_operations_total",
				Help: "Total number of operations performed, by outcome.",
			},
			[]string{"operation", "status", "unit"},
		),
		tableGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ballot_table_state",
				Help: "Latest normalization values per table, such as the other share and scale factor.",
			},
			[]string{"metric", "table"},
		),
		valueHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ballot_share_percent",
				Help:    "Distribution of recorded percentage values.",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"metric", "unit"},
		),
	}
}

// Registry returns the registry holding the collector's metrics.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// WriteTextfile writes the current metric values to path in the
// Prometheus text exposition format.
func (pm *PrometheusMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, pm.registry); err != nil {
		return ports.NewMetricsError("textfile", "WriteTextfile", fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}

func labelOr(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation, labelOr(labels, "unit")).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters. The "status" label defaults to success.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	status := labels["status"]
	if status == "" {
		status = "success"
	}
	pm.operationCounter.WithLabelValues(metric, status, labelOr(labels, "unit")).Add(value)
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values keyed by table.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.tableGauges.WithLabelValues(metric, labelOr(labels, "table")).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	pm.valueHistogram.WithLabelValues(metric, labelOr(labels, "unit")).Observe(value)
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NoopMetrics discards everything.
type NoopMetrics struct{}

var _ ports.MetricsCollector = NoopMetrics{}

func (NoopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (NoopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (NoopMetrics) RecordHistogram(string, float64, map[string]string)     {}
