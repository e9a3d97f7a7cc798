package testutils

import (
	"sync"
	"time"

	"github.com/ahrav/go-ballot/internal/ports"
)

var _ ports.MetricsCollector = (*RecordingMetrics)(nil)

// MetricRecord is one call made against a RecordingMetrics.
type MetricRecord struct {
	Kind   string
	Name   string
	Value  float64
	Labels map[string]string
}

// RecordingMetrics is a MetricsCollector that remembers every call.
type RecordingMetrics struct {
	mu      sync.Mutex
	records []MetricRecord
}

func (r *RecordingMetrics) add(kind, name string, v float64, labels map[string]string) {
	copied := make(map[string]string, len(labels))
	for k, val := range labels {
		copied[k] = val
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, MetricRecord{Kind: kind, Name: name, Value: v, Labels: copied})
}

// RecordLatency implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	r.add("latency", operation, d.Seconds(), labels)
}

// RecordCounter implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordCounter(metric string, v float64, labels map[string]string) {
	r.add("counter", metric, v, labels)
}

// RecordGauge implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordGauge(metric string, v float64, labels map[string]string) {
	r.add("gauge", metric, v, labels)
}

// RecordHistogram implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordHistogram(metric string, v float64, labels map[string]string) {
	r.add("histogram", metric, v, labels)
}

// Records returns a copy of everything recorded so far.
func (r *RecordingMetrics) Records() []MetricRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MetricRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Find returns the records with the given kind and name.
func (r *RecordingMetrics) Find(kind, name string) []MetricRecord {
	var out []MetricRecord
	for _, rec := range r.Records() {
		if rec.Kind == kind && rec.Name == name {
			out = append(out, rec)
		}
	}
	return out
}
