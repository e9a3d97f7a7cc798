package middleware

import (
	"context"
	"time"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

// InstrumentedUnit wraps a unit and reports its latency and outcome to a
// MetricsCollector. It is transparent to the wrapped unit: name, state and
// errors pass through unchanged.
type InstrumentedUnit struct {
	unit    ports.Unit
	metrics ports.MetricsCollector
}

var _ ports.Unit = (*InstrumentedUnit)(nil)

// Instrument wraps unit. A nil collector returns unit unchanged.
func Instrument(unit ports.Unit, metrics ports.MetricsCollector) ports.Unit {
	if metrics == nil {
		return unit
	}
	return &InstrumentedUnit{unit: unit, metrics: metrics}
}

// Name returns the wrapped unit's name.
func (iu *InstrumentedUnit) Name() string { return iu.unit.Name() }

// Validate delegates to the wrapped unit.
func (iu *InstrumentedUnit) Validate() error { return iu.unit.Validate() }

// Unwrap returns the wrapped unit.
func (iu *InstrumentedUnit) Unwrap() ports.Unit { return iu.unit }

// Execute runs the wrapped unit and records unit_execute latency and a
// unit_executions counter labeled with the outcome.
func (iu *InstrumentedUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	start := time.Now()
	out, err := iu.unit.Execute(ctx, state)

	labels := map[string]string{"unit": iu.unit.Name(), "status": "success"}
	if err != nil {
		labels["status"] = "error"
	}
	iu.metrics.RecordLatency("unit_execute", time.Since(start), labels)
	iu.metrics.RecordCounter("unit_executions", 1, labels)

	return out, err
}
