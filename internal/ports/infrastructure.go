package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-ballot/internal/domain"
)

// PollSource loads poll tables. File handles are closed before LoadTable
// returns.
type PollSource interface {
	// LoadTable reads the table the TableSpec describes. A missing file is a
	// *SourceError wrapping ErrSourceNotFound; content that does not match
	// its entity count and length wraps ErrMalformedTable.
	LoadTable(ctx context.Context, spec domain.TableSpec) (*domain.PollTable, error)
}

// MetricsCollector receives the measurements taken while a scenario runs.
// Labels are copied by implementations that keep them.
type MetricsCollector interface {
	RecordLatency(operation string, duration time.Duration, labels map[string]string)
	RecordCounter(metric string, value float64, labels map[string]string)
	RecordGauge(metric string, value float64, labels map[string]string)
	RecordHistogram(metric string, value float64, labels map[string]string)
}
