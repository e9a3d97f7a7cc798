package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ballot/internal/domain"
)

// Test that our interfaces can be implemented correctly

// mockPollSource implements PollSource over an in-memory map of tables.
type mockPollSource struct{ tables map[string]map[string]domain.Series }

func (m *mockPollSource) LoadTable(ctx context.Context, spec domain.TableSpec) (*domain.PollTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	series, ok := m.tables[spec.Path]
	if !ok {
		return nil, NewSourceError(spec.Path, "LoadTable", ErrSourceNotFound)
	}
	return domain.NewPollTable(spec.Name, spec.Entities, series)
}

// mockMetricsCollector implements MetricsCollector interface
type mockMetricsCollector struct {
	mu      sync.Mutex
	metrics map[string][]float64
}

func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{metrics: make(map[string][]float64)}
}

func (m *mockMetricsCollector) record(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[name] = append(m.metrics[name], v)
}

func (m *mockMetricsCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.record(operation+"_latency", duration.Seconds())
}

func (m *mockMetricsCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.record(metric, value)
}

func (m *mockMetricsCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	m.record(metric, value)
}

func (m *mockMetricsCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.record(metric, value)
}

func TestInterfaces(t *testing.T) {
	var _ PollSource = (*mockPollSource)(nil)
	var _ MetricsCollector = (*mockMetricsCollector)(nil)
}

func TestPollSource_Contract(t *testing.T) {
	src := &mockPollSource{tables: map[string]map[string]domain.Series{
		"polls.txt": {"AKP": {42, 44}, "CHP": {25, 24}},
	}}
	ctx := context.Background()

	t.Run("loads table", func(t *testing.T) {
		table, err := src.LoadTable(ctx, domain.TableSpec{
			Name:     "parties",
			Path:     "polls.txt",
			Layout:   domain.LayoutSeries,
			Entities: []string{"AKP", "CHP"},
			Length:   2,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, table.Len())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := src.LoadTable(ctx, domain.TableSpec{Name: "x", Path: "nope.txt"})
		require.ErrorIs(t, err, ErrSourceNotFound)

		var srcErr *SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.Equal(t, "nope.txt", srcErr.Path)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := src.LoadTable(cctx, domain.TableSpec{Path: "polls.txt"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMetricsCollector_Contract(t *testing.T) {
	m := newMockMetricsCollector()
	labels := map[string]string{"unit": "sampler"}

	m.RecordLatency("unit_execute", 150*time.Millisecond, labels)
	m.RecordCounter("samples_total", 1, labels)
	m.RecordGauge("other_percent", 5, labels)
	m.RecordHistogram("scale_factor", 0.97, labels)

	assert.InDelta(t, 0.15, m.metrics["unit_execute_latency"][0], 1e-9)
	assert.Equal(t, []float64{1}, m.metrics["samples_total"])
	assert.Equal(t, []float64{5}, m.metrics["other_percent"])
	assert.Equal(t, []float64{0.97}, m.metrics["scale_factor"])
}
