package application

import (
	"context"
	"fmt"

	"go.ntppool.org/common/logger"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

// Scenario is a built scenario: poll tables loaded, units created and
// arranged into a pipeline. A Scenario is immutable and may be run any
// number of times, concurrently, each run with its own seed.
type Scenario struct {
	config   *ScenarioConfig
	region   *RegionConfig
	tables   map[string]*domain.PollTable
	pipeline *Pipeline
	metrics  ports.MetricsCollector
}

// RunOptions controls a single run of a scenario.
type RunOptions struct {
	// Seed drives every random draw of the run.
	Seed int64
	// ExecutionID identifies the run in logs. Defaults to the seed.
	ExecutionID string
	// Population overrides the configured population when positive.
	Population int64
	// Turnout overrides the configured turnout when positive.
	Turnout float64
}

// Name returns the scenario name.
func (s *Scenario) Name() string { return s.config.Metadata.Name }

// Config returns the scenario configuration. It must not be modified.
func (s *Scenario) Config() *ScenarioConfig { return s.config }

// Region returns the selected region, or nil for scenarios without regions.
func (s *Scenario) Region() *RegionConfig { return s.region }

// Table returns a loaded poll table by ID.
func (s *Scenario) Table(id string) (*domain.PollTable, bool) {
	t, ok := s.tables[id]
	return t, ok
}

// Pipeline returns the executable pipeline of the scenario.
func (s *Scenario) Pipeline() *Pipeline { return s.pipeline }

// OtherLabel returns the label used for the residual share.
func (s *Scenario) OtherLabel() string { return s.config.Report.OtherLabel }

// Run executes the pipeline once and collects the results into a report.
func (s *Scenario) Run(ctx context.Context, opts RunOptions) (*domain.Report, error) {
	log := logger.FromContext(ctx)

	execID := opts.ExecutionID
	if execID == "" {
		execID = fmt.Sprintf("%s-%d", s.Name(), opts.Seed)
	}
	regionName := ""
	if s.region != nil {
		regionName = s.region.Name
	}

	state := domain.NewState().WithExecutionContext(domain.ExecutionContext{
		ScenarioID:  s.Name(),
		Region:      regionName,
		ExecutionID: execID,
		Seed:        opts.Seed,
	})

	log.DebugContext(ctx, "running scenario",
		"scenario", s.Name(),
		"region", regionName,
		"execution_id", execID,
		"seed", opts.Seed)

	out, err := s.pipeline.Execute(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name(), err)
	}

	report := s.buildReport(out, opts)
	report.Region = regionName
	s.recordMetrics(report)

	return report, nil
}

// buildReport gathers the per-table results from the final state, in the
// order the tables are declared. Tables no unit produced output for are
// left out.
func (s *Scenario) buildReport(state domain.State, opts RunOptions) *domain.Report {
	report := &domain.Report{
		Scenario: s.Name(),
		Seed:     opts.Seed,
	}

	for _, tc := range s.config.Tables {
		tr := domain.TableReport{Name: tc.ID}
		found := false

		if snap, ok := domain.Get(state, domain.SnapshotKey(tc.ID)); ok {
			tr.Snapshot = &snap
			found = true
		}
		if alliances, ok := domain.Get(state, domain.AlliancesKey(tc.ID)); ok {
			tr.Alliances = alliances
			found = true
		}
		if seats, ok := domain.Get(state, domain.SeatsKey(tc.ID)); ok {
			tr.Seats = seats
			found = true
		}
		if sim, ok := domain.Get(state, domain.SimulationKey(tc.ID)); ok {
			tr.Simulation = &sim
			found = true
		}

		if found {
			report.Tables = append(report.Tables, tr)
		}
	}

	population := s.config.Report.Population
	if s.region != nil && s.region.Population > 0 {
		population = s.region.Population
	}
	if opts.Population > 0 {
		population = opts.Population
	}
	turnout := s.config.Report.Turnout
	if opts.Turnout > 0 {
		turnout = opts.Turnout
	}
	if population > 0 && turnout > 0 {
		e := domain.NewElectorate(population, turnout)
		report.Electorate = &e
	}

	return report
}

// recordMetrics publishes the normalization outcome of every table.
func (s *Scenario) recordMetrics(report *domain.Report) {
	if s.metrics == nil {
		return
	}
	for _, tr := range report.Tables {
		if tr.Snapshot == nil {
			continue
		}
		labels := map[string]string{"table": tr.Name, "unit": tr.Name}
		s.metrics.RecordGauge("other_percent", tr.Snapshot.Other, labels)
		s.metrics.RecordGauge("scale_factor", tr.Snapshot.Scale, labels)
		for _, share := range tr.Snapshot.Shares {
			s.metrics.RecordHistogram("share_percent", share.Percent, labels)
		}
	}
}
