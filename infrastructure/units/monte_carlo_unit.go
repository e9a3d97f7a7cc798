package units

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

var _ ports.Unit = (*MonteCarloUnit)(nil)

// cancelCheckInterval is how many runs a worker performs between context checks.
const cancelCheckInterval = 1024

// MonteCarloUnit estimates each entity's expected result and chance of
// finishing first.
//
// Every run draws a value per entity from Normal(mean, stddev) of its poll
// series, clamps it at zero and rescales the run to 100. Runs are split
// into contiguous ranges across Workers goroutines, each with its own
// generator derived from the run seed, so the outcome only depends on the
// seed and the configuration.
type MonteCarloUnit struct {
	name   string
	table  *domain.PollTable
	config MonteCarloConfig
	tracer trace.Tracer
}

// MonteCarloConfig defines the simulation size.
type MonteCarloConfig struct {
	Table   string `yaml:"table" json:"table" validate:"required"`
	Runs    int    `yaml:"runs" json:"runs" validate:"min=1,max=1000000"`
	Workers int    `yaml:"workers" json:"workers" validate:"min=1,max=64"`
}

// NewMonteCarloUnit creates a simulation over table.
func NewMonteCarloUnit(name string, table *domain.PollTable, config MonteCarloConfig) (*MonteCarloUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if table == nil {
		return nil, ErrMissingTable
	}
	if config.Table == "" {
		config.Table = table.Name()
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &MonteCarloUnit{
		name:   name,
		table:  table,
		config: config,
		tracer: otel.Tracer("monte-carlo-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (mcu *MonteCarloUnit) Name() string { return mcu.name }

// Execute runs the simulation and stores the summary under
// domain.SimulationKey(table).
//
// State requirements:
//   - domain.KeySeed: the run seed
func (mcu *MonteCarloUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := mcu.tracer.Start(ctx, "MonteCarloUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "monte_carlo"),
			attribute.String("unit.id", mcu.name),
			attribute.Int("config.runs", mcu.config.Runs),
			attribute.Int("config.workers", mcu.config.Workers),
		),
	)
	defer span.End()

	seed, err := runSeed(state)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	summary, err := mcu.Simulate(ctx, seed)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	return domain.With(state, domain.SimulationKey(mcu.config.Table), summary), nil
}

// Simulate performs the configured number of runs.
func (mcu *MonteCarloUnit) Simulate(ctx context.Context, seed int64) (domain.SimulationSummary, error) {
	entities := mcu.table.Entities()
	means := make([]float64, len(entities))
	stds := make([]float64, len(entities))
	for i, entity := range entities {
		series, _ := mcu.table.Series(entity)
		means[i], stds[i] = seriesStats(series)
	}

	runs := mcu.config.Runs
	workers := min(mcu.config.Workers, runs)

	// results[i][r] is entity i's normalized share in run r. Workers own
	// disjoint run ranges, so no locking is needed.
	results := make([][]float64, len(entities))
	for i := range results {
		results[i] = make([]float64, runs)
	}
	wins := make([][]int, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		lo, hi := w*runs/workers, (w+1)*runs/workers
		wins[w] = make([]int, len(entities))
		rng := unitRand(seed, mcu.name+"/"+strconv.Itoa(w))

		g.Go(func() error {
			draw := make([]float64, len(entities))
			for r := lo; r < hi; r++ {
				if (r-lo)%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}

				for i := range draw {
					draw[i] = math.Max(0, means[i]+stds[i]*rng.NormFloat64())
				}
				total := floats.Sum(draw)
				if total == 0 {
					return fmt.Errorf("run %d: %w", r, domain.ErrZeroTotal)
				}
				floats.Scale(100/total, draw)

				for i, v := range draw {
					results[i][r] = v
				}
				wins[w][floats.MaxIdx(draw)]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.SimulationSummary{}, fmt.Errorf("simulate %s: %w", mcu.config.Table, err)
	}

	summary := domain.SimulationSummary{
		Table: mcu.config.Table,
		Runs:  runs,
		Stats: make([]domain.EntityStats, len(entities)),
	}
	for i, entity := range entities {
		mean, std := stat.MeanStdDev(results[i], nil)
		if runs < 2 {
			std = 0
		}
		won := 0
		for w := range wins {
			won += wins[w][i]
		}
		summary.Stats[i] = domain.EntityStats{
			Entity:         entity,
			Mean:           mean,
			StdDev:         std,
			WinProbability: float64(won) / float64(runs),
		}
	}
	return summary, nil
}

// seriesStats returns the mean and sample standard deviation of series.
// A single poll has no spread.
func seriesStats(series domain.Series) (mean, std float64) {
	if len(series) < 2 {
		return stat.Mean(series, nil), 0
	}
	return stat.MeanStdDev(series, nil)
}

// Validate checks the unit configuration.
func (mcu *MonteCarloUnit) Validate() error {
	if mcu.table == nil {
		return ErrMissingTable
	}
	if err := validate.Struct(mcu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// DefaultMonteCarloConfig returns 10000 runs over 4 workers.
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		Runs:    10000,
		Workers: 4,
	}
}

// NewMonteCarloFromConfig creates a MonteCarloUnit from a configuration map.
// The poll table is expected under ConfigKeyPollTable.
func NewMonteCarloFromConfig(id string, config map[string]any) (ports.Unit, error) {
	table, params, err := splitPollTable(config)
	if err != nil {
		return nil, err
	}

	cfg := DefaultMonteCarloConfig()
	if err := decodeConfig(params, &cfg); err != nil {
		return nil, err
	}

	return NewMonteCarloUnit(id, table, cfg)
}
