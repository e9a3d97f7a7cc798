package units

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

var _ ports.Unit = (*SamplerUnit)(nil)

// SamplerUnit draws one historical poll value per entity of a table.
//
// Each entity's index is drawn uniformly from [0, L) where L is the length
// of that entity's series, so an index equal to L can never be produced.
// With a Window the draw is restricted to the last Window polls.
//
// The generator is derived from the run seed stored in state and the unit
// name, which keeps the unit stateless and safe for concurrent execution.
type SamplerUnit struct {
	name   string
	table  *domain.PollTable
	config SamplerConfig
	tracer trace.Tracer
}

// SamplerConfig controls which polls a sampler may draw from.
type SamplerConfig struct {
	// Table is the name the sample is stored under. Defaults to the
	// poll table's own name.
	Table string `yaml:"table" json:"table" validate:"required"`

	// Window limits sampling to the most recent Window polls.
	// Zero means the whole series.
	Window int `yaml:"window" json:"window" validate:"min=0"`
}

// NewSamplerUnit creates a sampler over table.
func NewSamplerUnit(name string, table *domain.PollTable, config SamplerConfig) (*SamplerUnit, error) {
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

	return &SamplerUnit{
		name:   name,
		table:  table,
		config: config,
		tracer: otel.Tracer("sampler-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (su *SamplerUnit) Name() string { return su.name }

// Execute draws a sample and stores it under domain.SampleKey(table).
//
// State requirements:
//   - domain.KeySeed: the run seed
func (su *SamplerUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := su.tracer.Start(ctx, "SamplerUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "sampler"),
			attribute.String("unit.id", su.name),
			attribute.String("table", su.config.Table),
			attribute.Int("config.window", su.config.Window),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return state, err
	}

	seed, err := runSeed(state)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	sample, err := su.Sample(unitRand(seed, su.name))
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	span.SetAttributes(
		attribute.Int("sample.entities", len(sample.Shares)),
		attribute.Float64("sample.sum", sample.Sum()),
	)

	return domain.With(state, domain.SampleKey(su.config.Table), sample), nil
}

// Sample draws one value per entity using rng.
func (su *SamplerUnit) Sample(rng *rand.Rand) (domain.Sample, error) {
	entities := su.table.Entities()
	sample := domain.Sample{
		Table:   su.config.Table,
		Shares:  make([]domain.Share, len(entities)),
		Indices: make([]int, len(entities)),
	}

	for i, entity := range entities {
		lo, n := sampleRange(su.table.SeriesLen(entity), su.config.Window)
		if n == 0 {
			return domain.Sample{}, fmt.Errorf("%w: %q", domain.ErrEmptySeries, entity)
		}

		idx := lo + rng.IntN(n)
		v, err := su.table.Value(entity, idx)
		if err != nil {
			return domain.Sample{}, fmt.Errorf("sampling %q: %w", entity, err)
		}

		sample.Shares[i] = domain.Share{Entity: entity, Percent: v}
		sample.Indices[i] = idx
	}

	return sample, nil
}

// sampleRange returns the first eligible index and the number of eligible
// indices for a series of length l.
func sampleRange(l, window int) (lo, n int) {
	if window <= 0 || window >= l {
		return 0, l
	}
	return l - window, window
}

// Validate checks the unit configuration.
func (su *SamplerUnit) Validate() error {
	if su.table == nil {
		return ErrMissingTable
	}
	if err := validate.Struct(su.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// DefaultSamplerConfig returns a SamplerConfig that samples whole series.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{}
}

// NewSamplerFromConfig creates a SamplerUnit from a configuration map.
// This is the boundary adapter for YAML/JSON configuration; the poll table
// is expected under ConfigKeyPollTable.
func NewSamplerFromConfig(id string, config map[string]any) (ports.Unit, error) {
	table, params, err := splitPollTable(config)
	if err != nil {
		return nil, err
	}

	cfg := DefaultSamplerConfig()
	if err := decodeConfig(params, &cfg); err != nil {
		return nil, err
	}

	return NewSamplerUnit(id, table, cfg)
}
