package units

import (
	"context"
	"fmt"
	"math"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

var (
	_ ports.Unit        = (*CeilingNormalizerUnit)(nil)
	_ domain.Normalizer = (*CeilingNormalizerUnit)(nil)
)

// CeilingNormalizerUnit caps the combined support of a group at a ceiling.
//
// When the group total exceeds the ceiling every member is multiplied by
// ceiling/total, so the group ends exactly at the ceiling. Totals at or
// below the ceiling pass through untouched. Whatever is not attributed to
// an entity is reported as Other (100 minus the sum of all shares).
//
// Concurrency: stateless and safe for concurrent execution.
type CeilingNormalizerUnit struct {
	name   string
	config CeilingNormalizerConfig
	tracer trace.Tracer
}

// CeilingNormalizerConfig defines the group and ceiling to enforce.
type CeilingNormalizerConfig struct {
	// Table selects the sample to normalize.
	Table string `yaml:"table" json:"table" validate:"required"`

	// Group names the normalized group in reports.
	Group string `yaml:"group" json:"group" validate:"required"`

	// Ceiling is the maximum group sum in percentage points.
	Ceiling float64 `yaml:"ceiling" json:"ceiling" validate:"gt=0,lte=100"`

	// Entities restricts the group to these members. Empty means every
	// entity of the sample.
	Entities []string `yaml:"entities" json:"entities" validate:"unique,dive,required"`
}

// NewCeilingNormalizerUnit creates a ceiling normalizer with a validated configuration.
func NewCeilingNormalizerUnit(name string, config CeilingNormalizerConfig) (*CeilingNormalizerUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	config.Entities = slices.Clone(config.Entities)
	return &CeilingNormalizerUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("ceiling-normalizer-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (cnu *CeilingNormalizerUnit) Name() string { return cnu.name }

// Execute normalizes the sample of the configured table.
//
// State requirements:
//   - domain.SampleKey(table): the drawn sample
//
// Returns a new state containing domain.SnapshotKey(table).
func (cnu *CeilingNormalizerUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := cnu.tracer.Start(ctx, "CeilingNormalizerUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "ceiling_normalizer"),
			attribute.String("unit.id", cnu.name),
			attribute.String("table", cnu.config.Table),
			attribute.Float64("config.ceiling", cnu.config.Ceiling),
		),
	)
	defer span.End()

	key := domain.SampleKey(cnu.config.Table)
	sample, ok := domain.Get(state, key)
	if !ok {
		err := domain.MissingKey(key, "Normalize")
		span.RecordError(err)
		return state, err
	}

	snap, err := cnu.Normalize(sample, cnu.config.Ceiling)
	if err != nil {
		span.RecordError(err)
		return state, fmt.Errorf("normalize %s: %w", cnu.config.Table, err)
	}

	span.SetAttributes(
		attribute.Float64("snapshot.scale", snap.Scale),
		attribute.Float64("snapshot.other", snap.Other),
		attribute.Bool("snapshot.scaled", snap.Scaled),
	)

	return domain.With(state, domain.SnapshotKey(cnu.config.Table), snap), nil
}

// Normalize implements domain.Normalizer using the configured group.
func (cnu *CeilingNormalizerUnit) Normalize(sample domain.Sample, ceiling float64) (domain.Snapshot, error) {
	return NormalizeToCeiling(sample, domain.Group{
		Name:     cnu.config.Group,
		Entities: slices.Clone(cnu.config.Entities),
		Ceiling:  ceiling,
	})
}

// NormalizeToCeiling caps the group total of sample at group.Ceiling.
// The total is computed once before any value is scaled.
func NormalizeToCeiling(sample domain.Sample, group domain.Group) (domain.Snapshot, error) {
	if err := checkShares(sample.Shares); err != nil {
		return domain.Snapshot{}, err
	}
	if err := checkLimit(group.Ceiling); err != nil {
		return domain.Snapshot{}, err
	}
	if err := checkGroupMembers(sample.Shares, group); err != nil {
		return domain.Snapshot{}, err
	}

	total := groupTotal(sample.Shares, group)
	scale := 1.0
	if total > group.Ceiling {
		scale = group.Ceiling / total
	}

	return newSnapshot(sample, group, scale), nil
}

func checkLimit(limit float64) error {
	if math.IsNaN(limit) || math.IsInf(limit, 0) || limit <= 0 {
		return fmt.Errorf("%w: ceiling %v", domain.ErrInvalidConfiguration, limit)
	}
	return nil
}

func newSnapshot(sample domain.Sample, group domain.Group, scale float64) domain.Snapshot {
	snap := domain.Snapshot{
		Table:  sample.Table,
		Group:  group,
		Shares: applyScale(sample.Shares, group, scale),
		Scale:  scale,
		Scaled: scale != 1,
	}
	snap.Other = 100 - snap.Sum()
	return snap
}

// Validate checks the unit configuration.
func (cnu *CeilingNormalizerUnit) Validate() error {
	if err := validate.Struct(cnu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// DefaultCeilingNormalizerConfig caps the whole sample at 95.
func DefaultCeilingNormalizerConfig() CeilingNormalizerConfig {
	return CeilingNormalizerConfig{
		Group:   "tracked",
		Ceiling: 95,
	}
}

// NewCeilingNormalizerFromConfig creates a CeilingNormalizerUnit from a configuration map.
func NewCeilingNormalizerFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultCeilingNormalizerConfig()
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewCeilingNormalizerUnit(id, cfg)
}
