package units

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

var (
	_ ports.Unit        = (*ProportionalNormalizerUnit)(nil)
	_ domain.Normalizer = (*ProportionalNormalizerUnit)(nil)
)

// ProportionalNormalizerUnit rescales a group so it sums to a target,
// regardless of whether the raw total is above or below it.
// A group whose total is zero cannot be rescaled and fails with
// domain.ErrZeroTotal.
type ProportionalNormalizerUnit struct {
	name   string
	config ProportionalNormalizerConfig
	tracer trace.Tracer
}

// ProportionalNormalizerConfig defines the group and the target sum.
type ProportionalNormalizerConfig struct {
	Table    string   `yaml:"table" json:"table" validate:"required"`
	Group    string   `yaml:"group" json:"group" validate:"required"`
	Target   float64  `yaml:"target" json:"target" validate:"gt=0,lte=100"`
	Entities []string `yaml:"entities" json:"entities" validate:"unique,dive,required"`
}

// NewProportionalNormalizerUnit creates a proportional normalizer.
func NewProportionalNormalizerUnit(name string, config ProportionalNormalizerConfig) (*ProportionalNormalizerUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	config.Entities = slices.Clone(config.Entities)
	return &ProportionalNormalizerUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("proportional-normalizer-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (pnu *ProportionalNormalizerUnit) Name() string { return pnu.name }

// Execute rescales the sample of the configured table and stores the
// result under domain.SnapshotKey(table).
func (pnu *ProportionalNormalizerUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := pnu.tracer.Start(ctx, "ProportionalNormalizerUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "proportional_normalizer"),
			attribute.String("unit.id", pnu.name),
			attribute.String("table", pnu.config.Table),
			attribute.Float64("config.target", pnu.config.Target),
		),
	)
	defer span.End()

	key := domain.SampleKey(pnu.config.Table)
	sample, ok := domain.Get(state, key)
	if !ok {
		err := domain.MissingKey(key, "Normalize")
		span.RecordError(err)
		return state, err
	}

	snap, err := pnu.Normalize(sample, pnu.config.Target)
	if err != nil {
		span.RecordError(err)
		return state, fmt.Errorf("normalize %s: %w", pnu.config.Table, err)
	}

	span.SetAttributes(attribute.Float64("snapshot.scale", snap.Scale))

	return domain.With(state, domain.SnapshotKey(pnu.config.Table), snap), nil
}

// Normalize implements domain.Normalizer. The ceiling is used as the exact
// target of the group.
func (pnu *ProportionalNormalizerUnit) Normalize(sample domain.Sample, ceiling float64) (domain.Snapshot, error) {
	return NormalizeToTarget(sample, domain.Group{
		Name:     pnu.config.Group,
		Entities: slices.Clone(pnu.config.Entities),
		Ceiling:  ceiling,
	})
}

// NormalizeToTarget scales the group of sample so that it sums to
// group.Ceiling exactly.
func NormalizeToTarget(sample domain.Sample, group domain.Group) (domain.Snapshot, error) {
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
	if total == 0 {
		return domain.Snapshot{}, fmt.Errorf("group %q: %w", group.Name, domain.ErrZeroTotal)
	}

	return newSnapshot(sample, group, group.Ceiling/total), nil
}

// Validate checks the unit configuration.
func (pnu *ProportionalNormalizerUnit) Validate() error {
	if err := validate.Struct(pnu.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// DefaultProportionalNormalizerConfig rescales the whole sample to 100.
func DefaultProportionalNormalizerConfig() ProportionalNormalizerConfig {
	return ProportionalNormalizerConfig{
		Group:  "all",
		Target: 100,
	}
}

// NewProportionalNormalizerFromConfig creates a ProportionalNormalizerUnit from a configuration map.
func NewProportionalNormalizerFromConfig(id string, config map[string]any) (ports.Unit, error) {
	cfg := DefaultProportionalNormalizerConfig()
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewProportionalNormalizerUnit(id, cfg)
}
