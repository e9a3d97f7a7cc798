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

var _ ports.Unit = (*AllianceUnit)(nil)

// AllianceUnit reports the combined support of electoral alliances from a
// normalized snapshot.
type AllianceUnit struct {
	name   string
	config AllianceConfig
	tracer trace.Tracer
}

// AllianceDefinition names an alliance and its member entities.
type AllianceDefinition struct {
	Name    string   `yaml:"name" json:"name" validate:"required"`
	Members []string `yaml:"members" json:"members" validate:"min=1,unique,dive,required"`
}

// AllianceConfig lists the alliances computed for a table.
type AllianceConfig struct {
	Table     string               `yaml:"table" json:"table" validate:"required"`
	Alliances []AllianceDefinition `yaml:"alliances" json:"alliances" validate:"min=1,dive"`
}

// NewAllianceUnit creates an alliance unit.
func NewAllianceUnit(name string, config AllianceConfig) (*AllianceUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	alliances := make([]AllianceDefinition, len(config.Alliances))
	for i, a := range config.Alliances {
		alliances[i] = AllianceDefinition{Name: a.Name, Members: slices.Clone(a.Members)}
	}
	config.Alliances = alliances

	return &AllianceUnit{
		name:   name,
		config: config,
		tracer: otel.Tracer("alliance-unit"),
	}, nil
}

// Name returns the unique identifier for this unit instance.
func (au *AllianceUnit) Name() string { return au.name }

// Execute sums alliance members of domain.SnapshotKey(table) and stores the
// totals under domain.AlliancesKey(table).
func (au *AllianceUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	_, span := au.tracer.Start(ctx, "AllianceUnit.Execute",
		trace.WithAttributes(
			attribute.String("unit.type", "alliance"),
			attribute.String("unit.id", au.name),
			attribute.String("table", au.config.Table),
			attribute.Int("config.alliances", len(au.config.Alliances)),
		),
	)
	defer span.End()

	key := domain.SnapshotKey(au.config.Table)
	snap, ok := domain.Get(state, key)
	if !ok {
		err := domain.MissingKey(key, "Alliances")
		span.RecordError(err)
		return state, err
	}

	shares, err := au.Combine(snap)
	if err != nil {
		span.RecordError(err)
		return state, err
	}

	return domain.With(state, domain.AlliancesKey(au.config.Table), shares), nil
}

// Combine computes the alliance totals for snap in configuration order.
func (au *AllianceUnit) Combine(snap domain.Snapshot) ([]domain.AllianceShare, error) {
	out := make([]domain.AllianceShare, 0, len(au.config.Alliances))
	for _, a := range au.config.Alliances {
		var total float64
		for _, member := range a.Members {
			v, ok := snap.Lookup(member)
			if !ok {
				return nil, fmt.Errorf("alliance %q: %w: %q", a.Name, domain.ErrUnknownEntity, member)
			}
			total += v
		}
		out = append(out, domain.AllianceShare{
			Name:    a.Name,
			Members: slices.Clone(a.Members),
			Percent: total,
		})
	}
	return out, nil
}

// Validate checks the unit configuration.
func (au *AllianceUnit) Validate() error {
	if err := validate.Struct(au.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// NewAllianceFromConfig creates an AllianceUnit from a configuration map.
func NewAllianceFromConfig(id string, config map[string]any) (ports.Unit, error) {
	var cfg AllianceConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewAllianceUnit(id, cfg)
}
