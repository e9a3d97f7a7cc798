package application

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-ballot/infrastructure/units"
	"github.com/ahrav/go-ballot/internal/ports"
)

var _ ports.UnitRegistry = (*DefaultUnitRegistry)(nil)

// Unit types known to every registry.
const (
	UnitTypeSampler                = "sampler"
	UnitTypeCeilingNormalizer      = "ceiling_normalizer"
	UnitTypeProportionalNormalizer = "proportional_normalizer"
	UnitTypeAlliance               = "alliance"
	UnitTypeSeatAllocator          = "seat_allocator"
	UnitTypeMonteCarlo             = "monte_carlo"
)

// ErrUnsupportedUnitType is returned for unit types without a factory.
var ErrUnsupportedUnitType = errors.New("unsupported unit type")

// DefaultUnitRegistry maps unit type names to factories. It is safe for
// concurrent use; scenarios built in parallel share one registry.
type DefaultUnitRegistry struct {
	mu        sync.RWMutex
	factories map[string]ports.UnitFactory
}

// NewDefaultUnitRegistry returns a registry holding the sampling,
// normalization, alliance, seat and simulation units.
func NewDefaultUnitRegistry() *DefaultUnitRegistry {
	return &DefaultUnitRegistry{
		factories: map[string]ports.UnitFactory{
			UnitTypeSampler:                units.NewSamplerFromConfig,
			UnitTypeCeilingNormalizer:      units.NewCeilingNormalizerFromConfig,
			UnitTypeProportionalNormalizer: units.NewProportionalNormalizerFromConfig,
			UnitTypeAlliance:               units.NewAllianceFromConfig,
			UnitTypeSeatAllocator:          units.NewSeatAllocatorFromConfig,
			UnitTypeMonteCarlo:             units.NewMonteCarloFromConfig,
		},
	}
}

// CreateUnit builds the unit id of type unitType. config carries the decoded
// YAML parameters plus the injected poll table; a nil config is treated as
// empty.
func (r *DefaultUnitRegistry) CreateUnit(unitType, id string, config map[string]any) (ports.Unit, error) {
	r.mu.RLock()
	factory, ok := r.factories[unitType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedUnitType, unitType)
	}
	if id == "" {
		return nil, errors.New("unit ID cannot be empty")
	}
	if config == nil {
		config = map[string]any{}
	}

	unit, err := factory(id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit %s of type %s: %w", id, unitType, err)
	}
	return unit, nil
}

// RegisterUnitFactory adds a unit type or replaces the factory of an
// existing one.
func (r *DefaultUnitRegistry) RegisterUnitFactory(unitType string, factory ports.UnitFactory) error {
	switch {
	case unitType == "":
		return errors.New("unit type cannot be empty")
	case factory == nil:
		return fmt.Errorf("factory for %s cannot be nil", unitType)
	}

	r.mu.Lock()
	r.factories[unitType] = factory
	r.mu.Unlock()
	return nil
}

// SupportedTypes returns the registered unit types, sorted.
func (r *DefaultUnitRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
