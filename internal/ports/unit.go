// Package ports declares the interfaces between the scenario engine and the
// units, poll sources and metrics backends plugged into it.
package ports

import (
	"context"

	"github.com/ahrav/go-ballot/internal/domain"
)

// Unit is one step of a scenario: drawing a sample, normalizing it, or
// deriving alliances, seats or simulations from the result.
//
// Units read their inputs from the State and return a new State with their
// output added. They hold no per-run data, so one Unit may execute in
// several runs at once.
type Unit interface {
	Name() string
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// Validate reports configuration problems. The loader calls it once
	// when the scenario is built.
	Validate() error
}

// UnitFactory builds a unit from its ID and parameters. The loader adds
// the poll table the unit works on to config.
type UnitFactory func(id string, config map[string]any) (Unit, error)

// UnitRegistry creates units by type name.
type UnitRegistry interface {
	CreateUnit(unitType string, id string, config map[string]any) (Unit, error)
	RegisterUnitFactory(unitType string, factory UnitFactory) error
	SupportedTypes() []string
}
