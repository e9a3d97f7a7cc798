package application

import (
	"context"

	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

var _ ports.Executable = (*UnitAdapter)(nil)

// UnitAdapter lets a single unit stand as a pipeline stage.
type UnitAdapter struct {
	unit ports.Unit
	id   string
}

func NewUnitAdapter(unit ports.Unit, id string) *UnitAdapter {
	return &UnitAdapter{unit: unit, id: id}
}

func (ua *UnitAdapter) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	return ua.unit.Execute(ctx, state)
}

func (ua *UnitAdapter) ID() string { return ua.id }

// Unit returns the wrapped unit, which may itself be instrumented.
func (ua *UnitAdapter) Unit() ports.Unit { return ua.unit }
