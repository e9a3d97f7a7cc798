package ports

import (
	"context"

	"github.com/ahrav/go-ballot/internal/domain"
)

// Executable is anything a scenario can run: a wrapped unit, a Pipeline of
// stages or a Layer of units sharing a stage.
//
// Execute must treat its input State as read-only. The units of a Layer all
// receive the same State concurrently.
type Executable interface {
	Execute(ctx context.Context, state domain.State) (domain.State, error)
	ID() string
}

// Pipeline runs its executables one after the other, feeding each the
// State returned by the previous one.
type Pipeline interface {
	Executable

	// Add appends exec. IDs must be unique within the pipeline.
	Add(exec Executable) error

	// Executables returns a copy of the execution order.
	Executables() []Executable
}

// Layer runs its executables concurrently on the same input and combines
// their results with a MergeStrategy.
type Layer interface {
	Executable

	Add(exec Executable) error
	Executables() []Executable

	// SetMergeStrategy replaces the strategy. Call it before Execute.
	SetMergeStrategy(strategy MergeStrategy)
}

// MergeStrategy folds the States produced by a Layer back into one.
// base is the State the layer received; states are in insertion order.
// Merge must not modify its inputs and must be deterministic for a given
// order.
type MergeStrategy interface {
	Merge(base domain.State, states []domain.State) (domain.State, error)
}
