// Package domain contains pure, dependency-free domain models and types
// for sampling and normalizing poll tables.
package domain

import (
	"fmt"
	"maps"
	"slices"
)

// Key names a State entry holding a value of type T.
type Key[T any] struct{ name string }

// NewKey returns the key called name.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

func (k Key[T]) Name() string { return k.name }

// Execution context keys shared by every scenario run.
var (
	// KeyScenarioID stores the identifier of the scenario being executed.
	KeyScenarioID = Key[string]{"execution.scenario_id"}

	// KeyRegion stores the selected region, empty for national scenarios.
	KeyRegion = Key[string]{"execution.region"}

	// KeyExecutionID stores a unique identifier for this specific run,
	// useful for log correlation.
	KeyExecutionID = Key[string]{"execution.execution_id"}

	// KeySeed stores the base random seed the run was started with.
	KeySeed = Key[int64]{"execution.seed"}
)

// Per-table keys. Every table in a scenario gets its own slot so units
// working on different tables can run side by side.

// SampleKey returns the key holding the raw sample drawn from table.
func SampleKey(table string) Key[Sample] {
	return Key[Sample]{"sample." + table}
}

// SnapshotKey returns the key holding the normalized snapshot of table.
func SnapshotKey(table string) Key[Snapshot] {
	return Key[Snapshot]{"snapshot." + table}
}

// AlliancesKey returns the key holding alliance totals computed for table.
func AlliancesKey(table string) Key[[]AllianceShare] {
	return Key[[]AllianceShare]{"alliances." + table}
}

// SeatsKey returns the key holding the seat allocation computed for table.
func SeatsKey(table string) Key[[]SeatAllocation] {
	return Key[[]SeatAllocation]{"seats." + table}
}

// SimulationKey returns the key holding Monte Carlo results for table.
func SimulationKey(table string) Key[SimulationSummary] {
	return Key[SimulationSummary]{"simulation." + table}
}

// cloneValue copies the values units exchange through State so that no
// caller can reach into another's slices. Values of other types are stored
// as they are and must not be mutated after being written.
func cloneValue(value any) any {
	switch v := value.(type) {
	case Sample:
		return v.Clone()
	case Snapshot:
		return v.Clone()
	case SimulationSummary:
		return v.Clone()
	case []AllianceShare:
		return cloneAlliances(v)
	case []SeatAllocation:
		return slices.Clone(v)
	case []Share:
		return slices.Clone(v)
	case []string:
		return slices.Clone(v)
	case []float64:
		return slices.Clone(v)
	case []int:
		return slices.Clone(v)
	default:
		return value
	}
}

// State is the immutable bag of values a scenario run passes from unit to
// unit: the execution context, then per-table samples, snapshots and
// derived results. Every write returns a new State, so one State may be
// handed to several units of a layer at once.
type State struct {
	data map[string]any
}

// NewState returns an empty State.
func NewState() State {
	return State{data: make(map[string]any)}
}

// Get returns the value stored under key. ok is false when the key is
// absent or holds a value of another type.
//
//	snap, ok := Get(state, SnapshotKey("parties"))
func Get[T any](s State, key Key[T]) (T, bool) {
	value, ok := s.data[key.name]
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := cloneValue(value).(T)
	return v, ok
}

// GetRaw is Get by key name, for code that walks Keys.
func (s State) GetRaw(keyName string) (any, bool) {
	value, ok := s.data[keyName]
	if !ok {
		return nil, false
	}
	return cloneValue(value), true
}

// With returns a copy of s with key set to value.
func With[T any](s State, key Key[T], value T) State {
	return s.WithMultiple(map[string]any{key.name: value})
}

// WithRaw is With by key name. It performs no type check.
func (s State) WithRaw(keyName string, value any) State {
	return s.WithMultiple(map[string]any{keyName: value})
}

// WithMultiple returns a copy of s with every entry of updates applied.
func (s State) WithMultiple(updates map[string]any) State {
	data := maps.Clone(s.data)
	if data == nil {
		data = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		data[k] = cloneValue(v)
	}
	return State{data: data}
}

// Keys lists the stored key names in no particular order.
func (s State) Keys() []string {
	return slices.Collect(maps.Keys(s.data))
}

// String returns a string representation of the State for debugging purposes.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// ExecutionContext identifies a run. It is written to the State before the
// pipeline starts and read back by units that need the seed.
type ExecutionContext struct {
	ScenarioID  string
	Region      string
	ExecutionID string
	Seed        int64
}

// WithExecutionContext returns a copy of s holding ctx.
func (s State) WithExecutionContext(ctx ExecutionContext) State {
	return s.WithMultiple(map[string]any{
		KeyScenarioID.name:  ctx.ScenarioID,
		KeyRegion.name:      ctx.Region,
		KeyExecutionID.name: ctx.ExecutionID,
		KeySeed.name:        ctx.Seed,
	})
}

// GetExecutionContext reads back what WithExecutionContext stored. ok is
// false unless every field is present.
func (s State) GetExecutionContext() (ctx ExecutionContext, ok bool) {
	var found [4]bool
	ctx.ScenarioID, found[0] = Get(s, KeyScenarioID)
	ctx.Region, found[1] = Get(s, KeyRegion)
	ctx.ExecutionID, found[2] = Get(s, KeyExecutionID)
	ctx.Seed, found[3] = Get(s, KeySeed)
	if found != [4]bool{true, true, true, true} {
		return ExecutionContext{}, false
	}
	return ctx, true
}
