package domain

import (
	"fmt"
	"math"
	"slices"
)

// Series is the ordered list of historical poll values for one entity,
// oldest first.
type Series []float64

// Validate reports whether every value is a finite, non-negative percentage.
func (s Series) Validate() error {
	if len(s) == 0 {
		return ErrEmptySeries
	}
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w at index %d: %v", ErrInvalidValue, i, v)
		}
	}
	return nil
}

// PollTable maps each tracked party or candidate to its poll history.
// A PollTable is built once by NewPollTable and never changes afterwards;
// every accessor hands out copies so callers cannot mutate it.
type PollTable struct {
	name     string
	entities []string
	series   map[string]Series
}

// NewPollTable validates and copies the given series into an immutable table.
// entities fixes the table order used for sampling and reporting.
//
// It fails when there are no entities, an entity name is empty or repeated,
// an entity has no series, or a series holds NaN, infinite or negative values.
func NewPollTable(name string, entities []string, series map[string]Series) (*PollTable, error) {
	if len(entities) == 0 {
		return nil, fmt.Errorf("table %q: %w: no entities", name, ErrEmptyValue)
	}

	verr := NewValidationError(fmt.Sprintf("table %q", name))
	seen := make(map[string]struct{}, len(entities))
	copied := make(map[string]Series, len(entities))
	for _, entity := range entities {
		if entity == "" {
			verr.Addf("%w: empty entity name", ErrInvalidConfiguration)
			continue
		}
		if _, dup := seen[entity]; dup {
			verr.Addf("%w: duplicate entity %q", ErrInvalidConfiguration, entity)
			continue
		}
		seen[entity] = struct{}{}

		s, ok := series[entity]
		if !ok {
			verr.Addf("%w: no series for %q", ErrEmptySeries, entity)
			continue
		}
		if err := s.Validate(); err != nil {
			verr.Addf("entity %q: %w", entity, err)
			continue
		}
		copied[entity] = slices.Clone(s)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	return &PollTable{
		name:     name,
		entities: slices.Clone(entities),
		series:   copied,
	}, nil
}

// Name returns the table identifier.
func (t *PollTable) Name() string { return t.name }

// Entities returns the entity names in table order.
func (t *PollTable) Entities() []string { return slices.Clone(t.entities) }

// Len returns the number of entities in the table.
func (t *PollTable) Len() int { return len(t.entities) }

// Series returns a copy of the poll history for entity.
func (t *PollTable) Series(entity string) (Series, bool) {
	s, ok := t.series[entity]
	if !ok {
		return nil, false
	}
	return slices.Clone(s), true
}

// SeriesLen returns the length of the entity's poll history, or 0 when the
// entity is unknown.
func (t *PollTable) SeriesLen(entity string) int {
	return len(t.series[entity])
}

// Value returns the poll value at index i for entity.
func (t *PollTable) Value(entity string, i int) (float64, error) {
	s, ok := t.series[entity]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	if i < 0 || i >= len(s) {
		return 0, fmt.Errorf("index %d out of range for %q (len %d)", i, entity, len(s))
	}
	return s[i], nil
}

// TableLayout describes how values are arranged in a poll text file.
type TableLayout string

const (
	// LayoutSeries stores each entity's whole series consecutively: all
	// values of the first entity, then all values of the second, and so on.
	LayoutSeries TableLayout = "series"

	// LayoutRows stores one poll per row with one column per entity.
	LayoutRows TableLayout = "rows"
)

// TableSpec tells a PollSource where a table lives and how to read it.
type TableSpec struct {
	// Name is the table identifier used in state keys and reports.
	Name string

	// Path is the file path, relative to the source root.
	Path string

	// Layout selects the value arrangement in the file.
	Layout TableLayout

	// Entities lists the entity names in file order.
	Entities []string

	// Length is the number of polls per entity.
	Length int
}
