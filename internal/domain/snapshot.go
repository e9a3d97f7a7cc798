package domain

import "slices"

// Share is one entity's percentage of support.
type Share struct {
	// Entity is the party or candidate name.
	Entity string `json:"entity"`

	// Percent is the support in percentage points.
	Percent float64 `json:"percent"`
}

// Sample holds one randomly drawn poll value per entity of a table.
type Sample struct {
	// Table is the name of the table the sample was drawn from.
	Table string `json:"table"`

	// Shares holds the drawn values in table order.
	Shares []Share `json:"shares"`

	// Indices records which poll was drawn for each share.
	Indices []int `json:"indices"`
}

// Sum returns the total of all drawn values.
func (s Sample) Sum() float64 { return sumShares(s.Shares) }

// Lookup returns the drawn value for entity.
func (s Sample) Lookup(entity string) (float64, bool) { return lookupShare(s.Shares, entity) }

// Clone returns a copy that shares no memory with s.
func (s Sample) Clone() Sample {
	s.Shares = slices.Clone(s.Shares)
	s.Indices = slices.Clone(s.Indices)
	return s
}

// Group is a named subset of entities normalized together against a ceiling.
// An empty Entities list means every entity of the sample.
type Group struct {
	// Name identifies the group in reports.
	Name string `json:"name"`

	// Entities lists the members of the group.
	Entities []string `json:"entities,omitempty"`

	// Ceiling is the maximum sum the group may reach after normalization.
	Ceiling float64 `json:"ceiling"`
}

// Contains reports whether entity belongs to the group.
func (g Group) Contains(entity string) bool {
	if len(g.Entities) == 0 {
		return true
	}
	for _, e := range g.Entities {
		if e == entity {
			return true
		}
	}
	return false
}

// Snapshot is the normalized view of a sample that gets printed.
type Snapshot struct {
	// Table is the name of the source table.
	Table string `json:"table"`

	// Group is the group that was normalized.
	Group Group `json:"group"`

	// Shares holds the adjusted values in table order.
	Shares []Share `json:"shares"`

	// Other is the residual percentage not attributed to any tracked entity.
	Other float64 `json:"other"`

	// Scale is the factor applied to the group, 1 when untouched.
	Scale float64 `json:"scale"`

	// Scaled reports whether the group was rescaled.
	Scaled bool `json:"scaled"`
}

// Sum returns the total of all adjusted values.
func (s Snapshot) Sum() float64 { return sumShares(s.Shares) }

// Lookup returns the adjusted value for entity.
func (s Snapshot) Lookup(entity string) (float64, bool) { return lookupShare(s.Shares, entity) }

// Clone returns a copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	s.Shares = slices.Clone(s.Shares)
	s.Group.Entities = slices.Clone(s.Group.Entities)
	return s
}

// AllianceShare is the combined support of an electoral alliance.
type AllianceShare struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Percent float64  `json:"percent"`
}

// SeatAllocation is the number of seats an entity wins.
type SeatAllocation struct {
	Entity  string  `json:"entity"`
	Percent float64 `json:"percent"`
	Seats   int     `json:"seats"`

	// Eligible is false when the entity fell below the electoral threshold.
	Eligible bool `json:"eligible"`
}

// EntityStats summarizes one entity across Monte Carlo runs.
type EntityStats struct {
	Entity         string  `json:"entity"`
	Mean           float64 `json:"mean"`
	StdDev         float64 `json:"std_dev"`
	WinProbability float64 `json:"win_probability"`
}

// SimulationSummary is the outcome of a Monte Carlo simulation over a table.
type SimulationSummary struct {
	Table string        `json:"table"`
	Runs  int           `json:"runs"`
	Stats []EntityStats `json:"stats"`
}

// Clone returns a copy that shares no memory with s.
func (s SimulationSummary) Clone() SimulationSummary {
	s.Stats = slices.Clone(s.Stats)
	return s
}

func cloneAlliances(in []AllianceShare) []AllianceShare {
	if in == nil {
		return nil
	}
	out := make([]AllianceShare, len(in))
	for i, a := range in {
		a.Members = slices.Clone(a.Members)
		out[i] = a
	}
	return out
}

func sumShares(shares []Share) float64 {
	var total float64
	for _, s := range shares {
		total += s.Percent
	}
	return total
}

func lookupShare(shares []Share, entity string) (float64, bool) {
	for _, s := range shares {
		if s.Entity == entity {
			return s.Percent, true
		}
	}
	return 0, false
}
