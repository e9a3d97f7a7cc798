// Package units provides the poll sampling and normalization units that
// implement the ports.Unit interface for the go-ballot scenario engine.
package units

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ballot/internal/domain"
)

// Configuration keys injected by the scenario loader next to the YAML
// parameters of a unit.
const (
	// ConfigKeyPollTable carries the *domain.PollTable a unit reads from.
	ConfigKeyPollTable = "poll_table"

	// ConfigKeyTable carries the name of the table a unit operates on.
	ConfigKeyTable = "table"
)

// Common errors returned by the units.
var (
	// ErrEmptyUnitName is returned when attempting to create a unit with an empty name.
	ErrEmptyUnitName = errors.New("unit name cannot be empty")

	// ErrMissingTable is returned when a unit that reads poll data is built
	// without a poll table.
	ErrMissingTable = errors.New("poll table not provided")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()

// decodeConfig overlays the plain parameters of config onto cfg.
// An injected poll table is skipped.
func decodeConfig(config map[string]any, cfg any) error {
	params := make(map[string]any, len(config))
	for k, v := range config {
		if k != ConfigKeyPollTable {
			params[k] = v
		}
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// splitPollTable separates the injected poll table from the plain parameters.
// The input map is left untouched.
func splitPollTable(config map[string]any) (*domain.PollTable, map[string]any, error) {
	params := make(map[string]any, len(config))
	for k, v := range config {
		params[k] = v
	}

	raw, ok := params[ConfigKeyPollTable]
	if !ok {
		return nil, nil, ErrMissingTable
	}
	delete(params, ConfigKeyPollTable)

	table, ok := raw.(*domain.PollTable)
	if !ok || table == nil {
		return nil, nil, fmt.Errorf("%w: got %T", ErrMissingTable, raw)
	}
	if _, set := params[ConfigKeyTable]; !set {
		params[ConfigKeyTable] = table.Name()
	}
	return table, params, nil
}

// unitRand returns the generator a unit uses for one execution.
// The stream depends on the run seed and the unit name, so units running
// side by side in a layer never share a generator yet every run is
// reproducible from its seed.
func unitRand(seed int64, unit string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(unit))
	return rand.New(rand.NewPCG(uint64(seed), h.Sum64()))
}

// runSeed extracts the seed of the current run from state.
func runSeed(state domain.State) (int64, error) {
	seed, ok := domain.Get(state, domain.KeySeed)
	if !ok {
		return 0, domain.MissingKey(domain.KeySeed, "Seed")
	}
	return seed, nil
}

// checkShares rejects empty share lists and values that are not finite,
// non-negative percentages.
func checkShares(shares []domain.Share) error {
	if len(shares) == 0 {
		return fmt.Errorf("%w: no shares", domain.ErrEmptyValue)
	}
	for i, s := range shares {
		if math.IsNaN(s.Percent) || math.IsInf(s.Percent, 0) || s.Percent < 0 {
			return fmt.Errorf("%w at index %d (%s): %v", domain.ErrInvalidValue, i, s.Entity, s.Percent)
		}
	}
	return nil
}

// checkGroupMembers makes sure every named group member is present in shares.
func checkGroupMembers(shares []domain.Share, group domain.Group) error {
	for _, member := range group.Entities {
		found := false
		for _, s := range shares {
			if s.Entity == member {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q in group %q", domain.ErrUnknownEntity, member, group.Name)
		}
	}
	return nil
}

// groupTotal sums the shares that belong to group.
func groupTotal(shares []domain.Share, group domain.Group) float64 {
	var total float64
	for _, s := range shares {
		if group.Contains(s.Entity) {
			total += s.Percent
		}
	}
	return total
}

// applyScale returns a copy of shares with every group member multiplied
// by factor.
func applyScale(shares []domain.Share, group domain.Group, factor float64) []domain.Share {
	out := make([]domain.Share, len(shares))
	for i, s := range shares {
		if group.Contains(s.Entity) {
			s.Percent *= factor
		}
		out[i] = s
	}
	return out
}
