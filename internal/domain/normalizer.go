package domain

// Normalizer defines the interface for rescaling a sample so that a group
// of entities respects a ceiling, with whatever is left going to "other".
// Implementations provide different strategies such as capping only when
// the ceiling is exceeded or always rescaling to an exact target.
type Normalizer interface {
	// Normalize rescales the sample against ceiling and returns the
	// adjusted snapshot. The sample itself is never modified.
	//
	// The method should handle edge cases such as:
	//   - Empty samples (return error)
	//   - NaN, infinite or negative values (return error)
	//   - Groups summing to zero when a division is required (ErrZeroTotal)
	//
	// Example:
	//
	//	sample := Sample{Shares: []Share{{"AKP", 30}, {"CHP", 25}}}
	//	snap, err := normalizer.Normalize(sample, 95)
	Normalize(sample Sample, ceiling float64) (Snapshot, error)
}
