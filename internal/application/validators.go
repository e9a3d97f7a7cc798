package application

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// identifierPattern matches table, region and unit IDs.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateUnitParameters validates the parameters for a specific unit type,
// ensuring value types and ranges match what the unit accepts.
// Parameters that are omitted fall back to the unit defaults.
// ValidateUnitParameters returns an error if parameter decoding fails
// or if any validation rule is violated.
func ValidateUnitParameters(unitType string, params yaml.Node) error {
	paramMap, err := decodeParameters(params)
	if err != nil {
		return err
	}

	switch unitType {
	case UnitTypeSampler:
		return validateSamplerParams(paramMap)
	case UnitTypeCeilingNormalizer:
		return validateNormalizerParams(paramMap, "ceiling")
	case UnitTypeProportionalNormalizer:
		return validateNormalizerParams(paramMap, "target")
	case UnitTypeAlliance:
		return validateAllianceParams(paramMap)
	case UnitTypeSeatAllocator:
		return validateSeatAllocatorParams(paramMap)
	case UnitTypeMonteCarlo:
		return validateMonteCarloParams(paramMap)
	default:
		return fmt.Errorf("unknown unit type: %s", unitType)
	}
}

// decodeParameters converts a parameters node to a map. An absent node
// yields an empty map.
func decodeParameters(params yaml.Node) (map[string]any, error) {
	paramMap := make(map[string]any)
	if params.Kind == 0 {
		return paramMap, nil
	}
	if err := params.Decode(&paramMap); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return paramMap, nil
}

func validateSamplerParams(params map[string]any) error {
	if err := checkKnown(params, "window"); err != nil {
		return err
	}
	if v, ok, err := intParam(params, "window"); err != nil {
		return err
	} else if ok && v < 0 {
		return fmt.Errorf("window must not be negative")
	}
	return nil
}

// validateNormalizerParams validates parameters shared by both normalizers.
// limitKey names the bound: ceiling for the capping normalizer and target
// for the proportional one.
func validateNormalizerParams(params map[string]any, limitKey string) error {
	if err := checkKnown(params, "group", limitKey, "entities"); err != nil {
		return err
	}
	if v, ok, err := numberParam(params, limitKey); err != nil {
		return err
	} else if ok && (v <= 0 || v > 100) {
		return fmt.Errorf("%s must be greater than 0 and at most 100", limitKey)
	}
	if group, ok := params["group"]; ok {
		if s, isStr := group.(string); !isStr || s == "" {
			return fmt.Errorf("group must be a non-empty string")
		}
	}
	if _, err := stringListParam(params, "entities"); err != nil {
		return err
	}
	return nil
}

func validateAllianceParams(params map[string]any) error {
	if err := checkKnown(params, "alliances"); err != nil {
		return err
	}
	raw, ok := params["alliances"]
	if !ok {
		return fmt.Errorf("alliance requires 'alliances' parameter")
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return fmt.Errorf("alliances must be a non-empty list")
	}
	for i, item := range list {
		def, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("alliance %d must be a mapping", i)
		}
		if name, ok := def["name"].(string); !ok || name == "" {
			return fmt.Errorf("alliance %d requires a name", i)
		}
		members, err := stringListParam(def, "members")
		if err != nil {
			return fmt.Errorf("alliance %d: %w", i, err)
		}
		if len(members) == 0 {
			return fmt.Errorf("alliance %d requires members", i)
		}
	}
	return nil
}

func validateSeatAllocatorParams(params map[string]any) error {
	if err := checkKnown(params, "seats", "threshold", "method"); err != nil {
		return err
	}
	if v, ok, err := intParam(params, "seats"); err != nil {
		return err
	} else if ok && (v < 1 || v > 10000) {
		return fmt.Errorf("seats must be between 1 and 10000")
	}
	if v, ok, err := numberParam(params, "threshold"); err != nil {
		return err
	} else if ok && (v < 0 || v > 100) {
		return fmt.Errorf("threshold must be between 0 and 100")
	}
	if method, ok := params["method"]; ok {
		s, isStr := method.(string)
		if !isStr {
			return fmt.Errorf("method must be a string")
		}
		if !slices.Contains([]string{"proportional", "dhondt"}, s) {
			return fmt.Errorf("invalid seat method: %s", s)
		}
	}
	return nil
}

func validateMonteCarloParams(params map[string]any) error {
	if err := checkKnown(params, "runs", "workers"); err != nil {
		return err
	}
	if v, ok, err := intParam(params, "runs"); err != nil {
		return err
	} else if ok && (v < 1 || v > 1_000_000) {
		return fmt.Errorf("runs must be between 1 and 1000000")
	}
	if v, ok, err := intParam(params, "workers"); err != nil {
		return err
	} else if ok && (v < 1 || v > 64) {
		return fmt.Errorf("workers must be between 1 and 64")
	}
	return nil
}

// checkKnown rejects parameter names the unit does not understand, so
// typos fail loudly instead of silently using defaults.
func checkKnown(params map[string]any, known ...string) error {
	for k := range params {
		if !slices.Contains(known, k) {
			return fmt.Errorf("unknown parameter %q", k)
		}
	}
	return nil
}

func numberParam(params map[string]any, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return float64(v), true, nil
	case float64:
		return v, true, nil
	default:
		return 0, true, fmt.Errorf("%s must be a number", key)
	}
}

func intParam(params map[string]any, key string) (int, bool, error) {
	raw, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	v, isInt := raw.(int)
	if !isInt {
		return 0, true, fmt.Errorf("%s must be an integer", key)
	}
	return v, true, nil
}

func stringListParam(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list of strings", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, isStr := item.(string)
		if !isStr || s == "" {
			return nil, fmt.Errorf("%s must be a list of non-empty strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// referencedEntities returns the entity names a unit's parameters refer to,
// so they can be checked against the unit's table.
func referencedEntities(unitType string, params yaml.Node) ([]string, error) {
	paramMap, err := decodeParameters(params)
	if err != nil {
		return nil, err
	}

	switch unitType {
	case UnitTypeCeilingNormalizer, UnitTypeProportionalNormalizer:
		return stringListParam(paramMap, "entities")
	case UnitTypeAlliance:
		var names []string
		list, _ := paramMap["alliances"].([]any)
		for _, item := range list {
			def, _ := item.(map[string]any)
			members, err := stringListParam(def, "members")
			if err != nil {
				return nil, err
			}
			names = append(names, members...)
		}
		return names, nil
	default:
		return nil, nil
	}
}

// RegisterScenarioValidators registers custom validation functions with
// the validator instance for use in scenario configuration validation.
// RegisterScenarioValidators returns an error if any validator registration
// fails.
func RegisterScenarioValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("identifier", validateIdentifier); err != nil {
		return fmt.Errorf("failed to register identifier validator: %w", err)
	}
	return nil
}

// validateIdentifier checks that a field is a lower-case identifier
// starting with a letter, as used in state keys and file names.
func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierPattern.MatchString(fl.Field().String())
}
