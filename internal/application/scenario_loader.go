package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.ntppool.org/common/logger"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ballot/infrastructure/middleware"
	"github.com/ahrav/go-ballot/infrastructure/units"
	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

// ErrRegionRequired is returned when a scenario with regions is built
// without selecting one.
var ErrRegionRequired = errors.New("scenario requires a region")

// BuildOptions adjusts how a scenario is assembled.
type BuildOptions struct {
	// Region is the ID of the selected region. Required when the scenario
	// declares regions, ignored otherwise.
	Region string `yaml:"region"`
	// Overrides replaces unit parameters by unit type, for example the
	// number of Monte Carlo runs given on the command line.
	Overrides map[string]map[string]any `yaml:"overrides"`
	// ExcludeTypes lists unit types left out of the pipeline.
	ExcludeTypes []string `yaml:"exclude_types"`
}

// ScenarioLoader provides YAML configuration parsing, validation, and
// caching for scenarios, turning a declarative scenario into a runnable
// pipeline with its poll tables loaded.
// Use ScenarioLoader to load scenarios from files, readers or the embedded
// defaults while benefiting from SHA256-based caching.
type ScenarioLoader struct {
	// validator performs struct field validation and custom validation
	// rules for scenario configurations.
	validator *validator.Validate
	// unitRegistry provides factory methods for creating units.
	unitRegistry ports.UnitRegistry
	// source reads the poll tables a scenario declares.
	source ports.PollSource
	// metrics receives unit timings. May be nil.
	metrics ports.MetricsCollector
	// cache stores built scenarios indexed by SHA256 hash of the
	// normalized configuration and build options.
	// Cached scenarios are shared and MUST NOT be mutated.
	cache map[string]*Scenario
	// cacheMu provides thread-safe access to the cache map.
	cacheMu sync.RWMutex
	// sf prevents duplicate builds when multiple goroutines request the
	// same scenario simultaneously.
	sf singleflight.Group
}

// NewScenarioLoader creates a new scenario loader with validation
// capabilities and an empty cache.
// NewScenarioLoader returns an error if validator registration fails.
func NewScenarioLoader(
	unitRegistry ports.UnitRegistry,
	source ports.PollSource,
	metrics ports.MetricsCollector,
) (*ScenarioLoader, error) {
	v := validator.New()

	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	return &ScenarioLoader{
		validator:    v,
		unitRegistry: unitRegistry,
		source:       source,
		metrics:      metrics,
		cache:        make(map[string]*Scenario),
	}, nil
}

// Parse decodes and validates a scenario document without loading any
// poll data.
func (sl *ScenarioLoader) Parse(data []byte) (*ScenarioConfig, error) {
	config, err := sl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := sl.validateConfig(config); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return config, nil
}

// Load builds the scenario described by config. Identical configurations
// with identical options share one cached Scenario.
// WARNING: The returned scenario is a pointer to a cached instance and
// MUST NOT be mutated.
func (sl *ScenarioLoader) Load(ctx context.Context, config *ScenarioConfig, opts BuildOptions) (*Scenario, error) {
	hash, err := sl.calculateConfigHash(config, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := sl.sf.Do(hash, func() (any, error) {
		// Check cache inside singleflight to handle race between cache check
		// and singleflight group execution.
		if scenario, ok := sl.getCachedScenario(hash); ok {
			return scenario, nil
		}

		scenario, err := sl.buildScenario(ctx, config, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to build scenario: %w", err)
		}

		sl.cacheScenario(hash, scenario)
		return scenario, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Scenario), nil
}

// LoadBytes parses data and builds the scenario it describes.
func (sl *ScenarioLoader) LoadBytes(ctx context.Context, data []byte, opts BuildOptions) (*Scenario, error) {
	config, err := sl.Parse(data)
	if err != nil {
		return nil, err
	}
	return sl.Load(ctx, config, opts)
}

// LoadFromFile loads a scenario from a YAML file.
// LoadFromFile returns an error if file reading, parsing, validation,
// or scenario construction fails.
func (sl *ScenarioLoader) LoadFromFile(ctx context.Context, path string, opts BuildOptions) (*Scenario, error) {
	// Clean the path to prevent directory traversal attacks.
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return sl.LoadBytes(ctx, data, opts)
}

// LoadFromReader loads a scenario from an io.Reader.
func (sl *ScenarioLoader) LoadFromReader(ctx context.Context, r io.Reader, opts BuildOptions) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return sl.LoadBytes(ctx, data, opts)
}

// LoadEmbedded loads one of the scenarios shipped with the binary.
func (sl *ScenarioLoader) LoadEmbedded(ctx context.Context, name string, opts BuildOptions) (*Scenario, error) {
	data, err := EmbeddedScenario(name)
	if err != nil {
		return nil, err
	}
	return sl.LoadBytes(ctx, data, opts)
}

// parseYAML unmarshals YAML byte data into a ScenarioConfig.
// parseYAML uses strict decoding to detect unknown fields, preventing
// configuration typos from being silently ignored.
func (sl *ScenarioLoader) parseYAML(data []byte) (*ScenarioConfig, error) {
	var config ScenarioConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// validateConfig performs struct field validation followed by semantic
// validation of the references between tables, regions and units.
func (sl *ScenarioLoader) validateConfig(config *ScenarioConfig) error {
	if err := sl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	if err := validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}

	return nil
}

// validateSemantics performs domain-specific validation rules that
// cannot be expressed through struct tags: uniqueness of IDs and menu
// numbers, table references, entity references, and stage ordering of
// units that consume the output of other units.
func validateSemantics(config *ScenarioConfig) error {
	tables := make(map[string]TableConfig, len(config.Tables))
	for _, t := range config.Tables {
		if _, exists := tables[t.ID]; exists {
			return fmt.Errorf("duplicate table ID %q", t.ID)
		}
		tables[t.ID] = t
	}

	regionIDs := make(map[string]struct{}, len(config.Regions))
	menus := make(map[int]string, len(config.Regions))
	for _, r := range config.Regions {
		if _, exists := regionIDs[r.ID]; exists {
			return fmt.Errorf("duplicate region ID %q", r.ID)
		}
		regionIDs[r.ID] = struct{}{}
		if other, exists := menus[r.Menu]; exists {
			return fmt.Errorf("region %s reuses menu number %d of %s", r.ID, r.Menu, other)
		}
		menus[r.Menu] = r.ID
		for tableID := range r.Files {
			if _, exists := tables[tableID]; !exists {
				return fmt.Errorf("region %s references non-existent table: %s", r.ID, tableID)
			}
		}
	}

	for _, t := range config.Tables {
		if t.File != "" {
			continue
		}
		if len(config.Regions) == 0 {
			return fmt.Errorf("table %s has no file", t.ID)
		}
		for _, r := range config.Regions {
			if _, ok := r.Files[t.ID]; !ok {
				return fmt.Errorf("table %s has no file and region %s does not provide one", t.ID, r.ID)
			}
		}
	}

	unitIDs := make(map[string]struct{}, len(config.Units))
	for _, unit := range config.Units {
		if _, exists := unitIDs[unit.ID]; exists {
			return fmt.Errorf("duplicate unit ID %q", unit.ID)
		}
		unitIDs[unit.ID] = struct{}{}

		table, exists := tables[unit.Table]
		if !exists {
			return fmt.Errorf("unit %s references non-existent table: %s", unit.ID, unit.Table)
		}

		if err := ValidateUnitParameters(unit.Type, unit.Parameters); err != nil {
			return fmt.Errorf("unit %s parameter validation failed: %w", unit.ID, err)
		}

		names, err := referencedEntities(unit.Type, unit.Parameters)
		if err != nil {
			return fmt.Errorf("unit %s: %w", unit.ID, err)
		}
		for _, name := range names {
			if !slices.Contains(table.Entities, name) {
				return fmt.Errorf("unit %s: %w %q in table %s", unit.ID, domain.ErrUnknownEntity, name, unit.Table)
			}
		}

		if err := checkInputStage(config.Units, unit); err != nil {
			return err
		}
	}

	return nil
}

// unitInputs maps unit types to the unit types that produce their input.
var unitInputs = map[string][]string{
	UnitTypeCeilingNormalizer:      {UnitTypeSampler},
	UnitTypeProportionalNormalizer: {UnitTypeSampler},
	UnitTypeAlliance:               {UnitTypeCeilingNormalizer, UnitTypeProportionalNormalizer},
	UnitTypeSeatAllocator:          {UnitTypeCeilingNormalizer, UnitTypeProportionalNormalizer},
}

// checkInputStage verifies that a unit's input is produced for the same
// table at an earlier stage.
func checkInputStage(all []UnitConfig, unit UnitConfig) error {
	producers, ok := unitInputs[unit.Type]
	if !ok {
		return nil
	}
	for _, other := range all {
		if other.Table == unit.Table && other.Stage < unit.Stage && slices.Contains(producers, other.Type) {
			return nil
		}
	}
	return fmt.Errorf("unit %s needs a %v unit for table %s at an earlier stage", unit.ID, producers, unit.Table)
}

// buildScenario loads the poll tables, creates the units through the
// registry and arranges them into a pipeline of stages. A stage with a
// single unit runs it directly, a stage with several runs them in a Layer.
func (sl *ScenarioLoader) buildScenario(ctx context.Context, config *ScenarioConfig, opts BuildOptions) (*Scenario, error) {
	log := logger.FromContext(ctx)

	var region *RegionConfig
	if len(config.Regions) > 0 {
		if opts.Region == "" {
			return nil, ErrRegionRequired
		}
		r, ok := config.Region(opts.Region)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ports.ErrUnknownRegion, opts.Region)
		}
		region = &r
	}

	tables := make(map[string]*domain.PollTable, len(config.Tables))
	for _, tc := range config.Tables {
		table, err := sl.source.LoadTable(ctx, tc.Spec(region))
		if err != nil {
			return nil, fmt.Errorf("failed to load table %s: %w", tc.ID, err)
		}
		tables[tc.ID] = table
	}

	stages := make(map[int][]ports.Executable)
	for _, uc := range config.Units {
		if slices.Contains(opts.ExcludeTypes, uc.Type) {
			continue
		}
		unit, err := sl.createUnit(uc, tables[uc.Table], opts.Overrides[uc.Type])
		if err != nil {
			return nil, fmt.Errorf("failed to create unit %s: %w", uc.ID, err)
		}
		stages[uc.Stage] = append(stages[uc.Stage], NewUnitAdapter(unit, uc.ID))
	}

	order := make([]int, 0, len(stages))
	for stage := range stages {
		order = append(order, stage)
	}
	slices.Sort(order)

	pipeline := NewPipeline(config.Metadata.Name)
	for _, stage := range order {
		execs := stages[stage]
		if len(execs) == 1 {
			if err := pipeline.Add(execs[0]); err != nil {
				return nil, fmt.Errorf("failed to add unit to pipeline: %w", err)
			}
			continue
		}

		layer := NewLayer("stage_" + strconv.Itoa(stage))
		layer.SetMergeStrategy(KeyUnionMerge{})
		for _, exec := range execs {
			if err := layer.Add(exec); err != nil {
				return nil, fmt.Errorf("failed to add unit to layer: %w", err)
			}
		}
		if err := pipeline.Add(layer); err != nil {
			return nil, fmt.Errorf("failed to add layer to pipeline: %w", err)
		}
	}

	log.DebugContext(ctx, "scenario built",
		"scenario", config.Metadata.Name,
		"tables", len(tables),
		"stages", len(order))

	return &Scenario{
		config:   config,
		region:   region,
		tables:   tables,
		pipeline: pipeline,
		metrics:  sl.metrics,
	}, nil
}

// createUnit instantiates a unit from its configuration, injecting the
// poll table and table name next to the YAML parameters. The unit is
// wrapped with instrumentation when a metrics collector is configured.
func (sl *ScenarioLoader) createUnit(config UnitConfig, table *domain.PollTable, overrides map[string]any) (ports.Unit, error) {
	params, err := decodeParameters(config.Parameters)
	if err != nil {
		return nil, err
	}

	unitConfig := make(map[string]any, len(params)+len(overrides)+2)
	for k, v := range params {
		unitConfig[k] = v
	}
	for k, v := range overrides {
		unitConfig[k] = v
	}
	unitConfig[units.ConfigKeyTable] = config.Table
	unitConfig[units.ConfigKeyPollTable] = table

	unit, err := sl.unitRegistry.CreateUnit(config.Type, config.ID, unitConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit: %w", err)
	}
	if err := unit.Validate(); err != nil {
		return nil, fmt.Errorf("invalid unit configuration: %w", err)
	}

	if sl.metrics == nil {
		return unit, nil
	}
	return middleware.Instrument(unit, sl.metrics), nil
}

// calculateConfigHash computes the SHA256 hash of a normalized
// configuration together with the build options, so semantically
// identical requests share a cache entry.
func (sl *ScenarioLoader) calculateConfigHash(config *ScenarioConfig, opts BuildOptions) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}
	if err := encoder.Encode(opts); err != nil {
		return "", fmt.Errorf("failed to encode options for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

// getCachedScenario returns a previously built scenario.
// getCachedScenario is safe for concurrent use.
func (sl *ScenarioLoader) getCachedScenario(hash string) (*Scenario, bool) {
	sl.cacheMu.RLock()
	defer sl.cacheMu.RUnlock()

	scenario, ok := sl.cache[hash]
	return scenario, ok
}

// cacheScenario stores a built scenario under hash.
// cacheScenario is safe for concurrent use.
func (sl *ScenarioLoader) cacheScenario(hash string, scenario *Scenario) {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()

	sl.cache[hash] = scenario
}

// ClearCache removes all cached scenarios, forcing subsequent loads to
// read poll tables again.
// ClearCache is safe for concurrent use.
func (sl *ScenarioLoader) ClearCache() {
	sl.cacheMu.Lock()
	defer sl.cacheMu.Unlock()

	sl.cache = make(map[string]*Scenario)
}

// registerCustomValidators registers domain-specific validation functions
// with the validator instance.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}

	if err := RegisterScenarioValidators(v); err != nil {
		return fmt.Errorf("failed to register scenario validators: %w", err)
	}

	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3
}
