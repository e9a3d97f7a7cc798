package application

import (
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ballot/internal/domain"
)

// ScenarioConfig defines a complete election scenario: the poll tables it
// reads, the regions a user may pick from, and the units that sample and
// normalize those tables.
// ScenarioConfig is the root of a scenario YAML document.
type ScenarioConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across releases.
	Version string `yaml:"version" validate:"required,semver"`
	// Metadata contains descriptive information about the scenario.
	Metadata Metadata `yaml:"metadata" validate:"required"`
	// Tables declares the poll tables the scenario loads.
	Tables []TableConfig `yaml:"tables" validate:"required,min=1,dive"`
	// Regions lists the selectable regions. A scenario without regions
	// reads each table from its own file.
	Regions []RegionConfig `yaml:"regions" validate:"dive"`
	// Units defines the processing steps, grouped into stages.
	Units []UnitConfig `yaml:"units" validate:"required,min=1,dive"`
	// Report holds rendering defaults.
	Report ReportConfig `yaml:"report"`
}

// Metadata provides descriptive information about a scenario.
type Metadata struct {
	// Name is the human-readable identifier for this scenario.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// Description explains what the scenario covers.
	Description string `yaml:"description" validate:"max=1000"`
	// Tags are categorical labels used when listing scenarios.
	Tags []string `yaml:"tags" validate:"max=20,dive,min=1,max=50"`
	// Labels are arbitrary key-value pairs.
	Labels map[string]string `yaml:"labels" validate:"max=50"`
}

// TableConfig describes one poll table file.
type TableConfig struct {
	// ID names the table in state keys, unit parameters and reports.
	ID string `yaml:"id" validate:"required,identifier,max=100"`
	// File is the table path relative to the data directory. It may be
	// omitted when every region supplies its own file.
	File string `yaml:"file" validate:"omitempty,max=255"`
	// Layout selects how values are arranged in the file.
	Layout domain.TableLayout `yaml:"layout" validate:"required,oneof=series rows"`
	// Entities lists the parties or candidates in file order.
	Entities []string `yaml:"entities" validate:"required,min=1,max=50,unique,dive,required"`
	// Length is the number of polls per entity.
	Length int `yaml:"length" validate:"required,min=1,max=1000"`
}

// RegionConfig is one entry of the region menu.
type RegionConfig struct {
	// ID is the stable identifier of the region.
	ID string `yaml:"id" validate:"required,identifier,max=100"`
	// Name is the display name, also accepted as a selection.
	Name string `yaml:"name" validate:"required,max=100"`
	// Menu is the number a user types to pick the region.
	Menu int `yaml:"menu" validate:"required,min=1,max=99"`
	// Files maps table IDs to the file holding this region's polls.
	Files map[string]string `yaml:"files" validate:"required,min=1,dive,required"`
	// Population is the region's population, used for voter estimates.
	Population int64 `yaml:"population" validate:"min=0"`
}

// UnitConfig defines a single processing unit of a scenario.
type UnitConfig struct {
	// ID is the unique identifier for this unit within the scenario.
	ID string `yaml:"id" validate:"required,identifier,max=100"`
	// Type specifies the unit implementation to instantiate.
	Type string `yaml:"type" validate:"required,oneof=sampler ceiling_normalizer proportional_normalizer alliance seat_allocator monte_carlo"`
	// Table is the ID of the table the unit operates on.
	Table string `yaml:"table" validate:"required,identifier"`
	// Stage orders execution. Units sharing a stage run in parallel and
	// stages run in ascending order.
	Stage int `yaml:"stage" validate:"min=0,max=100"`
	// Parameters contains type-specific configuration as flexible YAML
	// that will be validated according to the unit type.
	Parameters yaml.Node `yaml:"parameters,omitempty"`
}

// ReportConfig holds rendering defaults for a scenario.
type ReportConfig struct {
	// OtherLabel names the residual bucket in text output.
	OtherLabel string `yaml:"other_label" validate:"max=50"`
	// Population is the national population used for voter estimates.
	Population int64 `yaml:"population" validate:"min=0"`
	// Turnout is the expected turnout in percent.
	Turnout float64 `yaml:"turnout" validate:"min=0,max=100"`
}

// Table returns the table with the given ID.
func (c *ScenarioConfig) Table(id string) (TableConfig, bool) {
	for _, t := range c.Tables {
		if t.ID == id {
			return t, true
		}
	}
	return TableConfig{}, false
}

// Region returns the region with the given ID.
func (c *ScenarioConfig) Region(id string) (RegionConfig, bool) {
	for _, r := range c.Regions {
		if r.ID == id {
			return r, true
		}
	}
	return RegionConfig{}, false
}

// Spec returns the load specification of table t, reading the file from
// region when one is given.
func (t TableConfig) Spec(region *RegionConfig) domain.TableSpec {
	path := t.File
	if region != nil {
		if f, ok := region.Files[t.ID]; ok {
			path = f
		}
	}
	return domain.TableSpec{
		Name:     t.ID,
		Path:     path,
		Layout:   t.Layout,
		Entities: t.Entities,
		Length:   t.Length,
	}
}
