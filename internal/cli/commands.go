package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize/english"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.ntppool.org/common/logger"

	"github.com/ahrav/go-ballot/internal/application"
	"github.com/ahrav/go-ballot/internal/ports"
)

// Unit types the single-draw commands leave out.
var simulationTypes = []string{application.UnitTypeMonteCarlo}

// GeneralCmd prints one normalized draw of the party and candidate polls.
type GeneralCmd struct{}

func (cmd *GeneralCmd) Run(ctx context.Context, env *Env) error {
	ctx = env.Context(ctx)

	cfg, err := env.scenarioConfig(application.ScenarioGeneral2018)
	if err != nil {
		return err
	}
	return env.run(ctx, cfg, application.BuildOptions{ExcludeTypes: simulationTypes})
}

// LocalCmd prints one normalized draw for a city.
type LocalCmd struct {
	Selection string `arg:"" optional:"" help:"Menu number or city name. Prompted for when omitted."`
}

func (cmd *LocalCmd) Run(ctx context.Context, env *Env) error {
	ctx = env.Context(ctx)
	log := logger.FromContext(ctx)

	cfg, err := env.scenarioConfig(application.ScenarioLocal2024)
	if err != nil {
		return err
	}

	selection := cmd.Selection
	if selection == "" {
		selection, err = prompt(env, cfg.Regions)
		if err != nil {
			return err
		}
	}

	region, err := application.ResolveRegion(cfg.Regions, selection)
	if errors.Is(err, ports.ErrUnknownRegion) {
		// An invalid choice ends the program quietly.
		log.DebugContext(ctx, "no region selected", "selection", selection, "err", err)
		return nil
	}
	if err != nil {
		return err
	}

	return env.run(ctx, cfg, application.BuildOptions{
		Region:       region.ID,
		ExcludeTypes: simulationTypes,
	})
}

// prompt shows the region menu and reads one line from the input stream.
func prompt(env *Env, regions []application.RegionConfig) (string, error) {
	fmt.Fprint(env.streams.Out, application.Menu(regions))
	fmt.Fprint(env.streams.Out, "> ")

	scanner := bufio.NewScanner(env.streams.In)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read selection: %w", err)
		}
		return "", nil
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// SimulateCmd runs a scenario including its Monte Carlo units.
type SimulateCmd struct {
	Scenario string `default:"general2018" help:"Built-in scenario to simulate. Ignored with --config."`
	Region   string `help:"Region of scenarios that have regions, as menu number or name."`
	Runs     int    `help:"Number of simulated elections. Defaults to the scenario setting."`
	Workers  int    `help:"Parallel simulation workers. Defaults to the scenario setting."`
}

func (cmd *SimulateCmd) Run(ctx context.Context, env *Env) error {
	ctx = env.Context(ctx)

	cfg, err := env.scenarioConfig(cmd.Scenario)
	if err != nil {
		return err
	}

	opts := application.BuildOptions{Overrides: map[string]map[string]any{}}
	sim := map[string]any{}
	if cmd.Runs > 0 {
		sim["runs"] = cmd.Runs
	}
	if cmd.Workers > 0 {
		sim["workers"] = cmd.Workers
	}
	if len(sim) > 0 {
		opts.Overrides[application.UnitTypeMonteCarlo] = sim
	}

	if len(cfg.Regions) > 0 {
		if cmd.Region == "" {
			return fmt.Errorf("%w: use --region (%s)", application.ErrRegionRequired, regionIDs(cfg.Regions))
		}
		region, err := application.ResolveRegion(cfg.Regions, cmd.Region)
		if err != nil {
			return err
		}
		opts.Region = region.ID
	}

	return env.run(ctx, cfg, opts)
}

func regionIDs(regions []application.RegionConfig) string {
	ids := make([]string, len(regions))
	for i, r := range regions {
		ids[i] = r.ID
	}
	return strings.Join(ids, ", ")
}

// ScenariosCmd lists the scenarios compiled into the binary.
type ScenariosCmd struct{}

func (cmd *ScenariosCmd) Run(env *Env) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(env.streams.Out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Name", "Tables", "Regions", "Units", "Description"})

	for _, name := range application.EmbeddedScenarios() {
		data, err := application.EmbeddedScenario(name)
		if err != nil {
			return err
		}
		cfg, err := env.loader.Parse(data)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", name, err)
		}
		tw.AppendRow(table.Row{name, len(cfg.Tables), len(cfg.Regions), len(cfg.Units), cfg.Metadata.Description})
	}

	tw.Render()
	return nil
}

// ValidateCmd checks a scenario file without loading any poll data.
type ValidateCmd struct {
	File string `arg:"" type:"existingfile" help:"Scenario YAML file."`
}

func (cmd *ValidateCmd) Run(env *Env) error {
	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return err
	}
	cfg, err := env.loader.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.File, err)
	}

	fmt.Fprintf(env.streams.Out, "%s: ok (%s, %s, %s)\n", cmd.File,
		english.Plural(len(cfg.Tables), "table", ""),
		english.Plural(len(cfg.Regions), "region", ""),
		english.Plural(len(cfg.Units), "unit", ""))
	return nil
}
