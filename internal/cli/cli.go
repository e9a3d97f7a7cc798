// Package cli implements the ballot command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.ntppool.org/common/logger"

	"github.com/ahrav/go-ballot/infrastructure/middleware"
	"github.com/ahrav/go-ballot/infrastructure/polldata"
	"github.com/ahrav/go-ballot/infrastructure/report"
	"github.com/ahrav/go-ballot/internal/application"
	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

// CLI is the root command. Global flags apply to every subcommand.
type CLI struct {
	Config      string  `short:"c" type:"existingfile" help:"Scenario YAML to use instead of the built-in one."`
	DataDir     string  `name:"data-dir" default:"data" env:"BALLOT_DATA_DIR" help:"Directory holding the poll tables."`
	Seed        int64   `help:"Seed for the random draws. 0 seeds from the clock."`
	Format      string  `enum:"text,table,json" default:"text" help:"Output format (${enum})."`
	Population  int64   `help:"Population used to estimate the number of voters."`
	Turnout     float64 `help:"Turnout in percent used to estimate the number of voters."`
	MetricsFile string  `name:"metrics-file" type:"path" help:"Write Prometheus metrics to this textfile after the run."`
	LogLevel    string  `name:"log-level" enum:"debug,info,warn,error" default:"warn" help:"Log level (${enum})."`

	General   GeneralCmd   `cmd:"" help:"Sample and normalize the general election polls."`
	Local     LocalCmd     `cmd:"" help:"Sample and normalize the polls of one city."`
	Simulate  SimulateCmd  `cmd:"" help:"Run a Monte Carlo simulation over a scenario."`
	Scenarios ScenariosCmd `cmd:"" help:"List the built-in scenarios."`
	Validate  ValidateCmd  `cmd:"" help:"Validate a scenario file."`
}

// Streams are the standard streams commands read from and write to.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Env is what the root command prepares for its subcommands.
type Env struct {
	cli     *CLI
	streams *Streams
	log     *slog.Logger
	loader  *application.ScenarioLoader
	metrics *middleware.PrometheusMetrics
}

// AfterApply sets up logging, the poll source and the scenario loader once
// flags are parsed, and binds the result for the selected command.
func (c *CLI) AfterApply(kctx *kong.Context, streams *Streams) error {
	env, err := c.newEnv(streams)
	if err != nil {
		return err
	}
	kctx.Bind(env)
	return nil
}

func (c *CLI) newEnv(streams *Streams) (*Env, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log := slog.New(slog.NewTextHandler(streams.Err, &slog.HandlerOptions{Level: level}))

	env := &Env{cli: c, streams: streams, log: log}

	var collector ports.MetricsCollector
	if c.MetricsFile != "" {
		env.metrics = middleware.NewPrometheusMetrics()
		collector = env.metrics
	}

	loader, err := application.NewScenarioLoader(
		application.NewDefaultUnitRegistry(),
		polldata.NewDirSource(c.DataDir),
		collector,
	)
	if err != nil {
		return nil, err
	}
	env.loader = loader
	return env, nil
}

// Context attaches the configured logger to ctx.
func (e *Env) Context(ctx context.Context) context.Context {
	return logger.NewContext(ctx, e.log)
}

// scenarioConfig parses the --config file when given, the built-in
// scenario name otherwise.
func (e *Env) scenarioConfig(name string) (*application.ScenarioConfig, error) {
	var (
		data []byte
		err  error
	)
	if e.cli.Config != "" {
		data, err = os.ReadFile(e.cli.Config)
		if err != nil {
			return nil, ports.NewConfigError("config", fmt.Errorf("%w: %w", ports.ErrConfigNotFound, err))
		}
	} else {
		data, err = application.EmbeddedScenario(name)
		if err != nil {
			return nil, err
		}
	}
	return e.loader.Parse(data)
}

// seed returns the --seed flag, or a clock-derived seed when it is 0.
func (e *Env) seed() int64 {
	if e.cli.Seed != 0 {
		return e.cli.Seed
	}
	return time.Now().UnixNano()
}

// run builds the scenario, executes it once and renders the report.
func (e *Env) run(ctx context.Context, cfg *application.ScenarioConfig, opts application.BuildOptions) error {
	log := logger.FromContext(ctx)

	scenario, err := e.loader.Load(ctx, cfg, opts)
	if err != nil {
		return err
	}

	seed := e.seed()
	log.DebugContext(ctx, "scenario built",
		"scenario", scenario.Name(),
		"region", opts.Region,
		"seed", seed)

	rep, err := scenario.Run(ctx, application.RunOptions{
		Seed:       seed,
		Population: e.cli.Population,
		Turnout:    e.cli.Turnout,
	})
	if err != nil {
		return err
	}

	if err := e.render(scenario.OtherLabel(), rep); err != nil {
		return err
	}
	return e.writeMetrics(ctx)
}

func (e *Env) render(otherLabel string, rep *domain.Report) error {
	renderer, err := report.NewRenderer(report.Format(e.cli.Format), report.WithOtherLabel(otherLabel))
	if err != nil {
		return err
	}
	return renderer.Render(e.streams.Out, *rep)
}

func (e *Env) writeMetrics(ctx context.Context) error {
	if e.metrics == nil {
		return nil
	}
	if err := e.metrics.WriteTextfile(e.cli.MetricsFile); err != nil {
		return err
	}
	logger.FromContext(ctx).DebugContext(ctx, "metrics written", "path", e.cli.MetricsFile)
	return nil
}

// NewParser builds the kong parser for cli. ctx is bound for the Run
// methods of the commands.
func NewParser(ctx context.Context, cli *CLI, streams *Streams, options ...kong.Option) (*kong.Kong, error) {
	opts := []kong.Option{
		kong.Name("ballot"),
		kong.Description("Sample poll tables and print normalized support percentages."),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(streams),
		kong.Writers(streams.Out, streams.Err),
		kong.ConfigureHelp(kong.HelpOptions{
			Tree: true,
		}),
		kong.UsageOnError(),
	}
	return kong.New(cli, append(opts, options...)...)
}

// Execute parses args and runs the selected command.
func Execute(ctx context.Context, args []string, streams *Streams, options ...kong.Option) error {
	parser, err := NewParser(ctx, &CLI{}, streams, options...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run()
}

// Main runs ballot with the process arguments and standard streams. It
// exits non-zero on failure.
func Main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	streams := &Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
	parser, err := NewParser(ctx, &CLI{}, streams)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	kctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		parser.FatalIfErrorf(err)
	}

	err = kctx.Run()
	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	parser.FatalIfErrorf(err)
}
