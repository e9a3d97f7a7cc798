package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ballot/internal/application"
	"github.com/ahrav/go-ballot/internal/domain"
	"github.com/ahrav/go-ballot/internal/ports"
)

const dataDir = "../../data"

// execute runs ballot with args and returns what it wrote to stdout and
// stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	streams := &Streams{In: strings.NewReader(stdin), Out: &out, Err: &errOut}
	err := Execute(context.Background(), args, streams, kong.Exit(func(int) {}))
	return out.String(), errOut.String(), err
}

func decodeReport(t *testing.T, out string) domain.Report {
	t.Helper()
	var rep domain.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep), out)
	return rep
}

func TestGeneral(t *testing.T) {
	out, _, err := execute(t, "", "--data-dir", dataDir, "--seed", "42", "--format", "json", "general")
	require.NoError(t, err)

	rep := decodeReport(t, out)
	assert.Equal(t, application.ScenarioGeneral2018, rep.Scenario)
	assert.Equal(t, int64(42), rep.Seed)
	require.Len(t, rep.Tables, 2)

	parties := rep.Tables[0]
	require.NotNil(t, parties.Snapshot)
	assert.LessOrEqual(t, parties.Snapshot.Sum(), 95+1e-9)
	assert.Nil(t, parties.Simulation, "Single draws leave the simulation out.")

	seats := 0
	for _, s := range parties.Seats {
		seats += s.Seats
	}
	assert.Equal(t, 600, seats)

	require.NotNil(t, rep.Tables[1].Snapshot)
	assert.InDelta(t, 100, rep.Tables[1].Snapshot.Sum(), 1e-9)

	require.NotNil(t, rep.Electorate)
	assert.Equal(t, int64(64189919), rep.Electorate.Voters)
}

func TestGeneral_Text(t *testing.T) {
	out, _, err := execute(t, "", "--data-dir", dataDir, "--seed", "7", "general")
	require.NoError(t, err)

	for _, want := range []string{"AKP: %", "Diger: %", "Cumhur: %", "Millet: %", "Erdogan: %", "Expected voters: 64,189,919"} {
		assert.Contains(t, out, want)
	}

	again, _, err := execute(t, "", "--data-dir", dataDir, "--seed", "7", "general")
	require.NoError(t, err)
	assert.Equal(t, out, again, "Same seed, same output.")
}

func TestGeneral_TableFormatAndElectorate(t *testing.T) {
	out, _, err := execute(t, "",
		"--data-dir", dataDir, "--seed", "3", "--format", "table",
		"--population", "1000000", "--turnout", "50", "general")
	require.NoError(t, err)

	assert.Contains(t, out, "parties seats")
	assert.Contains(t, out, "Expected voters: 500,000")
}

func TestGeneral_MissingData(t *testing.T) {
	_, _, err := execute(t, "", "--data-dir", t.TempDir(), "general")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrSourceNotFound)
}

func TestGeneral_CustomConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "polls.txt"), []byte(strings.Repeat("10 ", 60)), 0o600))

	cfg := filepath.Join(dir, "flat.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
version: "1.0.0"
metadata:
  name: flat
tables:
  - id: parties
    file: polls.txt
    layout: series
    entities: [AKP, CHP, IYI, HDP, MHP, SP]
    length: 10
units:
  - id: party_sampler
    type: sampler
    table: parties
  - id: party_ceiling
    type: ceiling_normalizer
    table: parties
    stage: 1
    parameters:
      ceiling: 95
report:
  other_label: Other
`), 0o600))

	out, _, err := execute(t, "", "--config", cfg, "--data-dir", dir, "--seed", "1", "general")
	require.NoError(t, err)
	assert.Contains(t, out, "AKP: %10.00")
	assert.Contains(t, out, "Other: %40.00")
}

func TestLocal(t *testing.T) {
	tests := []struct {
		name      string
		selection string
		stdin     string
		want      string
	}{
		{name: "menu number", selection: "1", want: "Istanbul\n"},
		{name: "name", selection: "ankara", want: "Ankara\n"},
		{name: "misspelled name", selection: "Izmr", want: "Izmir\n"},
		{name: "prompt", stdin: "4\n", want: "Bursa\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"--data-dir", dataDir, "--seed", "5", "local"}
			if tt.selection != "" {
				args = append(args, tt.selection)
			}
			out, _, err := execute(t, tt.stdin, args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "CHP: %")
		})
	}
}

func TestLocal_PromptShowsMenu(t *testing.T) {
	out, _, err := execute(t, "5\n", "--data-dir", dataDir, "--seed", "5", "local")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1) Istanbul\n2) Ankara\n"), out)
	assert.Contains(t, out, "Antalya\n")
}

func TestLocal_InvalidSelectionIsSilent(t *testing.T) {
	for _, selection := range []string{"9", "0", "Trabzon"} {
		t.Run(selection, func(t *testing.T) {
			out, _, err := execute(t, "", "--data-dir", dataDir, "local", selection)
			assert.NoError(t, err)
			assert.Empty(t, out)
		})
	}

	t.Run("empty input", func(t *testing.T) {
		out, _, err := execute(t, "", "--data-dir", dataDir, "local")
		assert.NoError(t, err)
		assert.NotContains(t, out, "AKP")
	})
}

func TestSimulate(t *testing.T) {
	out, _, err := execute(t, "",
		"--data-dir", dataDir, "--seed", "11", "--format", "json",
		"simulate", "--runs", "300", "--workers", "3")
	require.NoError(t, err)

	rep := decodeReport(t, out)
	for _, tr := range rep.Tables {
		require.NotNil(t, tr.Simulation, tr.Name)
		assert.Equal(t, 300, tr.Simulation.Runs)

		var mean, win float64
		for _, s := range tr.Simulation.Stats {
			mean += s.Mean
			win += s.WinProbability
		}
		assert.InDelta(t, 100, mean, 1e-6)
		assert.InDelta(t, 1, win, 1e-9)
	}
}

func TestSimulate_Regions(t *testing.T) {
	_, _, err := execute(t, "", "--data-dir", dataDir, "simulate", "--scenario", "local2024")
	assert.ErrorIs(t, err, application.ErrRegionRequired)

	_, _, err = execute(t, "", "--data-dir", dataDir, "simulate", "--scenario", "local2024", "--region", "Trabzon")
	assert.ErrorIs(t, err, ports.ErrUnknownRegion)

	out, _, err := execute(t, "",
		"--data-dir", dataDir, "--seed", "2",
		"simulate", "--scenario", "local2024", "--region", "İzmir", "--runs", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "Izmir\n")
	assert.Contains(t, out, "city simulation (100 runs)")
}

func TestSimulate_UnknownScenario(t *testing.T) {
	_, _, err := execute(t, "", "simulate", "--scenario", "general1999")
	assert.ErrorIs(t, err, ports.ErrConfigNotFound)
}

func TestScenarios(t *testing.T) {
	out, _, err := execute(t, "", "scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "general2018")
	assert.Contains(t, out, "local2024")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	data, err := application.EmbeddedScenario(application.ScenarioGeneral2018)
	require.NoError(t, err)
	good := filepath.Join(dir, "general.yaml")
	require.NoError(t, os.WriteFile(good, data, 0o600))

	out, _, err := execute(t, "", "validate", good)
	require.NoError(t, err)
	assert.Equal(t, good+": ok (2 tables, 0 regions, 8 units)\n", out)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: one\n"), 0o600))
	_, _, err = execute(t, "", "validate", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)

	_, _, err = execute(t, "", "validate", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ballot.prom")

	_, _, err := execute(t, "", "--data-dir", dataDir, "--seed", "1", "--metrics-file", path, "general")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ballot_unit_duration_seconds")
	assert.Contains(t, string(data), "ballot_table_state")
}

func TestLogLevel(t *testing.T) {
	_, stderr, err := execute(t, "", "--data-dir", dataDir, "--seed", "1", "--log-level", "debug", "general")
	require.NoError(t, err)
	assert.Contains(t, stderr, "scenario built")

	_, stderr, err = execute(t, "", "--data-dir", dataDir, "--seed", "1", "general")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestFlagErrors(t *testing.T) {
	_, _, err := execute(t, "", "--format", "xml", "general")
	assert.Error(t, err)

	_, _, err = execute(t, "", "--log-level", "loud", "general")
	assert.Error(t, err)
}
