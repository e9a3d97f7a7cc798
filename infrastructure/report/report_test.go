package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-ballot/internal/domain"
)

func sampleReport() domain.Report {
	electorate := domain.NewElectorate(85279553, 75.27)
	return domain.Report{
		Scenario: "general2018",
		Seed:     42,
		Tables: []domain.TableReport{
			{
				Name: "parties",
				Snapshot: &domain.Snapshot{
					Table:  "parties",
					Group:  domain.Group{Name: "parties", Ceiling: 95},
					Shares: []domain.Share{{Entity: "AKP", Percent: 41.25}, {Entity: "CHP", Percent: 25.5}},
					Other:  33.25,
					Scale:  1,
				},
				Alliances: []domain.AllianceShare{{Name: "Cumhur", Members: []string{"AKP", "MHP"}, Percent: 48.1}},
				Seats: []domain.SeatAllocation{
					{Entity: "AKP", Percent: 41.25, Seats: 340, Eligible: true},
					{Entity: "SP", Percent: 2, Eligible: false},
				},
			},
			{
				Name: "candidates",
				Snapshot: &domain.Snapshot{
					Table:  "candidates",
					Group:  domain.Group{Name: "candidates", Ceiling: 100},
					Shares: []domain.Share{{Entity: "Erdogan", Percent: 52.5}, {Entity: "Ince", Percent: 47.5}},
					Scale:  0.9,
					Scaled: true,
				},
			},
		},
		Electorate: &electorate,
	}
}

func TestNewRenderer(t *testing.T) {
	for _, f := range []Format{FormatText, FormatTable, FormatJSON} {
		_, err := NewRenderer(f)
		assert.NoError(t, err, f)
	}

	_, err := NewRenderer("xml")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestRenderer_Text(t *testing.T) {
	r, err := NewRenderer(FormatText)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "AKP: %41.25\n")
	assert.Contains(t, out, "CHP: %25.50\n")
	assert.Contains(t, out, "Diger: %33.25\n")
	assert.Contains(t, out, "Cumhur: %48.10\n")
	assert.Contains(t, out, "AKP: 340 MV\n")
	assert.Contains(t, out, "SP: 0 MV (below threshold)\n")
	assert.Contains(t, out, "Erdogan: %52.50\n")
	assert.Contains(t, out, "Expected voters: 64,189,919\n")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Diger")),
		"a group normalized to 100 has no residual line")
}

func TestRenderer_TextOtherLabel(t *testing.T) {
	r, err := NewRenderer(FormatText, WithOtherLabel("Other"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleReport()))
	assert.Contains(t, buf.String(), "Other: %33.25")
	assert.NotContains(t, buf.String(), "Diger")
}

func TestRenderer_TextRegionAndSimulation(t *testing.T) {
	r, err := NewRenderer(FormatText)
	require.NoError(t, err)

	rep := domain.Report{
		Scenario: "local2024",
		Region:   "Istanbul",
		Tables: []domain.TableReport{{
			Name: "istanbul",
			Simulation: &domain.SimulationSummary{
				Table: "istanbul",
				Runs:  10000,
				Stats: []domain.EntityStats{{Entity: "CHP", Mean: 48.2, StdDev: 1.5, WinProbability: 0.87}},
			},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, rep))
	assert.Contains(t, buf.String(), "Istanbul\n")
	assert.Contains(t, buf.String(), "istanbul simulation (10,000 runs)")
	assert.Contains(t, buf.String(), "CHP: %48.20 ±1.50, win %87.0")
}

func TestRenderer_Table(t *testing.T) {
	r, err := NewRenderer(FormatTable)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "parties")
	assert.Contains(t, out, "41.25%")
	assert.Contains(t, out, "33.25%")
	assert.Contains(t, out, "candidates (scaled x0.9000)")
	assert.Contains(t, out, "AKP+MHP")
	assert.Contains(t, out, "340")
	assert.Contains(t, out, "64,189,919")
}

func TestRenderer_JSON(t *testing.T) {
	r, err := NewRenderer(FormatJSON)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleReport()))

	var got domain.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "general2018", got.Scenario)
	require.Len(t, got.Tables, 2)
	require.NotNil(t, got.Tables[0].Snapshot)
	assert.Equal(t, 33.25, got.Tables[0].Snapshot.Other)
	assert.Equal(t, int64(64189919), got.Electorate.Voters)
}
