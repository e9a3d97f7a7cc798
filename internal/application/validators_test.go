package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func paramsNode(t *testing.T, src string) yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	if doc.Kind == 0 {
		return yaml.Node{}
	}
	require.Equal(t, yaml.DocumentNode, doc.Kind)
	return *doc.Content[0]
}

func TestValidateUnitParameters(t *testing.T) {
	tests := []struct {
		name     string
		unitType string
		params   string
		wantErr  string
	}{
		{name: "sampler without parameters", unitType: "sampler", params: ""},
		{name: "sampler window", unitType: "sampler", params: "window: 5"},
		{name: "negative window", unitType: "sampler", params: "window: -1", wantErr: "window must not be negative"},
		{name: "fractional window", unitType: "sampler", params: "window: 2.5", wantErr: "window must be an integer"},
		{name: "ceiling", unitType: "ceiling_normalizer", params: "ceiling: 95\ngroup: parties"},
		{name: "ceiling above 100", unitType: "ceiling_normalizer", params: "ceiling: 120", wantErr: "ceiling must be greater than 0"},
		{name: "ceiling as string", unitType: "ceiling_normalizer", params: "ceiling: high", wantErr: "ceiling must be a number"},
		{name: "target on ceiling normalizer", unitType: "ceiling_normalizer", params: "target: 100", wantErr: `unknown parameter "target"`},
		{name: "proportional target", unitType: "proportional_normalizer", params: "target: 100\nentities: [A, B]"},
		{name: "zero target", unitType: "proportional_normalizer", params: "target: 0", wantErr: "target must be greater than 0"},
		{name: "entities not a list", unitType: "proportional_normalizer", params: "entities: A", wantErr: "entities must be a list"},
		{name: "empty group", unitType: "proportional_normalizer", params: `group: ""`, wantErr: "group must be a non-empty string"},
		{
			name:     "alliances",
			unitType: "alliance",
			params:   "alliances:\n  - name: Cumhur\n    members: [AKP, MHP]",
		},
		{name: "alliance without list", unitType: "alliance", params: "", wantErr: "requires 'alliances'"},
		{name: "alliance without name", unitType: "alliance", params: "alliances:\n  - members: [AKP]", wantErr: "requires a name"},
		{name: "alliance without members", unitType: "alliance", params: "alliances:\n  - name: X\n    members: []", wantErr: "requires members"},
		{name: "seats", unitType: "seat_allocator", params: "seats: 600\nthreshold: 7\nmethod: dhondt"},
		{name: "zero seats", unitType: "seat_allocator", params: "seats: 0", wantErr: "seats must be between"},
		{name: "unknown method", unitType: "seat_allocator", params: "method: sainte_lague", wantErr: "invalid seat method"},
		{name: "threshold out of range", unitType: "seat_allocator", params: "threshold: 101", wantErr: "threshold must be between"},
		{name: "monte carlo", unitType: "monte_carlo", params: "runs: 1000\nworkers: 8"},
		{name: "too many workers", unitType: "monte_carlo", params: "workers: 65", wantErr: "workers must be between"},
		{name: "too many runs", unitType: "monte_carlo", params: "runs: 2000000", wantErr: "runs must be between"},
		{name: "unknown type", unitType: "pollster", params: "", wantErr: "unknown unit type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUnitParameters(tt.unitType, paramsNode(t, tt.params))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReferencedEntities(t *testing.T) {
	names, err := referencedEntities("alliance", paramsNode(t,
		"alliances:\n  - name: Cumhur\n    members: [AKP, MHP]\n  - name: Millet\n    members: [CHP]"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AKP", "MHP", "CHP"}, names)

	names, err = referencedEntities("ceiling_normalizer", paramsNode(t, "entities: [AKP]"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AKP"}, names)

	names, err = referencedEntities("sampler", paramsNode(t, "window: 3"))
	require.NoError(t, err)
	assert.Empty(t, names)
}
