// Package testutils holds fixtures and test doubles shared by the package
// tests of go-ballot.
package testutils

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-ballot/internal/domain"
)

// Party and candidate names used by the general election fixtures.
var (
	Parties     = []string{"AKP", "CHP", "IYI", "HDP", "MHP", "SP"}
	Candidates  = []string{"Erdogan", "Ince", "Aksener", "Demirtas", "Karamollaoglu", "Perincek"}
	CityParties = []string{"AKP", "CHP", "IYI", "YRP", "ZP", "DEM"}
)

// PartyPolls is a 6 x 10 party table in series order.
var PartyPolls = map[string]domain.Series{
	"AKP": {42.1, 41.5, 43.0, 40.8, 42.6, 41.9, 43.4, 42.2, 41.0, 42.8},
	"CHP": {25.3, 26.1, 24.8, 25.9, 26.4, 25.0, 24.6, 25.7, 26.0, 25.2},
	"IYI": {10.2, 9.8, 11.1, 10.5, 9.6, 10.9, 10.0, 11.3, 10.7, 9.9},
	"HDP": {10.6, 11.2, 10.1, 11.5, 10.8, 10.3, 11.0, 10.4, 11.7, 10.9},
	"MHP": {7.1, 6.8, 7.5, 6.4, 7.2, 6.9, 7.8, 6.6, 7.0, 7.4},
	"SP":  {2.5, 2.2, 2.8, 2.1, 2.6, 2.4, 2.9, 2.3, 2.7, 2.0},
}

// CandidatePolls is a 6 x 10 candidate table in series order.
var CandidatePolls = map[string]domain.Series{
	"Erdogan":       {51.2, 49.8, 52.4, 50.6, 48.9, 51.7, 50.1, 52.9, 49.4, 51.0},
	"Ince":          {28.4, 29.6, 27.8, 30.1, 29.0, 28.2, 30.5, 27.4, 29.9, 28.8},
	"Aksener":       {9.1, 8.6, 9.8, 8.2, 9.4, 8.9, 9.6, 8.4, 9.2, 8.7},
	"Demirtas":      {8.3, 8.9, 7.9, 8.6, 9.1, 8.0, 8.8, 8.2, 8.5, 9.0},
	"Karamollaoglu": {1.6, 1.9, 1.4, 1.8, 2.0, 1.5, 1.7, 1.9, 1.3, 1.6},
	"Perincek":      {0.4, 0.3, 0.5, 0.2, 0.6, 0.4, 0.3, 0.5, 0.2, 0.4},
}

// PartyTable returns the party fixture as a PollTable.
func PartyTable() *domain.PollTable {
	return mustTable("parties", Parties, PartyPolls)
}

// CandidateTable returns the candidate fixture as a PollTable.
func CandidateTable() *domain.PollTable {
	return mustTable("candidates", Candidates, CandidatePolls)
}

// ConstantTable returns a table where every entity always polls the given
// value, which makes sampled values predictable.
func ConstantTable(name string, values map[string]float64, entities []string, length int) *domain.PollTable {
	series := make(map[string]domain.Series, len(entities))
	for _, e := range entities {
		s := make(domain.Series, length)
		for i := range s {
			s[i] = values[e]
		}
		series[e] = s
	}
	return mustTable(name, entities, series)
}

// Sample builds a sample from alternating entity names and values.
func Sample(table string, pairs ...any) domain.Sample {
	if len(pairs)%2 != 0 {
		panic("testutils.Sample: odd number of arguments")
	}
	s := domain.Sample{Table: table}
	for i := 0; i < len(pairs); i += 2 {
		s.Shares = append(s.Shares, domain.Share{
			Entity:  pairs[i].(string),
			Percent: toFloat(pairs[i+1]),
		})
		s.Indices = append(s.Indices, 0)
	}
	return s
}

// SeriesText renders series in series layout: every entity's values on
// one line, in entity order.
func SeriesText(entities []string, series map[string]domain.Series) string {
	var b strings.Builder
	for _, e := range entities {
		for i, v := range series[e] {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%g", v)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// RowsText renders series in rows layout: one poll per line, one column
// per entity.
func RowsText(entities []string, series map[string]domain.Series) string {
	var b strings.Builder
	if len(entities) == 0 {
		return ""
	}
	for r := range series[entities[0]] {
		for j, e := range entities {
			if j > 0 {
				b.WriteByte('\t')
			}
			fmt.Fprintf(&b, "%g", series[e][r])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		panic(fmt.Sprintf("testutils: unsupported value %T", v))
	}
}

func mustTable(name string, entities []string, series map[string]domain.Series) *domain.PollTable {
	t, err := domain.NewPollTable(name, entities, series)
	if err != nil {
		panic(err)
	}
	return t
}
