// Package report renders scenario results as text, tables or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ahrav/go-ballot/internal/domain"
)

// Format selects the output representation.
type Format string

// Supported output formats.
const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// DefaultOtherLabel is printed for the share not attributed to any entity.
const DefaultOtherLabel = "Diger"

// Renderer writes reports to an io.Writer.
type Renderer struct {
	format     Format
	otherLabel string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithOtherLabel overrides the label of the residual share.
func WithOtherLabel(label string) Option {
	return func(r *Renderer) {
		if label != "" {
			r.otherLabel = label
		}
	}
}

// NewRenderer returns a renderer for format.
func NewRenderer(format Format, opts ...Option) (*Renderer, error) {
	switch format {
	case FormatText, FormatTable, FormatJSON:
	default:
		return nil, fmt.Errorf("%w: output format %q", domain.ErrInvalidConfiguration, format)
	}

	r := &Renderer{format: format, otherLabel: DefaultOtherLabel}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Render writes rep to w.
func (r *Renderer) Render(w io.Writer, rep domain.Report) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatTable:
		return r.renderTables(w, rep)
	default:
		return r.renderText(w, rep)
	}
}

// renderText prints one percentage line per entity, the residual share and
// any derived results.
func (r *Renderer) renderText(w io.Writer, rep domain.Report) error {
	var b strings.Builder

	if rep.Region != "" {
		fmt.Fprintf(&b, "%s\n", rep.Region)
	}
	for _, tr := range rep.Tables {
		if tr.Snapshot != nil {
			for _, s := range tr.Snapshot.Shares {
				fmt.Fprintf(&b, "%s: %%%.2f\n", s.Entity, s.Percent)
			}
			if tr.Snapshot.Group.Ceiling < 100 || tr.Snapshot.Other > 0.005 {
				fmt.Fprintf(&b, "%s: %%%.2f\n", r.otherLabel, tr.Snapshot.Other)
			}
		}
		for _, a := range tr.Alliances {
			fmt.Fprintf(&b, "%s: %%%.2f\n", a.Name, a.Percent)
		}
		for _, s := range tr.Seats {
			if s.Eligible {
				fmt.Fprintf(&b, "%s: %d MV\n", s.Entity, s.Seats)
			} else {
				fmt.Fprintf(&b, "%s: 0 MV (below threshold)\n", s.Entity)
			}
		}
		if sim := tr.Simulation; sim != nil {
			fmt.Fprintf(&b, "%s simulation (%s runs)\n", tr.Name, humanize.Comma(int64(sim.Runs)))
			for _, s := range sim.Stats {
				fmt.Fprintf(&b, "%s: %%%.2f ±%.2f, win %%%.1f\n", s.Entity, s.Mean, s.StdDev, s.WinProbability*100)
			}
		}
		b.WriteByte('\n')
	}
	if e := rep.Electorate; e != nil {
		fmt.Fprintf(&b, "Expected voters: %s\n", humanize.Comma(e.Voters))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderTables(w io.Writer, rep domain.Report) error {
	var out []string

	for _, tr := range rep.Tables {
		if tr.Snapshot != nil {
			out = append(out, r.snapshotTable(tr))
		}
		if len(tr.Alliances) > 0 {
			tw := newTable(tr.Name+" alliances", table.Row{"Alliance", "Members", "Percent"})
			for _, a := range tr.Alliances {
				tw.AppendRow(table.Row{a.Name, strings.Join(a.Members, "+"), percent(a.Percent)})
			}
			out = append(out, tw.Render())
		}
		if len(tr.Seats) > 0 {
			tw := newTable(tr.Name+" seats", table.Row{"Entity", "Percent", "Seats"})
			total := 0
			for _, s := range tr.Seats {
				tw.AppendRow(table.Row{s.Entity, percent(s.Percent), s.Seats})
				total += s.Seats
			}
			tw.AppendFooter(table.Row{"Total", "", total})
			out = append(out, tw.Render())
		}
		if sim := tr.Simulation; sim != nil {
			title := fmt.Sprintf("%s simulation, %s runs", tr.Name, humanize.Comma(int64(sim.Runs)))
			tw := newTable(title, table.Row{"Entity", "Mean", "StdDev", "Win"})
			for _, s := range sim.Stats {
				tw.AppendRow(table.Row{s.Entity, percent(s.Mean), fmt.Sprintf("%.2f", s.StdDev), percent(s.WinProbability * 100)})
			}
			out = append(out, tw.Render())
		}
	}
	if e := rep.Electorate; e != nil {
		out = append(out, fmt.Sprintf("Expected voters: %s", humanize.Comma(e.Voters)))
	}

	_, err := io.WriteString(w, strings.Join(out, "\n\n")+"\n")
	return err
}

func (r *Renderer) snapshotTable(tr domain.TableReport) string {
	title := tr.Name
	if tr.Snapshot.Scaled {
		title = fmt.Sprintf("%s (scaled x%.4f)", tr.Name, tr.Snapshot.Scale)
	}
	tw := newTable(title, table.Row{"Entity", "Percent"})
	for _, s := range tr.Snapshot.Shares {
		tw.AppendRow(table.Row{s.Entity, percent(s.Percent)})
	}
	tw.AppendFooter(table.Row{r.otherLabel, percent(tr.Snapshot.Other)})
	return tw.Render()
}

func newTable(title string, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle(title)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(header)-1)
	for i := 2; i <= len(header); i++ {
		configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}
