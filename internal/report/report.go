// Package report renders a scoring table as fixed-width text.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/okian/matchbench/internal/domain/scoring"
)

const (
	defaultPrecision = 4
	defaultMapWidth  = 15
	rule             = "-------------------------------------------------------------------------------------"
	blank            = "-"
)

// Printer writes the benchmark report.
type Printer struct {
	precision int
	mapWidth  int
}

// New creates a printer.
func New(opts ...Option) *Printer {
	p := &Printer{
		precision: defaultPrecision,
		mapWidth:  defaultMapWidth,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Print writes the legend, one win-rate matrix per map, the overall matrix,
// the per-competitor overall rates and the failure count.
//
// Rows are challengers and columns their opponents; in a gauntlet the
// columns are the references only. Cells that were never played print "-".
func (p *Printer) Print(w io.Writer, t scoring.Table) error { //nolint:gocritic // hugeParam: Table is a read-only snapshot
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	rows, cols := p.axes(t)

	fmt.Fprintln(tw, "COMPETITORS")
	fmt.Fprintln(tw, "Id\tRoster\tName\tParams")
	for i, e := range t.Entrants {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, e.Roster, e.Name, e.JoinedParams())
	}

	for m, name := range t.Maps {
		fmt.Fprintf(tw, "\n%s\nWIN RATES ON MAP %s\n", rule, p.mapName(name))
		p.header(tw, cols)
		for _, i := range rows {
			fmt.Fprintf(tw, "%d", i)
			for _, j := range cols {
				fmt.Fprintf(tw, "\t%s", p.cell(t.Rates[i][j][m], t.Played[i][j][m]))
			}
			fmt.Fprintf(tw, "\t%s\n", p.rate(t.MapMeans[i][m]))
		}
	}

	fmt.Fprintf(tw, "\n%s\nOVERALL WIN RATES\n", rule)
	p.header(tw, cols)
	for _, i := range rows {
		fmt.Fprintf(tw, "%d", i)
		for _, j := range cols {
			fmt.Fprintf(tw, "\t%s", p.cell(t.PairMeans[i][j], playedAny(t.Played[i][j])))
		}
		fmt.Fprintf(tw, "\t%s\n", p.rate(t.Overall[i]))
	}

	fmt.Fprintf(tw, "\n%s\nOVERALL WIN RATE PER COMPETITOR\n", rule)
	fmt.Fprintln(tw, "Id\tName\twinrate")
	var sum float64
	for _, i := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, t.Entrants[i].Name, p.rate(t.Overall[i]))
		sum += t.Overall[i]
	}
	if len(rows) > 0 {
		fmt.Fprintf(tw, "mean\t\t%s\n", p.rate(sum/float64(len(rows))))
	}

	fmt.Fprintf(tw, "\n%s\n", rule)
	fmt.Fprintf(tw, "matches recorded: %d, failed: %d\n", t.Recorded, t.Failures)

	return tw.Flush()
}

// axes returns the row and column indices of the matrices.
func (p *Printer) axes(t scoring.Table) (rows, cols []int) { //nolint:gocritic // hugeParam: Table is a read-only snapshot
	n := len(t.Entrants)
	challengers := t.Challenger
	if challengers <= 0 || challengers > n {
		challengers = n
	}
	for i := 0; i < challengers; i++ {
		rows = append(rows, i)
	}
	first := 0
	if challengers < n {
		first = challengers
	}
	for j := first; j < n; j++ {
		cols = append(cols, j)
	}
	return rows, cols
}

func (p *Printer) header(w io.Writer, cols []int) {
	var b strings.Builder
	b.WriteString("vs")
	for _, j := range cols {
		b.WriteString("\t")
		b.WriteString(strconv.Itoa(j))
	}
	b.WriteString("\tmean\n")
	_, _ = io.WriteString(w, b.String())
}

func (p *Printer) mapName(name string) string {
	if len(name) > p.mapWidth {
		return name[:p.mapWidth]
	}
	return name
}

func (p *Printer) cell(v float64, played bool) string {
	if !played {
		return blank
	}
	return p.rate(v)
}

func (p *Printer) rate(v float64) string {
	return strconv.FormatFloat(v, 'f', p.precision, 64)
}

func playedAny(played []bool) bool {
	for _, ok := range played {
		if ok {
			return true
		}
	}
	return false
}
