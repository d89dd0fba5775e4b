package emit

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"fieldplan/internal/model"
	"fieldplan/internal/pipeline"
)

// WriteSummary renders a per-branch markdown digest of the run: schedule
// peaks, route and agent counts, modality mix, total hours.
func WriteSummary(w io.Writer, plan *pipeline.Plan) error {
	type row struct {
		routes, agents, walking int
		hours                   float64
		fte                     float64
	}
	byBranch := make(map[string]*row)
	branches := make([]string, 0)
	get := func(b string) *row {
		r, ok := byBranch[b]
		if !ok {
			r = &row{}
			byBranch[b] = r
			branches = append(branches, b)
		}
		return r
	}
	for _, r := range plan.Routes {
		br := get(r.Branch)
		br.routes++
		br.hours += float64(r.Total()) / 3600
		if r.Modality == model.Walking {
			br.walking++
		}
	}
	for _, a := range plan.Agents {
		br := get(a.Branch)
		br.agents++
		br.fte += a.FTE
	}
	sort.Strings(branches)

	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"branch", "peak/day", "routes", "walking", "agents", "hours", "fte"})
	for _, b := range branches {
		r := byBranch[b]
		table.Append([]string{
			b,
			strconv.Itoa(plan.Peaks[b]),
			strconv.Itoa(r.routes),
			strconv.Itoa(r.walking),
			strconv.Itoa(r.agents),
			fmt.Sprintf("%.1f", r.hours),
			fmt.Sprintf("%.2f", r.fte),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	if warns := countDiags(plan.Diags, model.DiagWarn); warns > 0 {
		fmt.Fprintf(w, "\n%d warnings\n", warns)
	}
	return nil
}

// WriteDiagnostics renders the diagnostic list as a markdown table.
func WriteDiagnostics(w io.Writer, diags []model.Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"level", "stage", "branch", "day", "partner", "asset", "message"})
	for _, d := range diags {
		day := ""
		if d.Day >= 0 {
			day = strconv.Itoa(d.Day + 1)
		}
		table.Append([]string{string(d.Level), d.Stage, d.Branch, day, d.Partner, d.Asset, d.Message})
	}
	return table.Render()
}

func countDiags(diags []model.Diagnostic, level model.DiagLevel) int {
	n := 0
	for _, d := range diags {
		if d.Level == level {
			n++
		}
	}
	return n
}
