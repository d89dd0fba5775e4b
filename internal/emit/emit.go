// Package emit writes the planning outputs: one CSV per output table and a
// human summary rendered with tablewriter.
package emit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"fieldplan/internal/model"
	"fieldplan/internal/pipeline"
)

// Output file names under the output directory.
const (
	FrequenciesFile  = "frequencies.csv"
	ScheduleFile     = "schedule.csv"
	RouteBookFile    = "route_book.csv"
	RouteSummaryFile = "route_summary.csv"
	AgentRoutesFile  = "agent_routes.csv"
	AgentAssetsFile  = "agent_assets.csv"
)

var dayNames = [...]string{"mon", "tue", "wed", "thu", "fri", "sat"}

// WriteAll emits every output table of the plan into dir.
func WriteAll(dir string, plan *pipeline.Plan, weekDays int) error {
	if err := WriteFrequencies(dir, plan); err != nil {
		return err
	}
	if err := WriteSchedule(dir, plan, weekDays); err != nil {
		return err
	}
	if err := WriteRoutes(dir, plan); err != nil {
		return err
	}
	if err := WriteAgents(dir, plan, weekDays); err != nil {
		return err
	}
	log.Info().Str("dir", dir).Msg("Plan written")
	return nil
}

// WriteFrequencies emits the per-asset frequency table.
func WriteFrequencies(dir string, plan *pipeline.Plan) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return writeCSV(filepath.Join(dir, FrequenciesFile), plan, 0, writeFrequencies)
}

// WriteSchedule emits the weekday-flag table of the weekly schedule.
func WriteSchedule(dir string, plan *pipeline.Plan, weekDays int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return writeCSV(filepath.Join(dir, ScheduleFile), plan, weekDays, writeSchedule)
}

// WriteRoutes emits the ordered route book and the per-route summary.
func WriteRoutes(dir string, plan *pipeline.Plan) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := writeCSV(filepath.Join(dir, RouteBookFile), plan, 0, writeRouteBook); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, RouteSummaryFile), plan, 0, writeRouteSummary)
}

// WriteAgents emits both agent allocations: routes per weekday and visited
// assets per weekday.
func WriteAgents(dir string, plan *pipeline.Plan, weekDays int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := writeCSV(filepath.Join(dir, AgentRoutesFile), plan, weekDays, writeAgentRoutes); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, AgentAssetsFile), plan, weekDays, writeAgentAssets)
}

func writeCSV(path string, plan *pipeline.Plan, weekDays int, fn func(*csv.Writer, *pipeline.Plan, int) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := fn(w, plan, weekDays); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

func writeFrequencies(w *csv.Writer, plan *pipeline.Plan, _ int) error {
	if err := w.Write([]string{"branch", "partner", "asset", "current", "min", "reposition", "final"}); err != nil {
		return err
	}
	for _, f := range plan.Frequencies {
		rec := []string{
			f.Branch, f.Partner.String(), f.Asset.String(),
			strconv.Itoa(f.Current), strconv.Itoa(f.Min),
			strconv.Itoa(f.Reposition), strconv.Itoa(f.Final),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func dayFlags(days []int, weekDays int) []string {
	set := make(map[int]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	out := make([]string, weekDays)
	for d := 0; d < weekDays; d++ {
		if set[d] {
			out[d] = "1"
		} else {
			out[d] = "0"
		}
	}
	return out
}

func writeSchedule(w *csv.Writer, plan *pipeline.Plan, weekDays int) error {
	header := []string{"branch", "partner", "asset", "frequency"}
	header = append(header, dayNames[:weekDays]...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, a := range plan.Assignments {
		rec := []string{a.Branch, a.Partner.String(), a.Asset.String(), strconv.Itoa(a.Frequency)}
		rec = append(rec, dayFlags(a.Days, weekDays)...)
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeRouteBook(w *csv.Writer, plan *pipeline.Plan, _ int) error {
	header := []string{"branch", "day", "route", "ordinal", "partner", "asset", "distance_km", "travel_min", "service_min", "modality", "scale"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range plan.Routes {
		for _, v := range r.Visits {
			rec := []string{
				r.Branch, strconv.Itoa(r.Day + 1), r.Name, strconv.Itoa(v.Ordinal),
				v.Partner.String(), v.Asset.String(),
				km(v.DistM), minutes(v.Travel), minutes(v.Service),
				string(r.Modality), r.Tier,
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRouteSummary(w *csv.Writer, plan *pipeline.Plan, _ int) error {
	header := []string{"route", "branch", "day", "supervisor", "hours", "fte", "assets", "partners", "distance_km", "travel_min", "service_min", "entry_min", "modality", "scale"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range plan.Routes {
		partners := make(map[model.Code]bool)
		for _, v := range r.Visits {
			partners[v.Partner] = true
		}
		rec := []string{
			r.Name, r.Branch, strconv.Itoa(r.Day + 1), r.Supervisor,
			hours(r.Total()), fixed2(r.FTE),
			strconv.Itoa(len(r.AssetSet())), strconv.Itoa(len(partners)),
			km(r.DistM), minutes(r.Travel), minutes(r.Service), minutes(r.Entry),
			string(r.Modality), r.Tier,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeAgentRoutes(w *csv.Writer, plan *pipeline.Plan, weekDays int) error {
	header := []string{"agent", "branch", "supervisor", "modality", "scale", "hours", "fte"}
	header = append(header, dayNames[:weekDays]...)
	if err := w.Write(header); err != nil {
		return err
	}
	agents := sortedAgents(plan.Agents)
	for _, a := range agents {
		rec := []string{
			a.Name, a.Branch, a.Supervisor, string(a.Modality), a.Tier,
			hours(a.TierHours), fixed2(a.FTE),
		}
		for d := 0; d < weekDays; d++ {
			rec = append(rec, a.Routes[d])
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeAgentAssets(w *csv.Writer, plan *pipeline.Plan, weekDays int) error {
	header := []string{"agent", "branch", "partner", "asset"}
	header = append(header, dayNames[:weekDays]...)
	if err := w.Write(header); err != nil {
		return err
	}
	routes := make(map[string]*model.Route, len(plan.Routes))
	for i := range plan.Routes {
		routes[plan.Routes[i].Name] = &plan.Routes[i]
	}
	type key struct {
		Partner model.Code
		Asset   model.Code
	}
	for _, a := range sortedAgents(plan.Agents) {
		visited := make(map[key][]int)
		for d, name := range a.Routes {
			r, ok := routes[name]
			if !ok {
				continue
			}
			for _, v := range r.Visits {
				k := key{v.Partner, v.Asset}
				visited[k] = append(visited[k], d)
			}
		}
		keys := make([]key, 0, len(visited))
		for k := range visited {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Partner.String() != keys[j].Partner.String() {
				return keys[i].Partner.String() < keys[j].Partner.String()
			}
			return keys[i].Asset.String() < keys[j].Asset.String()
		})
		for _, k := range keys {
			rec := []string{a.Name, a.Branch, k.Partner.String(), k.Asset.String()}
			rec = append(rec, dayFlags(visited[k], weekDays)...)
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedAgents(agents []model.Agent) []model.Agent {
	out := append([]model.Agent(nil), agents...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Branch != out[j].Branch {
			return out[i].Branch < out[j].Branch
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func km(meters int) string {
	return strconv.FormatFloat(float64(meters)/1000, 'f', 2, 64)
}

func minutes(seconds int) string {
	return strconv.FormatFloat(float64(seconds)/60, 'f', 1, 64)
}

func hours(seconds int) string {
	return strconv.FormatFloat(float64(seconds)/3600, 'f', 2, 64)
}

func fixed2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
