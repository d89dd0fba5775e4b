// Package pipeline chains the four planning stages over one immutable
// snapshot: frequencies, weekly schedule, daily routing, agent bundling.
// Subproblems within a stage run on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fieldplan/internal/assign"
	"fieldplan/internal/config"
	"fieldplan/internal/frequency"
	"fieldplan/internal/model"
	"fieldplan/internal/routing"
	"fieldplan/internal/schedule"
	"fieldplan/internal/travel"
)

// capacitySlack is the initial headroom over the weekly budget granted to
// the vehicle capacity in 1-to-1 mode.
const capacitySlack = 1.09

// maxCapacityRetries bounds the 1-to-1 capacity recovery loop.
const maxCapacityRetries = 10

// Stage selects how far the pipeline runs; partial runs serve the
// stage-scoped subcommands.
type Stage int

const (
	StageAll Stage = iota
	StageFrequencies
	StageSchedule
	StageRoutes
)

// Flags are the per-run switches set on the command line.
type Flags struct {
	Stage              Stage
	OneToOne           bool
	StandardizePartner bool
	Split              bool
	VisitAll           bool
	ServiceTimeMin     int // global service-time override, minutes, 0 keeps input values
	Workers            int
}

// Plan is the collected output of one run.
type Plan struct {
	Snapshot    *model.Snapshot // population after A/B rewriting
	Frequencies []model.Frequency
	Assignments []model.Assignment
	Groups      []model.Group
	Routes      []model.Route
	Agents      []model.Agent
	Peaks       map[string]int // branch -> schedule peak
	Diags       []model.Diagnostic
}

// Run executes the full pipeline. Infeasible subproblems do not stop the
// others; their errors are aggregated and returned at the end.
func Run(ctx context.Context, snap *model.Snapshot, matrices travel.Set, params config.Params, flags Flags) (*Plan, error) {
	if flags.Workers <= 0 {
		flags.Workers = runtime.NumCPU()
	}
	plan := &Plan{Peaks: make(map[string]int)}

	applyServiceOverride(snap, flags.ServiceTimeMin)

	freqRes, err := frequency.Compute(snap, frequency.Options{
		GlobalReposition:   params.RepositionLevel,
		Flex:               params.Flex,
		StandardizePartner: flags.StandardizePartner,
		Split:              flags.Split,
		SplitFactor:        params.SplitFactor,
		SplitGap:           params.SplitGap(),
	})
	if err != nil {
		return nil, err
	}
	plan.Snapshot = freqRes.Snapshot
	plan.Frequencies = freqRes.Frequencies
	plan.Diags = append(plan.Diags, freqRes.Diags...)

	if flags.VisitAll {
		sweepVisits(plan, params.SweepVisitMin*60)
	}
	if flags.Stage == StageFrequencies {
		return plan, nil
	}

	if err := runSchedule(ctx, plan, params, flags); err != nil {
		return nil, err
	}
	if flags.Stage == StageSchedule {
		return plan, nil
	}

	if err := runRouting(ctx, plan, matrices, params, flags); err != nil {
		return nil, err
	}
	if flags.Stage == StageRoutes {
		return plan, nil
	}

	if !flags.OneToOne {
		agents, diags := assign.Match(plan.Routes, plan.Snapshot.Branches, assign.Options{
			WeeklyBudget: params.WeeklyBudget(),
			WeekDays:     params.WeeklyDays,
		})
		plan.Agents = agents
		plan.Diags = append(plan.Diags, diags...)
	}
	return plan, nil
}

// applyServiceOverride replaces every asset service time when the override
// is set.
func applyServiceOverride(snap *model.Snapshot, minutes int) {
	if minutes <= 0 {
		return
	}
	for i := range snap.Assets {
		snap.Assets[i].ServiceTime = minutes * 60
	}
}

// sweepVisits lifts zero-frequency assets to one short check visit per week
// so every machine is seen.
func sweepVisits(plan *Plan, sweepSeconds int) {
	type key struct {
		Branch  string
		Partner model.Code
		Asset   model.Code
	}
	lifted := make(map[key]bool)
	for i := range plan.Frequencies {
		f := &plan.Frequencies[i]
		if f.Final == 0 {
			f.Final = 1
			lifted[key{f.Branch, f.Partner, f.Asset}] = true
		}
	}
	if len(lifted) == 0 {
		return
	}
	for i := range plan.Snapshot.Assets {
		a := &plan.Snapshot.Assets[i]
		if lifted[key{a.Branch, a.Partner, a.Code}] {
			a.ServiceTime = sweepSeconds
		}
	}
	log.Info().Int("assets", len(lifted)).Msg("Swept zero-frequency assets into weekly check visits")
}

// runSchedule solves the per-branch weekly schedules in parallel.
func runSchedule(ctx context.Context, plan *Plan, params config.Params, flags Flags) error {
	instances := schedule.BuildInstances(plan.Snapshot, plan.Frequencies, params.WeeklyDays)
	results := make([]*schedule.Result, len(instances))
	errs := make([]error, len(instances))
	limit := time.Duration(params.SolverTimeLimitSec) * time.Second

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flags.Workers)
	for i := range instances {
		i := i
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, limit)
			defer cancel()
			results[i], errs[i] = instances[i].Solve(sctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed []error
	for i, res := range results {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		plan.Assignments = append(plan.Assignments, res.Assignments...)
		plan.Diags = append(plan.Diags, res.Diags...)
		plan.Peaks[res.Branch] = res.Peak
	}
	sortAssignments(plan.Assignments)
	return errors.Join(failed...)
}

// runRouting solves the daily subproblems. In 1-to-1 mode the capacity
// dimension carries weekly demand and overruns trigger the shrink-and-retry
// loop.
func runRouting(ctx context.Context, plan *Plan, matrices travel.Set, params config.Params, flags Flags) error {
	groups, err := routing.BuildGroups(plan.Snapshot, plan.Assignments)
	if err != nil {
		return err
	}
	plan.Groups = groups

	opts := routing.Options{
		RouteCost:       routing.DefaultRouteCost,
		ModalityMargin:  params.ModalityMargin,
		SaturdayCap:     params.SaturdayCap(),
		WalkingBaseCost: params.WalkingBaseCost,
		Tiers:           routingTiers(params),
	}

	if !flags.OneToOne {
		routes, diags, err := solveDay(ctx, plan, groups, matrices, params, flags, opts)
		plan.Routes = routes
		plan.Diags = append(plan.Diags, diags...)
		return err
	}

	budget := params.WeeklyBudget()
	vehicleCap := int(math.Ceil(float64(budget) * capacitySlack))
	pct := params.TravelPercentile
	opts.WeekDemand = true

	for attempt := 1; attempt <= maxCapacityRetries; attempt++ {
		opts.VehicleCap = vehicleCap
		inflated := inflateDemand(groups, matrices, pct)
		routes, diags, err := solveDay(ctx, plan, inflated, matrices, params, flags, opts)
		if err != nil {
			return err
		}

		agents, adiags := assign.Match(routes, plan.Snapshot.Branches, assign.Options{OneToOne: true})
		over := weeklyOverrun(routes, inflated, budget)
		if over <= 0 {
			plan.Routes = routes
			plan.Agents = agents
			plan.Diags = append(plan.Diags, diags...)
			plan.Diags = append(plan.Diags, adiags...)
			if attempt > 1 {
				log.Info().Int("attempt", attempt).Msg("Capacity retry loop converged")
			}
			return nil
		}

		log.Warn().
			Int("attempt", attempt).
			Int("overrun_s", over).
			Int("vehicle_cap_s", vehicleCap).
			Int("percentile", pct).
			Msg("Weekly capacity exceeded, shrinking capacity and retrying")
		vehicleCap = int(float64(vehicleCap) * 0.95)
		if pct < 100 {
			pct += 5
			if pct > 100 {
				pct = 100
			}
		}
	}
	return &routing.SolveError{
		Branch: "", Day: -1, Supervisor: "",
		Err: errors.New("capacity retry loop did not converge"),
	}
}

// solveDay fans the (branch, supervisor, day) subproblems over the worker
// pool and collects routes in canonical order.
func solveDay(ctx context.Context, plan *Plan, groups []model.Group, matrices travel.Set, params config.Params, flags Flags, opts routing.Options) ([]model.Route, []model.Diagnostic, error) {
	subs, err := routing.BuildSubproblems(groups, plan.Snapshot.Branches, matrices, opts)
	if err != nil {
		return nil, nil, err
	}
	results := make([]*routing.Result, len(subs))
	errs := make([]error, len(subs))
	limit := time.Duration(params.SolverTimeLimitSec) * time.Second

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flags.Workers)
	for i := range subs {
		i := i
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, limit)
			defer cancel()
			results[i], errs[i] = subs[i].Solve(sctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var routes []model.Route
	var diags []model.Diagnostic
	var failed []error
	for i, res := range results {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		routes = append(routes, res.Routes...)
		diags = append(diags, res.Diags...)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Name < routes[j].Name })
	return routes, diags, errors.Join(failed...)
}

// inflateDemand adds a per-visit travel allowance at the given percentile
// to each group's weekly demand.
func inflateDemand(groups []model.Group, matrices travel.Set, pct int) []model.Group {
	out := make([]model.Group, len(groups))
	copy(out, groups)
	for i := range out {
		m, ok := matrices.Driving[out[i].Branch]
		if !ok {
			continue
		}
		out[i].WeekDemand += out[i].WeekVisits * m.InboundDurationPercentile(out[i].PointID, pct)
	}
	return out
}

// weeklyOverrun returns the largest excess of a route's weekly demand over
// the budget, zero when all fit. Group IDs repeat across branches, so the
// lookup carries the branch.
func weeklyOverrun(routes []model.Route, groups []model.Group, budget int) int {
	type key struct {
		Branch string
		ID     string
	}
	demand := make(map[key]int, len(groups))
	for _, g := range groups {
		demand[key{g.Branch, g.ID}] = g.WeekDemand
	}
	worst := 0
	for _, r := range routes {
		seen := make(map[string]bool)
		total := 0
		for _, v := range r.Visits {
			if !seen[v.Group] {
				seen[v.Group] = true
				total += demand[key{r.Branch, v.Group}]
			}
		}
		if total-budget > worst {
			worst = total - budget
		}
	}
	return worst
}

// routingTiers converts the configured scale tiers for the router.
func routingTiers(params config.Params) []routing.Tier {
	cfgTiers := params.TiersAscending()
	tiers := make([]routing.Tier, 0, len(cfgTiers))
	for _, t := range cfgTiers {
		tiers = append(tiers, routing.Tier{Name: t.Name, Seconds: t.Seconds})
	}
	return tiers
}

func sortAssignments(assignments []model.Assignment) {
	sort.Slice(assignments, func(i, j int) bool {
		a, b := assignments[i], assignments[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if a.Partner.String() != b.Partner.String() {
			return a.Partner.String() < b.Partner.String()
		}
		return a.Asset.String() < b.Asset.String()
	})
}
