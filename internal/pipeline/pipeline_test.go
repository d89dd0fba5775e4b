package pipeline

import (
	"context"
	"fmt"
	"testing"

	"fieldplan/internal/config"
	"fieldplan/internal/model"
	"fieldplan/internal/travel"
)

func testParams(maxTimeHours float64) config.Params {
	p := config.DefaultParams()
	p.Branches = map[string]config.BranchParams{
		"B1": {TrafficFactor: 1, MaxTimeHours: maxTimeHours, MaxDistKM: 60},
	}
	return p
}

// flatSnapshot builds one branch with n partners, one asset each, visited
// freq times a week for service seconds per visit.
func flatSnapshot(n, freq, service int) *model.Snapshot {
	snap := &model.Snapshot{
		Branches: map[string]model.Branch{
			"B1": {Name: "B1", TrafficFactor: 1, MaxTime: 36000, MaxDist: 60000},
		},
	}
	for i := 1; i <= n; i++ {
		code := model.NewCode(fmt.Sprintf("P%d", i))
		snap.Partners = append(snap.Partners, model.Partner{
			Branch: "B1", Code: code, Open: 0, Close: 36000,
			Supervisor: "S1", FixedWeekday: model.NoFixedWeekday,
		})
		snap.Assets = append(snap.Assets, model.Asset{
			Branch: "B1", Partner: code, Code: model.NewCode(fmt.Sprintf("A%d", i)),
			ServiceTime: service, DaysPerWeek: 5,
			MinFrequency: freq, CurrentFrequency: freq,
		})
		snap.Points = append(snap.Points, model.PointRef{
			Branch: "B1", Partner: code, PointID: fmt.Sprintf("pt%d", i),
		})
	}
	return snap
}

func flatMatrix(n int) travel.Set {
	m := travel.NewMatrix("B1")
	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			if i != j {
				m.Add(fmt.Sprintf("pt%d", i), fmt.Sprintf("pt%d", j), 100, 60)
			}
		}
	}
	return travel.Set{Driving: map[string]*travel.Matrix{"B1": m}}
}

func TestRunEndToEnd(t *testing.T) {
	snap := flatSnapshot(2, 2, 3600)
	params := testParams(10)

	plan, err := Run(context.Background(), snap, flatMatrix(2), params, Flags{Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(plan.Frequencies) != 2 {
		t.Fatalf("frequencies = %d, want 2", len(plan.Frequencies))
	}
	for _, f := range plan.Frequencies {
		if f.Final != 2 {
			t.Errorf("asset %s final = %d, want 2", f.Asset, f.Final)
		}
	}

	if len(plan.Assignments) != 2 {
		t.Fatalf("assignments = %d, want 2", len(plan.Assignments))
	}
	for _, a := range plan.Assignments {
		if len(a.Days) != 2 {
			t.Errorf("asset %s has %d scheduled days, want its frequency 2", a.Asset, len(a.Days))
		}
	}
	if plan.Peaks["B1"] != 1 {
		t.Errorf("peak = %d, want 1 with four visits over five days", plan.Peaks["B1"])
	}

	// One route per visited day, every visit inside the branch caps.
	if len(plan.Routes) != 4 {
		t.Fatalf("routes = %d, want 4", len(plan.Routes))
	}
	branch := plan.Snapshot.Branches["B1"]
	for _, r := range plan.Routes {
		if r.Total() > branch.MaxTime {
			t.Errorf("route %s total %d exceeds the daily cap", r.Name, r.Total())
		}
		if r.DistM > branch.MaxDist {
			t.Errorf("route %s distance %d exceeds the cap", r.Name, r.DistM)
		}
	}

	// Every route belongs to exactly one agent weekday.
	if len(plan.Agents) == 0 {
		t.Fatal("no agents")
	}
	owned := make(map[string]int)
	for _, a := range plan.Agents {
		for d, name := range a.Routes {
			owned[name]++
			found := false
			for _, r := range plan.Routes {
				if r.Name == name && r.Day == d {
					found = true
				}
			}
			if !found {
				t.Errorf("agent %s references route %s on day %d, no such route", a.Name, name, d)
			}
		}
	}
	for _, r := range plan.Routes {
		if owned[r.Name] != 1 {
			t.Errorf("route %s owned by %d agents, want 1", r.Name, owned[r.Name])
		}
	}
}

func TestRunStageGates(t *testing.T) {
	snap := flatSnapshot(2, 2, 3600)
	params := testParams(10)

	plan, err := Run(context.Background(), snap, flatMatrix(2), params, Flags{Stage: StageFrequencies, Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(plan.Frequencies) == 0 || plan.Assignments != nil || plan.Routes != nil {
		t.Errorf("frequency stage leaked later outputs: %+v", plan)
	}

	plan, err = Run(context.Background(), snap, flatMatrix(2), params, Flags{Stage: StageSchedule, Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(plan.Assignments) == 0 || plan.Routes != nil {
		t.Errorf("schedule stage leaked routes: %+v", plan)
	}
}

func TestRunVisitAllSweep(t *testing.T) {
	snap := flatSnapshot(1, 0, 3600)
	params := testParams(10)

	plan, err := Run(context.Background(), snap, flatMatrix(1), params,
		Flags{Stage: StageFrequencies, VisitAll: true, Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plan.Frequencies[0].Final != 1 {
		t.Errorf("swept frequency = %d, want 1", plan.Frequencies[0].Final)
	}
	if got := plan.Snapshot.Assets[0].ServiceTime; got != params.SweepVisitMin*60 {
		t.Errorf("swept service time = %d, want %d", got, params.SweepVisitMin*60)
	}
}

func TestRunServiceOverride(t *testing.T) {
	snap := flatSnapshot(1, 1, 3600)
	params := testParams(10)

	plan, err := Run(context.Background(), snap, flatMatrix(1), params,
		Flags{Stage: StageFrequencies, ServiceTimeMin: 12, Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := plan.Snapshot.Assets[0].ServiceTime; got != 720 {
		t.Errorf("service time = %d, want the 12-minute override", got)
	}
}

func TestWeeklyOverrunKeyedByBranch(t *testing.T) {
	// The same partner code in two branches yields the same group ID; the
	// overrun check must not mix their demands.
	groups := []model.Group{
		{ID: "gP10G1", Branch: "B1", WeekDemand: 10000},
		{ID: "gP10G1", Branch: "B2", WeekDemand: 50000},
	}
	routes := []model.Route{
		{Name: "B1-S1-d1-r01", Branch: "B1", Visits: []model.Visit{{Group: "gP10G1"}}},
	}
	if got := weeklyOverrun(routes, groups, 40000); got != 0 {
		t.Errorf("overrun = %d, want 0 for the 10000s branch", got)
	}
	routes = append(routes, model.Route{
		Name: "B2-S1-d1-r01", Branch: "B2", Visits: []model.Visit{{Group: "gP10G1"}},
	})
	if got := weeklyOverrun(routes, groups, 40000); got != 10000 {
		t.Errorf("overrun = %d, want 10000 from the other branch", got)
	}
}

func TestRunOneToOneCapacityRetry(t *testing.T) {
	// Four partners visited daily at 2.3 hours each fit one 10-hour route,
	// but that route carries 46.3 weekly hours against a 44-hour budget. The
	// retry loop must shrink the capacity until the day splits in two.
	snap := flatSnapshot(4, 5, 8280)
	params := testParams(10)

	plan, err := Run(context.Background(), snap, flatMatrix(4), params,
		Flags{OneToOne: true, Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(plan.Routes) != 10 {
		t.Fatalf("routes = %d, want 2 per day over 5 days", len(plan.Routes))
	}
	if len(plan.Agents) != len(plan.Routes) {
		t.Fatalf("agents = %d, want one per route", len(plan.Agents))
	}

	budget := params.WeeklyBudget()
	demand := make(map[string]int)
	for _, g := range plan.Groups {
		demand[g.ID] = g.WeekDemand
	}
	for _, r := range plan.Routes {
		total := 0
		seen := make(map[string]bool)
		for _, v := range r.Visits {
			if !seen[v.Group] {
				seen[v.Group] = true
				total += demand[v.Group]
			}
		}
		if total > budget {
			t.Errorf("route %s weekly demand %d exceeds the budget %d", r.Name, total, budget)
		}
	}
}
