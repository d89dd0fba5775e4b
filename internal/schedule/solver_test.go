package schedule

import (
	"context"
	"errors"
	"testing"

	"fieldplan/internal/model"
)

func item(partner, asset string, freq int) Item {
	return Item{
		Partner:      model.NewCode(partner),
		Asset:        model.NewCode(asset),
		Frequency:    freq,
		FixedWeekday: model.NoFixedWeekday,
	}
}

func TestSolveBalancesPeak(t *testing.T) {
	// Sixteen weekly visits over five days cannot do better than a peak of
	// four, and a peak of four is reachable.
	inst := &Instance{Branch: "B1", WeekDays: 5}
	for i := 0; i < 6; i++ {
		inst.Items = append(inst.Items, item("P1", "A"+string(rune('0'+i)), 2))
	}
	for i := 0; i < 4; i++ {
		inst.Items = append(inst.Items, item("P2", "B"+string(rune('0'+i)), 1))
	}

	res, err := inst.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Peak != 4 {
		t.Errorf("peak = %d, want 4", res.Peak)
	}
	if !res.Optimal {
		t.Errorf("solution not marked optimal")
	}
	if len(res.Assignments) != 10 {
		t.Fatalf("assignments = %d, want 10", len(res.Assignments))
	}
	loads := make([]int, inst.WeekDays)
	for _, a := range res.Assignments {
		if len(a.Days) != a.Frequency {
			t.Errorf("asset %s: %d days for frequency %d", a.Asset, len(a.Days), a.Frequency)
		}
		for _, d := range a.Days {
			loads[d]++
		}
		if a.Frequency == 2 {
			gap := a.Days[1] - a.Days[0]
			if gap < 2 {
				t.Errorf("asset %s: twice-a-week days %v are adjacent", a.Asset, a.Days)
			}
		}
	}
	for d, l := range loads {
		if l > res.Peak {
			t.Errorf("day %d load %d exceeds reported peak %d", d, l, res.Peak)
		}
	}
}

func TestSolveSaturdayGate(t *testing.T) {
	// A six-visit asset on a six-day week needs Saturday. When the asset is
	// a five-day machine the candidate set is empty.
	inst := &Instance{
		Branch:   "B1",
		WeekDays: 6,
		Items: []Item{
			{Partner: model.NewCode("P1"), Asset: model.NewCode("A1"), Frequency: 6, AllowSaturday: true, FixedWeekday: model.NoFixedWeekday},
			{Partner: model.NewCode("P1"), Asset: model.NewCode("A2"), Frequency: 6, AllowSaturday: false, FixedWeekday: model.NoFixedWeekday},
		},
	}
	_, err := inst.Solve(context.Background())
	var uerr *UnschedulableError
	if !errors.As(err, &uerr) {
		t.Fatalf("Solve error = %v, want UnschedulableError", err)
	}
	if uerr.Asset.String() != "A2" {
		t.Errorf("offending asset = %s, want A2", uerr.Asset)
	}
}

func TestSolveFrequencyClamped(t *testing.T) {
	// A split B half can carry more visits than the week has days; the
	// schedule clamps it and reports the clamp.
	inst := &Instance{
		Branch:   "B1",
		WeekDays: 5,
		Items: []Item{
			{Partner: model.NewCode("P1"), Asset: model.NewCode("A1"), Frequency: 7, FixedWeekday: model.NoFixedWeekday},
		},
	}
	res, err := inst.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(res.Assignments) != 1 || len(res.Assignments[0].Days) != 5 {
		t.Fatalf("assignments = %+v, want one full-week assignment", res.Assignments)
	}
	if len(res.Diags) == 0 || res.Diags[0].Level != model.DiagWarn {
		t.Errorf("expected a clamp warning, got %+v", res.Diags)
	}
}

func TestSolveFixedWeekday(t *testing.T) {
	inst := &Instance{Branch: "B1", WeekDays: 5}
	for i := 0; i < 2; i++ {
		it := item("P1", "A"+string(rune('1'+i)), 1)
		it.FixedWeekday = model.Wednesday
		inst.Items = append(inst.Items, it)
	}

	res, err := inst.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	covered := false
	for _, a := range res.Assignments {
		for _, d := range a.Days {
			if d == model.Wednesday {
				covered = true
			}
		}
	}
	if !covered {
		t.Errorf("no assignment covers the fixed weekday: %+v", res.Assignments)
	}
	if len(res.Relaxed) != 0 {
		t.Errorf("constraint unexpectedly relaxed: %v", res.Relaxed)
	}
}

func TestSolveFixedWeekdayRelaxed(t *testing.T) {
	// Thursday is reachable only through Saturday-bearing patterns for a
	// three-visit five-day machine on a six-day week, so the constraint must
	// be dropped rather than failing the branch.
	inst := &Instance{
		Branch:   "B1",
		WeekDays: 6,
		Items: []Item{
			{Partner: model.NewCode("P1"), Asset: model.NewCode("A1"), Frequency: 3, AllowSaturday: false, FixedWeekday: model.Thursday},
		},
	}
	res, err := inst.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(res.Relaxed) != 1 || res.Relaxed[0] != "P1" {
		t.Errorf("relaxed = %v, want [P1]", res.Relaxed)
	}
	if len(res.Assignments) != 1 || len(res.Assignments[0].Days) != 3 {
		t.Fatalf("assignments = %+v, want one three-day assignment", res.Assignments)
	}
	found := false
	for _, d := range res.Diags {
		if d.Level == model.DiagWarn && d.Partner == "P1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a relaxation warning, got %+v", res.Diags)
	}
}

func TestBuildInstances(t *testing.T) {
	snap := &model.Snapshot{
		Branches: map[string]model.Branch{"B1": {Name: "B1"}, "B2": {Name: "B2"}},
		Partners: []model.Partner{
			{Branch: "B1", Code: model.NewCode("P1"), FixedWeekday: model.Tuesday},
			{Branch: "B2", Code: model.NewCode("P2"), FixedWeekday: model.NoFixedWeekday},
		},
		Assets: []model.Asset{
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A1"), DaysPerWeek: 5},
			{Branch: "B2", Partner: model.NewCode("P2"), Code: model.NewCode("A2"), DaysPerWeek: 6},
			{Branch: "B2", Partner: model.NewCode("P2"), Code: model.NewCode("A3"), DaysPerWeek: 5},
		},
	}
	freqs := []model.Frequency{
		{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"), Final: 2},
		{Branch: "B2", Partner: model.NewCode("P2"), Asset: model.NewCode("A2"), Final: 3},
		{Branch: "B2", Partner: model.NewCode("P2"), Asset: model.NewCode("A3"), Final: 0},
	}

	instances := BuildInstances(snap, freqs, 5)
	if len(instances) != 2 {
		t.Fatalf("instances = %d, want 2", len(instances))
	}
	if instances[0].Branch != "B1" || instances[1].Branch != "B2" {
		t.Errorf("branch order = %s, %s", instances[0].Branch, instances[1].Branch)
	}
	if got := instances[0].Items[0].FixedWeekday; got != model.Tuesday {
		t.Errorf("fixed weekday = %d, want Tuesday", got)
	}
	if len(instances[1].Items) != 1 {
		t.Errorf("zero-frequency asset survived: %+v", instances[1].Items)
	}
	if !instances[1].Items[0].AllowSaturday {
		t.Errorf("six-day asset lost its Saturday permission")
	}
}
