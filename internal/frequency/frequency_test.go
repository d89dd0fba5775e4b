package frequency

import (
	"testing"
	"time"

	"fieldplan/internal/model"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func findFreq(t *testing.T, freqs []model.Frequency, asset string) model.Frequency {
	t.Helper()
	for _, f := range freqs {
		if f.Asset.String() == asset {
			return f
		}
	}
	t.Fatalf("no frequency for asset %s in %+v", asset, freqs)
	return model.Frequency{}
}

func TestComputeConsumptionCapped(t *testing.T) {
	snap := &model.Snapshot{
		Branches: map[string]model.Branch{"B1": {Name: "B1"}},
		Partners: []model.Partner{
			{Branch: "B1", Code: model.NewCode("P1"), Open: 28800, Close: 64800},
		},
		Assets: []model.Asset{
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A1"),
				ServiceTime: 600, DaysPerWeek: 5, MinFrequency: 1, CurrentFrequency: 2},
		},
		SKUs: []model.SKULine{
			{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"),
				SKU: "K1", Capacity: 10, RepositionLevel: 0.2},
		},
		Consumption: []model.ConsumptionRecord{
			{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"),
				SKU: "K1", Start: day("2026-01-05"), End: day("2026-01-12"), Consumed: 24},
		},
	}

	res, err := Compute(snap, Options{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	f := findFreq(t, res.Frequencies, "A1")
	// 24 units over one week against an effective capacity of 8 asks for 3
	// visits; the current operation caps it at 2.
	if f.Consumption != 3 {
		t.Errorf("consumption frequency = %d, want 3", f.Consumption)
	}
	if f.Reposition != 2 {
		t.Errorf("reposition frequency = %d, want 2", f.Reposition)
	}
	if f.Final != 2 {
		t.Errorf("final frequency = %d, want 2", f.Final)
	}
}

func TestComputeFlexFloor(t *testing.T) {
	flex := 1
	snap := &model.Snapshot{
		Branches: map[string]model.Branch{"B1": {Name: "B1"}},
		Partners: []model.Partner{{Branch: "B1", Code: model.NewCode("P1")}},
		Assets: []model.Asset{
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A1"),
				DaysPerWeek: 5, MinFrequency: 1, CurrentFrequency: 4},
		},
	}
	res, err := Compute(snap, Options{Flex: &flex})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	f := findFreq(t, res.Frequencies, "A1")
	// No consumption history, so only the flex floor holds: current minus one.
	if f.Final != 3 {
		t.Errorf("final frequency = %d, want 3", f.Final)
	}
}

func TestComputeStandardizePartner(t *testing.T) {
	snap := &model.Snapshot{
		Branches: map[string]model.Branch{"B1": {Name: "B1"}},
		Partners: []model.Partner{{Branch: "B1", Code: model.NewCode("P1")}},
		Assets: []model.Asset{
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A1"),
				DaysPerWeek: 5, MinFrequency: 3, CurrentFrequency: 3},
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A2"),
				DaysPerWeek: 5, MinFrequency: 1, CurrentFrequency: 1},
		},
	}
	res, err := Compute(snap, Options{StandardizePartner: true})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for _, asset := range []string{"A1", "A2"} {
		if f := findFreq(t, res.Frequencies, asset); f.Final != 3 {
			t.Errorf("asset %s final = %d, want partner peak 3", asset, f.Final)
		}
	}
}

func TestComputeZeroCapacityDropped(t *testing.T) {
	snap := &model.Snapshot{
		Branches: map[string]model.Branch{"B1": {Name: "B1"}},
		Partners: []model.Partner{{Branch: "B1", Code: model.NewCode("P1")}},
		Assets: []model.Asset{
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A1"), DaysPerWeek: 5},
		},
		SKUs: []model.SKULine{
			{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"), SKU: "K1", Capacity: 0},
		},
		Consumption: []model.ConsumptionRecord{
			{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"),
				SKU: "K1", Start: day("2026-01-05"), End: day("2026-01-12"), Consumed: 100},
		},
	}
	res, err := Compute(snap, Options{})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if f := findFreq(t, res.Frequencies, "A1"); f.Consumption != 0 {
		t.Errorf("consumption frequency = %d, want 0 after dropping the line", f.Consumption)
	}
	if len(res.Diags) != 1 || res.Diags[0].Level != model.DiagWarn {
		t.Errorf("diags = %+v, want one capacity warning", res.Diags)
	}
}

func TestComputeSplit(t *testing.T) {
	level := 0.0
	snap := &model.Snapshot{
		Branches: map[string]model.Branch{"B1": {Name: "B1"}},
		Partners: []model.Partner{
			{Branch: "B1", Code: model.NewCode("P1"), Open: 28800, Close: 64800,
				EntryTime: 300, Supervisor: "S1"},
		},
		Assets: []model.Asset{
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A1"),
				ServiceTime: 600, DaysPerWeek: 5, MinFrequency: 2, CurrentFrequency: 5,
				SplitEligible: true},
		},
		SKUs: []model.SKULine{
			{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"),
				SKU: "K1", Capacity: 10},
		},
		Consumption: []model.ConsumptionRecord{
			{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"),
				SKU: "K1", Start: day("2026-01-05"), End: day("2026-01-12"), Consumed: 120},
		},
		Points: []model.PointRef{
			{Branch: "B1", Partner: model.NewCode("P1"), PointID: "pt1"},
		},
	}

	res, err := Compute(snap, Options{
		GlobalReposition: &level,
		Split:            true,
		SplitFactor:      1.5,
		SplitGap:         3 * 3600,
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	// 12 weekly visits against a 5-day week overflows past the 1.5 factor:
	// the A half absorbs a full week, the B half carries the remainder.
	fa := findFreq(t, res.Frequencies, "A1_A")
	fb := findFreq(t, res.Frequencies, "A1_B")
	if fa.Final != 5 || fb.Final != 7 {
		t.Errorf("half frequencies = %d/%d, want 5/7", fa.Final, fb.Final)
	}
	if fa.Min != 1 || fb.Min != 1 {
		t.Errorf("half minimums = %d/%d, want 1/1", fa.Min, fb.Min)
	}

	partners := res.Snapshot.PartnerByCode()["B1"]
	if _, ok := partners[model.NewCode("P1")]; ok {
		t.Errorf("fully split parent partner survived the rewrite")
	}
	pa := partners[model.NewCode("P1").WithHalf(model.SplitA)]
	pb := partners[model.NewCode("P1").WithHalf(model.SplitB)]
	// The three-hour gap is centered in the ten-hour window.
	if pa.Open != 28800 || pa.Close != 41400 {
		t.Errorf("A window = [%d,%d], want [28800,41400]", pa.Open, pa.Close)
	}
	if pb.Open != 52200 || pb.Close != 64800 {
		t.Errorf("B window = [%d,%d], want [52200,64800]", pb.Open, pb.Close)
	}
	if pa.Close > pb.Open {
		t.Errorf("A and B windows overlap")
	}

	points := res.Snapshot.PointByPartner()["B1"]
	if points[pa.Code] != "pt1" || points[pb.Code] != "pt1" {
		t.Errorf("split halves lost the parent point mapping: %+v", points)
	}
}

func TestComputeSplitNarrowWindow(t *testing.T) {
	level := 0.0
	snap := &model.Snapshot{
		Branches: map[string]model.Branch{"B1": {Name: "B1"}},
		Partners: []model.Partner{
			{Branch: "B1", Code: model.NewCode("P1"), Open: 28800, Close: 32400},
		},
		Assets: []model.Asset{
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A1"),
				ServiceTime: 600, DaysPerWeek: 5, MinFrequency: 1, CurrentFrequency: 5,
				SplitEligible: true},
		},
		SKUs: []model.SKULine{
			{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"),
				SKU: "K1", Capacity: 10},
		},
		Consumption: []model.ConsumptionRecord{
			{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"),
				SKU: "K1", Start: day("2026-01-05"), End: day("2026-01-12"), Consumed: 120},
		},
	}

	res, err := Compute(snap, Options{
		GlobalReposition: &level,
		Split:            true,
		SplitFactor:      1.5,
		SplitGap:         3 * 3600,
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	warned := false
	for _, d := range res.Diags {
		if d.Level == model.DiagWarn && d.Partner == "P1" {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a narrow-window warning, got %+v", res.Diags)
	}
	partners := res.Snapshot.PartnerByCode()["B1"]
	pa := partners[model.NewCode("P1").WithHalf(model.SplitA)]
	pb := partners[model.NewCode("P1").WithHalf(model.SplitB)]
	if pa.Open >= pa.Close || pb.Open >= pb.Close {
		t.Errorf("degenerate split windows: A=[%d,%d] B=[%d,%d]", pa.Open, pa.Close, pb.Open, pb.Close)
	}
	if pb.Close != 32400 {
		t.Errorf("B close = %d, want the parent close 32400", pb.Close)
	}
}

func TestWeeklyRates(t *testing.T) {
	records := []model.ConsumptionRecord{
		{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"),
			SKU: "K1", Start: day("2026-01-05"), End: day("2026-01-19"), Consumed: 28},
		// Same-day interval counts as one day, not zero.
		{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"),
			SKU: "K2", Start: day("2026-01-05"), End: day("2026-01-05"), Consumed: 2},
	}
	rates := weeklyRates(records)
	k1 := skuKey{assetKey: assetKey{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1")}, SKU: "K1"}
	if got := rates[k1]; got != 14 {
		t.Errorf("K1 rate = %g, want 14", got)
	}
	k2 := skuKey{assetKey: assetKey{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1")}, SKU: "K2"}
	if got := rates[k2]; got != 14 {
		t.Errorf("K2 rate = %g, want 14", got)
	}
}
