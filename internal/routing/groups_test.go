package routing

import (
	"testing"

	"fieldplan/internal/model"
)

func groupSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Branches: map[string]model.Branch{
			"B1": {Name: "B1", MaxTime: 28800, MaxDist: 60000},
		},
		Partners: []model.Partner{
			{Branch: "B1", Code: model.NewCode("P1"), Open: 28800, Close: 64800,
				EntryTime: 1800, Supervisor: "S1", Lat: -23.55, Lon: -46.63},
		},
		Assets: []model.Asset{
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A1"), ServiceTime: 10800},
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A2"), ServiceTime: 10800},
			{Branch: "B1", Partner: model.NewCode("P1"), Code: model.NewCode("A3"), ServiceTime: 10800},
		},
		Points: []model.PointRef{
			{Branch: "B1", Partner: model.NewCode("P1"), PointID: "pt1"},
		},
	}
}

func TestBuildGroupsPacksPartnerOverflow(t *testing.T) {
	snap := groupSnapshot()
	assignments := []model.Assignment{
		{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"), Frequency: 1, Days: []int{0}},
		{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A2"), Frequency: 1, Days: []int{0}},
		{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A3"), Frequency: 1, Days: []int{0}},
	}

	groups, err := BuildGroups(snap, assignments)
	if err != nil {
		t.Fatalf("BuildGroups: %v", err)
	}
	// Three 3-hour machines plus entry cannot share an 8-hour day: the third
	// opens a second bucket.
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	first, second := groups[0], groups[1]
	if first.ID != "gP10G1" || second.ID != "gP10G2" {
		t.Errorf("group ids = %s, %s", first.ID, second.ID)
	}
	if len(first.Assets) != 2 || len(second.Assets) != 1 {
		t.Errorf("bucket sizes = %d, %d, want 2 and 1", len(first.Assets), len(second.Assets))
	}
	if first.Service != 21600 || second.Service != 10800 {
		t.Errorf("services = %d, %d", first.Service, second.Service)
	}
	if first.Entry != 1800 || first.Open != 28800 || first.Close != 64800 {
		t.Errorf("partner attributes not carried: %+v", first)
	}
	if first.PointID != "pt1" || first.Supervisor != "S1" {
		t.Errorf("point or supervisor not carried: %+v", first)
	}
	if first.WeekDemand != 21600 || first.WeekVisits != 2 {
		t.Errorf("weekly demand = %d/%d visits", first.WeekDemand, first.WeekVisits)
	}
}

func TestBuildGroupsSplitsByDay(t *testing.T) {
	snap := groupSnapshot()
	snap.Assets = snap.Assets[:1]
	assignments := []model.Assignment{
		{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A1"), Frequency: 2, Days: []int{0, 2}},
	}

	groups, err := BuildGroups(snap, assignments)
	if err != nil {
		t.Fatalf("BuildGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want one per visit day", len(groups))
	}
	if groups[0].Day != 0 || groups[1].Day != 2 {
		t.Errorf("days = %d, %d, want 0 and 2", groups[0].Day, groups[1].Day)
	}
	// Weekly demand repeats on every day bucket of the asset.
	for _, g := range groups {
		if g.WeekDemand != 2*10800 {
			t.Errorf("group %s weekly demand = %d, want 21600", g.ID, g.WeekDemand)
		}
	}
}

func TestBuildGroupsUnknownAsset(t *testing.T) {
	snap := groupSnapshot()
	assignments := []model.Assignment{
		{Branch: "B1", Partner: model.NewCode("P1"), Asset: model.NewCode("A9"), Frequency: 1, Days: []int{0}},
	}
	if _, err := BuildGroups(snap, assignments); err == nil {
		t.Fatal("unknown asset accepted")
	}
}
