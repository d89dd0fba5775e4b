// Package routing solves the daily vehicle-routing subproblems: it buckets
// scheduled assets into partner groups, routes the groups under time-window,
// distance and working-time caps, picks a transport modality per route, and
// assigns a workday scale tier.
package routing

import (
	"fmt"
	"sort"

	"fieldplan/internal/model"
)

// BuildGroups buckets the scheduled assets of each partner and weekday into
// groups whose service plus entry time fits the branch daily budget. Groups
// are the atomic clients of the router.
func BuildGroups(snap *model.Snapshot, assignments []model.Assignment) ([]model.Group, error) {
	type key struct {
		Branch  string
		Partner model.Code
		Asset   model.Code
	}
	assets := make(map[key]model.Asset, len(snap.Assets))
	for _, a := range snap.Assets {
		assets[key{a.Branch, a.Partner, a.Code}] = a
	}
	partners := snap.PartnerByCode()
	points := snap.PointByPartner()

	type member struct {
		asset model.Asset
		freq  int
		day   int
	}
	var members []member
	for _, asg := range assignments {
		a, ok := assets[key{asg.Branch, asg.Partner, asg.Asset}]
		if !ok {
			return nil, fmt.Errorf("schedule references unknown asset %s at partner %s in branch %s",
				asg.Asset, asg.Partner, asg.Branch)
		}
		for _, d := range asg.Days {
			members = append(members, member{asset: a, freq: asg.Frequency, day: d})
		}
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.asset.Branch != b.asset.Branch {
			return a.asset.Branch < b.asset.Branch
		}
		if a.day != b.day {
			return a.day < b.day
		}
		if a.asset.Partner.String() != b.asset.Partner.String() {
			return a.asset.Partner.String() < b.asset.Partner.String()
		}
		if a.asset.ServiceTime != b.asset.ServiceTime {
			return a.asset.ServiceTime < b.asset.ServiceTime
		}
		return a.asset.Code.String() < b.asset.Code.String()
	})

	var groups []model.Group
	var cur *model.Group
	seq := 0
	flush := func() {
		if cur != nil {
			groups = append(groups, *cur)
			cur = nil
		}
	}
	for _, m := range members {
		branch, ok := snap.Branches[m.asset.Branch]
		if !ok {
			return nil, fmt.Errorf("asset %s references unknown branch %s", m.asset.Code, m.asset.Branch)
		}
		partner, ok := partners[m.asset.Branch][m.asset.Partner]
		if !ok {
			return nil, fmt.Errorf("asset %s references unknown partner %s in branch %s",
				m.asset.Code, m.asset.Partner, m.asset.Branch)
		}
		pointID, ok := points[m.asset.Branch][m.asset.Partner]
		if !ok {
			return nil, fmt.Errorf("partner %s in branch %s has no point mapping", m.asset.Partner, m.asset.Branch)
		}

		samePartner := cur != nil &&
			cur.Branch == m.asset.Branch &&
			cur.Day == m.day &&
			cur.Partner == m.asset.Partner
		if !samePartner {
			flush()
			seq = 1
		} else if cur.Service+m.asset.ServiceTime+cur.Entry > branch.MaxTime {
			// Partner overflows the daily budget, open the next bucket.
			flush()
			seq++
		}
		if cur == nil {
			cur = &model.Group{
				ID:         fmt.Sprintf("g%s%dG%d", m.asset.Partner, m.day, seq),
				Branch:     m.asset.Branch,
				Day:        m.day,
				Supervisor: partner.Supervisor,
				Partner:    m.asset.Partner,
				Entry:      partner.EntryTime,
				Open:       partner.Open,
				Close:      partner.Close,
				PointID:    pointID,
				Lat:        partner.Lat,
				Lon:        partner.Lon,
			}
		}
		cur.Assets = append(cur.Assets, m.asset.Code)
		cur.Services = append(cur.Services, m.asset.ServiceTime)
		cur.Service += m.asset.ServiceTime
		cur.WeekDemand += m.freq * m.asset.ServiceTime
		cur.WeekVisits += m.freq
	}
	flush()
	return groups, nil
}
