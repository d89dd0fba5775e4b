package routing

import (
	"fmt"
	"math"
	"sort"

	"fieldplan/internal/model"
	"fieldplan/internal/travel"
)

type legInfo struct {
	group   int
	dist    int // meters charged on the distance cap
	walkSec int // seconds when the route converts to walking
	drive   int // seconds
	entry   int // seconds
}

// legs replays a sequence capturing per-leg figures for visit expansion and
// the walking conversion.
func (sp *Subproblem) legs(seq []int) ([]legInfo, error) {
	out := make([]legInfo, 0, len(seq))
	prevPoint := travel.BasePoint
	var prevPartner *model.Code
	for _, gi := range seq {
		g := &sp.Groups[gi]
		d, t, ok := sp.Matrix.Arc(prevPoint, g.PointID)
		if !ok {
			return nil, &SolveError{
				Branch: sp.Branch.Name, Day: sp.Day, Supervisor: sp.Supervisor,
				Err: &travel.MissingPairError{Branch: sp.Branch.Name, From: prevPoint, To: g.PointID},
			}
		}
		charge := 0
		if prevPartner == nil || *prevPartner != g.Partner {
			charge = g.Entry
		}
		out = append(out, legInfo{
			group:   gi,
			dist:    d,
			walkSec: sp.walkLeg(prevPoint, g.PointID, d),
			drive:   t,
			entry:   charge,
		})
		prevPoint = g.PointID
		prevPartner = &g.Partner
	}
	return out, nil
}

// walkLeg converts one leg to walking seconds, out and back. Rows of the
// walking matrix win over the distance-derived estimate; depot legs only
// count when the matrices carry real rows for them and the flag asks.
func (sp *Subproblem) walkLeg(from, to string, distM int) int {
	base := from == travel.BasePoint || to == travel.BasePoint
	if base && !sp.Opts.WalkingBaseCost {
		return 0
	}
	if sp.Walking != nil {
		arc := sp.Walking.Arc
		if base {
			arc = sp.Walking.RawArc
		}
		if _, t, ok := arc(from, to); ok && t > 0 {
			return 2 * t
		}
	}
	if base {
		rd, _, ok := sp.Matrix.RawArc(from, to)
		if !ok {
			return 0
		}
		distM = rd
	}
	return walkSeconds(distM)
}

// walkSeconds converts a leg to walking time. The walker covers the leg
// there and back, so the distance counts twice.
func walkSeconds(distM int) int {
	return int(math.Round(2 * float64(distM) / walkSpeed))
}

// extract converts solved sequences into route records: visits per asset,
// modality by walking feasibility margin, and the smallest fitting scale
// tier.
func (sp *Subproblem) extract(seqs [][]int) ([]model.Route, error) {
	type built struct {
		route model.Route
		first string
	}
	builts := make([]built, 0, len(seqs))
	timeCap := sp.dayCap()

	for _, seq := range seqs {
		legs, err := sp.legs(seq)
		if err != nil {
			return nil, err
		}

		var service, entry, drive, dist, walkTravel int
		for _, l := range legs {
			g := &sp.Groups[l.group]
			service += g.Service
			entry += l.entry
			drive += l.drive
			dist += l.dist
			walkTravel += l.walkSec
		}

		modality := model.Driving
		travelTime := drive
		walkTotal := service + entry + walkTravel
		if float64(walkTotal)*(1+sp.Opts.ModalityMargin) <= float64(timeCap) {
			modality = model.Walking
			travelTime = walkTravel
		}

		r := model.Route{
			Branch:     sp.Branch.Name,
			Day:        sp.Day,
			Supervisor: sp.Supervisor,
			Modality:   modality,
			DistM:      dist,
			Service:    service,
			Travel:     travelTime,
			Entry:      entry,
		}

		ordinal := 0
		var lat, lon float64
		for _, l := range legs {
			g := &sp.Groups[l.group]
			lat += g.Lat
			lon += g.Lon
			legTravel := l.drive
			if modality == model.Walking {
				legTravel = l.walkSec
			}
			for ai, asset := range g.Assets {
				ordinal++
				v := model.Visit{
					Ordinal: ordinal,
					Group:   g.ID,
					Partner: g.Partner,
					Asset:   asset,
					Service: g.Services[ai],
				}
				if ai == 0 {
					v.DistM = l.dist
					v.Travel = legTravel
					v.Entry = l.entry
				}
				r.Visits = append(r.Visits, v)
			}
		}
		if len(legs) > 0 {
			r.Lat = lat / float64(len(legs))
			r.Lon = lon / float64(len(legs))
		}

		r.Tier, r.TierHours = sp.pickTier(r.Total())
		if sp.Branch.MaxTime > 0 {
			r.FTE = float64(r.TierHours) / float64(sp.Branch.MaxTime)
		}

		first := ""
		if len(seq) > 0 {
			first = sp.Groups[seq[0]].ID
		}
		builts = append(builts, built{route: r, first: first})
	}

	sort.Slice(builts, func(i, j int) bool {
		a, b := builts[i], builts[j]
		if a.route.Total() != b.route.Total() {
			return a.route.Total() > b.route.Total()
		}
		return a.first < b.first
	})

	routes := make([]model.Route, 0, len(builts))
	for i, b := range builts {
		b.route.Name = fmt.Sprintf("%s-%s-d%d-r%02d", sp.Branch.Name, sp.Supervisor, sp.Day+1, i+1)
		routes = append(routes, b.route)
	}
	return routes, nil
}

// pickTier returns the smallest configured tier covering total, falling
// back to Full-Time capped at the branch daily budget.
func (sp *Subproblem) pickTier(total int) (string, int) {
	for _, t := range sp.Opts.Tiers {
		if t.Seconds >= total {
			return t.Name, t.Seconds
		}
	}
	return model.FullTime, sp.Branch.MaxTime
}
