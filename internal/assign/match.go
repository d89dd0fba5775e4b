// Package assign bundles solved daily routes into weekly agents. Routes of
// nearby centroids on different weekdays are paired by a similarity order
// so the same person keeps walking the same streets all week.
package assign

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"fieldplan/internal/model"
	"fieldplan/internal/travel"
)

// Options are the matcher knobs.
type Options struct {
	// OneToOne derives one agent per route instead of running the heuristic.
	OneToOne bool
	// WeeklyBudget caps the summed route time of one agent, seconds.
	WeeklyBudget int
	// WeekDays bounds the weekday indices considered.
	WeekDays int
}

// Match pairs routes into per-agent weekly bundles, independently per
// (branch, supervisor).
func Match(routes []model.Route, branches map[string]model.Branch, opts Options) ([]model.Agent, []model.Diagnostic) {
	type key struct {
		Branch     string
		Supervisor string
	}
	byKey := make(map[key][]model.Route)
	var order []key
	for _, r := range routes {
		k := key{r.Branch, r.Supervisor}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], r)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].Branch != order[j].Branch {
			return order[i].Branch < order[j].Branch
		}
		return order[i].Supervisor < order[j].Supervisor
	})

	var agents []model.Agent
	var diags []model.Diagnostic
	for _, k := range order {
		branch := branches[k.Branch]
		group := byKey[k]
		var bundled []model.Agent
		if opts.OneToOne {
			bundled = oneToOne(group, branch)
		} else {
			var bdiags []model.Diagnostic
			bundled, bdiags = bundle(group, branch, opts)
			diags = append(diags, bdiags...)
		}
		agents = append(agents, bundled...)
	}
	log.Info().Int("routes", len(routes)).Int("agents", len(agents)).Msg("Routes bundled into agents")
	return agents, diags
}

// oneToOne lifts each route into its own agent; the route label is already
// an agent identity in weekly consolidation mode.
func oneToOne(routes []model.Route, branch model.Branch) []model.Agent {
	agents := make([]model.Agent, 0, len(routes))
	for _, r := range routes {
		a := model.Agent{
			Name:       "ag-" + r.Name,
			Branch:     r.Branch,
			Supervisor: r.Supervisor,
			Modality:   r.Modality,
			Tier:       r.Tier,
			TierHours:  r.TierHours,
			FTE:        r.FTE,
			Routes:     map[int]string{r.Day: r.Name},
		}
		agents = append(agents, a)
	}
	return agents
}

// pairScore orders candidate partners for an anchor route,
// lexicographically.
type pairScore struct {
	sameModality bool
	sameTier     bool
	anchorFull   bool
	anchorDrive  bool
	shared       float64
	distKM       float64
}

func (a pairScore) better(b pairScore) bool {
	if a.sameModality != b.sameModality {
		return a.sameModality
	}
	if a.sameTier != b.sameTier {
		return a.sameTier
	}
	if a.anchorFull != b.anchorFull {
		return a.anchorFull
	}
	if a.anchorDrive != b.anchorDrive {
		return a.anchorDrive
	}
	if a.shared != b.shared {
		return a.shared > b.shared
	}
	return a.distKM < b.distKM
}

func score(anchor, cand *model.Route) pairScore {
	ai, aj := anchor.AssetSet(), cand.AssetSet()
	inter := 0
	for code := range ai {
		if aj[code] {
			inter++
		}
	}
	denom := len(ai)
	if len(aj) < denom {
		denom = len(aj)
	}
	shared := 0.0
	if denom > 0 {
		shared = float64(inter) / float64(denom)
	}
	return pairScore{
		sameModality: anchor.Modality == cand.Modality,
		sameTier:     anchor.Tier == cand.Tier,
		anchorFull:   anchor.Tier == model.FullTime,
		anchorDrive:  anchor.Modality == model.Driving,
		shared:       shared,
		distKM:       travel.HaversineKM(anchor.Lat, anchor.Lon, cand.Lat, cand.Lon),
	}
}

// bundle runs the greedy anchor walk: anchors in full-time-first order, one
// new agent per anchor, best compatible route appended per remaining
// weekday. A single route already over the weekly budget is reported; the
// budget gate can only guard the routes appended after the anchor.
func bundle(routes []model.Route, branch model.Branch, opts Options) ([]model.Agent, []model.Diagnostic) {
	idx := make([]int, len(routes))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(x, y int) bool {
		a, b := &routes[idx[x]], &routes[idx[y]]
		if (a.Tier == model.FullTime) != (b.Tier == model.FullTime) {
			return a.Tier == model.FullTime
		}
		if a.Modality != b.Modality {
			return a.Modality == model.Driving
		}
		if a.TierHours != b.TierHours {
			return a.TierHours > b.TierHours
		}
		if a.Total() != b.Total() {
			return a.Total() > b.Total()
		}
		return a.Name < b.Name
	})

	maxDistKM := float64(branch.MaxDist) / 1000
	assigned := make([]bool, len(routes))
	var agents []model.Agent
	var diags []model.Diagnostic

	for _, ai := range idx {
		if assigned[ai] {
			continue
		}
		anchor := &routes[ai]
		assigned[ai] = true
		members := []int{ai}
		weekly := anchor.Total()
		if opts.WeeklyBudget > 0 && weekly > opts.WeeklyBudget {
			diags = append(diags, model.Diagnostic{
				Level:      model.DiagWarn,
				Stage:      "assign",
				Branch:     anchor.Branch,
				Day:        anchor.Day,
				Supervisor: anchor.Supervisor,
				Message:    fmt.Sprintf("route %s alone exceeds the weekly budget", anchor.Name),
			})
		}

		for d := 0; d < opts.WeekDays; d++ {
			if d == anchor.Day {
				continue
			}
			best := -1
			var bestScore pairScore
			for _, ci := range idx {
				if assigned[ci] {
					continue
				}
				cand := &routes[ci]
				if cand.Day != d {
					continue
				}
				if opts.WeeklyBudget > 0 && weekly+cand.Total() > opts.WeeklyBudget {
					continue
				}
				sc := score(anchor, cand)
				if sc.distKM > maxDistKM {
					continue
				}
				if best < 0 || sc.better(bestScore) {
					best = ci
					bestScore = sc
				}
			}
			if best >= 0 {
				assigned[best] = true
				members = append(members, best)
				weekly += routes[best].Total()
			}
		}

		agents = append(agents, makeAgent(routes, members, branch, len(agents)+1))
	}
	return agents, diags
}

// makeAgent folds the member routes into one agent, promoting the bundle to
// full-time when any member needs it.
func makeAgent(routes []model.Route, members []int, branch model.Branch, n int) model.Agent {
	first := &routes[members[0]]
	a := model.Agent{
		Name:       fmt.Sprintf("%s-%s-a%02d", first.Branch, first.Supervisor, n),
		Branch:     first.Branch,
		Supervisor: first.Supervisor,
		Modality:   model.Walking,
		Routes:     make(map[int]string, len(members)),
	}
	fullTime := false
	for _, mi := range members {
		r := &routes[mi]
		a.Routes[r.Day] = r.Name
		if r.Modality == model.Driving {
			a.Modality = model.Driving
		}
		if r.Tier == model.FullTime {
			fullTime = true
		}
		if r.TierHours > a.TierHours {
			a.TierHours = r.TierHours
			a.Tier = r.Tier
		}
	}
	if fullTime {
		a.Tier = model.FullTime
		a.TierHours = branch.MaxTime
		a.FTE = 1
	} else if branch.MaxTime > 0 {
		a.FTE = float64(a.TierHours) / float64(branch.MaxTime)
	}
	return a
}
