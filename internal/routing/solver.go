package routing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"fieldplan/internal/model"
	"fieldplan/internal/travel"
)

// DefaultRouteCost is the penalty charged on leaving BASE. It dominates any
// real arc distance, so the solver minimizes the number of opened routes
// before distance.
const DefaultRouteCost = 1_000_000

// walkSpeed is the assumed walking pace, meters per second (5 km/h).
const walkSpeed = 5.0 / 3.6

// Tier is one workday scale, seconds, ascending by construction.
type Tier struct {
	Name    string
	Seconds int
}

// Options are the router knobs shared by all subproblems of a run.
type Options struct {
	RouteCost       int
	ModalityMargin  float64
	SaturdayCap     int // seconds, 0 disables the override
	Tiers           []Tier
	WalkingBaseCost bool
	// WeekDemand switches the capacity dimension from unit demands to the
	// weekly service demand of each group (1-to-1 consolidation mode).
	WeekDemand bool
	VehicleCap int // seconds of demand per vehicle
}

// Subproblem is one (branch, supervisor, day) routing instance.
type Subproblem struct {
	Branch     model.Branch
	Supervisor string
	Day        int
	Groups     []model.Group
	Matrix     *travel.Matrix
	Walking    *travel.Matrix // optional walking rows, nil falls back to distance
	Opts       Options
}

// Result is the solved route set of one subproblem.
type Result struct {
	Routes []model.Route
	Diags  []model.Diagnostic
}

// SolveError identifies a subproblem that produced no usable solution.
type SolveError struct {
	Branch     string
	Day        int
	Supervisor string
	Err        error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("routing branch %s day %d supervisor %s: %v", e.Branch, e.Day+1, e.Supervisor, e.Err)
}

func (e *SolveError) Unwrap() error { return e.Err }

// BuildSubproblems slices the group set per (branch, supervisor, day) in
// canonical order and attaches the branch matrix.
func BuildSubproblems(groups []model.Group, branches map[string]model.Branch, matrices travel.Set, opts Options) ([]Subproblem, error) {
	if opts.RouteCost == 0 {
		opts.RouteCost = DefaultRouteCost
	}
	type key struct {
		Branch     string
		Supervisor string
		Day        int
	}
	byKey := make(map[key][]model.Group)
	var order []key
	for _, g := range groups {
		k := key{g.Branch, g.Supervisor, g.Day}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], g)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if a.Supervisor != b.Supervisor {
			return a.Supervisor < b.Supervisor
		}
		return a.Day < b.Day
	})

	out := make([]Subproblem, 0, len(order))
	for _, k := range order {
		branch, ok := branches[k.Branch]
		if !ok {
			return nil, fmt.Errorf("group references unknown branch %s", k.Branch)
		}
		m, ok := matrices.Driving[k.Branch]
		if !ok {
			return nil, fmt.Errorf("no travel matrix for branch %s", k.Branch)
		}
		out = append(out, Subproblem{
			Branch:     branch,
			Supervisor: k.Supervisor,
			Day:        k.Day,
			Groups:     byKey[k],
			Matrix:     m,
			Walking:    matrices.Walking[k.Branch],
			Opts:       opts,
		})
	}
	return out, nil
}

// dayCap returns the working-time cap for the subproblem's weekday.
func (sp *Subproblem) dayCap() int {
	if sp.Day == model.Saturday && sp.Opts.SaturdayCap > 0 && sp.Opts.SaturdayCap < sp.Branch.MaxTime {
		return sp.Opts.SaturdayCap
	}
	return sp.Branch.MaxTime
}

func (sp *Subproblem) demand(g *model.Group) int {
	if sp.Opts.WeekDemand {
		return g.WeekDemand
	}
	return 1
}

// routeStats is the forward simulation of one visiting order.
type routeStats struct {
	dist     int // true meters, BASE legs excluded by the matrix sentinel
	travel   int // seconds
	entry    int // seconds
	service  int // seconds
	demand   int
	feasible bool
}

func (st *routeStats) total() int { return st.travel + st.entry + st.service }

// simulate walks the sequence from BASE, waiting out early arrivals, and
// checks windows, distance and time caps. A missing matrix pair is a hard
// error.
func (sp *Subproblem) simulate(seq []int) (routeStats, error) {
	var st routeStats
	timeCap := sp.dayCap()
	clock := 0
	prevPoint := travel.BasePoint
	var prevPartner *model.Code

	for _, gi := range seq {
		g := &sp.Groups[gi]
		d, t, ok := sp.Matrix.Arc(prevPoint, g.PointID)
		if !ok {
			return st, &SolveError{
				Branch: sp.Branch.Name, Day: sp.Day, Supervisor: sp.Supervisor,
				Err: &travel.MissingPairError{Branch: sp.Branch.Name, From: prevPoint, To: g.PointID},
			}
		}
		clock += t
		if clock < g.Open {
			clock = g.Open
		}
		if clock > g.Close {
			return st, nil // window violated, infeasible order
		}
		charge := 0
		if prevPartner == nil || *prevPartner != g.Partner {
			charge = g.Entry
		}
		clock += charge + g.Service
		st.dist += d
		st.travel += t
		st.entry += charge
		st.service += g.Service
		st.demand += sp.demand(g)
		prevPoint = g.PointID
		prevPartner = &g.Partner
	}

	st.feasible = st.dist <= sp.Branch.MaxDist && st.total() <= timeCap
	if sp.Opts.WeekDemand && st.demand > sp.Opts.VehicleCap {
		st.feasible = false
	}
	return st, nil
}

// Solve routes the subproblem's groups: cheapest insertion seeded in
// window order, then relocate and 2-opt improvement until the deadline.
func (sp *Subproblem) Solve(ctx context.Context) (*Result, error) {
	res := &Result{}
	timeCap := sp.dayCap()

	// Pre-drop groups that cannot be served even on a dedicated route.
	var pending []int
	for i := range sp.Groups {
		g := &sp.Groups[i]
		infeasible := g.Service+g.Entry > timeCap ||
			(sp.Opts.WeekDemand && sp.demand(g) > sp.Opts.VehicleCap) ||
			g.Open > g.Close
		if infeasible {
			res.Diags = append(res.Diags, model.Diagnostic{
				Level:      model.DiagWarn,
				Stage:      "routing",
				Branch:     sp.Branch.Name,
				Day:        sp.Day,
				Supervisor: sp.Supervisor,
				Partner:    g.Partner.String(),
				Message:    fmt.Sprintf("group %s cannot fit any route, dropped", g.ID),
			})
			continue
		}
		pending = append(pending, i)
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := &sp.Groups[pending[i]], &sp.Groups[pending[j]]
		if a.Open != b.Open {
			return a.Open < b.Open
		}
		if a.Close != b.Close {
			return a.Close < b.Close
		}
		return a.ID < b.ID
	})

	var seqs [][]int
	for _, gi := range pending {
		if err := ctx.Err(); err != nil {
			return nil, &SolveError{Branch: sp.Branch.Name, Day: sp.Day, Supervisor: sp.Supervisor,
				Err: fmt.Errorf("no incumbent before deadline: %w", err)}
		}
		ri, pos, cost, ok, err := sp.bestInsertion(seqs, gi)
		if err != nil {
			return nil, err
		}
		single := []int{gi}
		st, err := sp.simulate(single)
		if err != nil {
			return nil, err
		}
		// Opening a fresh route carries the RouteCost penalty on top of the
		// depot legs, so existing routes win unless the detour beats it.
		openCost := 1 << 60
		if st.feasible {
			openCost = sp.Opts.RouteCost + st.dist
		}
		switch {
		case ok && cost < openCost:
			seqs[ri] = insertAt(seqs[ri], pos, gi)
		case st.feasible:
			seqs = append(seqs, single)
		default:
			g := &sp.Groups[gi]
			res.Diags = append(res.Diags, model.Diagnostic{
				Level:      model.DiagWarn,
				Stage:      "routing",
				Branch:     sp.Branch.Name,
				Day:        sp.Day,
				Supervisor: sp.Supervisor,
				Partner:    g.Partner.String(),
				Message:    fmt.Sprintf("group %s cannot fit any route, dropped", g.ID),
			})
		}
	}

	if err := sp.improve(ctx, seqs, res); err != nil {
		return nil, err
	}
	seqs = compactSeqs(seqs)

	routes, err := sp.extract(seqs)
	if err != nil {
		return nil, err
	}
	res.Routes = routes
	log.Debug().
		Str("branch", sp.Branch.Name).
		Int("day", sp.Day+1).
		Str("supervisor", sp.Supervisor).
		Int("groups", len(pending)).
		Int("routes", len(routes)).
		Msg("Daily routing solved")
	return res, nil
}

// bestInsertion scans every position of every route for the cheapest
// feasible insertion of group gi, by true-distance delta.
func (sp *Subproblem) bestInsertion(seqs [][]int, gi int) (route, pos, cost int, ok bool, err error) {
	cost = 1 << 60
	for ri, seq := range seqs {
		base, err := sp.simulate(seq)
		if err != nil {
			return 0, 0, 0, false, err
		}
		for p := 0; p <= len(seq); p++ {
			cand := insertAt(append([]int(nil), seq...), p, gi)
			st, err := sp.simulate(cand)
			if err != nil {
				return 0, 0, 0, false, err
			}
			if !st.feasible {
				continue
			}
			if delta := st.dist - base.dist; delta < cost {
				cost = delta
				route, pos, ok = ri, p, true
			}
		}
	}
	return route, pos, cost, ok, nil
}

// improve runs relocate and intra-route 2-opt passes until no move helps or
// the deadline passes.
func (sp *Subproblem) improve(ctx context.Context, seqs [][]int, res *Result) error {
	deadline, hasDeadline := ctx.Deadline()
	expired := func() bool {
		return ctx.Err() != nil || (hasDeadline && time.Now().After(deadline))
	}

	for pass := 0; pass < 64; pass++ {
		if expired() {
			res.Diags = append(res.Diags, model.Diagnostic{
				Level:      model.DiagWarn,
				Stage:      "routing",
				Branch:     sp.Branch.Name,
				Day:        sp.Day,
				Supervisor: sp.Supervisor,
				Message:    "time limit reached, accepting incumbent routes",
			})
			return nil
		}
		improved := false

		// Relocate single groups. A move pays off when it lowers the total
		// cost, distance plus RouteCost per open route, so emptying a route
		// gains the penalty back and reopening an emptied one pays it again.
		for ri := range seqs {
			for p := 0; p < len(seqs[ri]); p++ {
				gi := seqs[ri][p]
				without := removeAt(append([]int(nil), seqs[ri]...), p)
				stWithout, err := sp.simulate(without)
				if err != nil {
					return err
				}
				stWith, err := sp.simulate(seqs[ri])
				if err != nil {
					return err
				}
				saved := stWith.dist - stWithout.dist
				if len(without) == 0 {
					saved += sp.Opts.RouteCost
				}
				for rj := range seqs {
					if rj == ri {
						continue
					}
					baseJ, err := sp.simulate(seqs[rj])
					if err != nil {
						return err
					}
					opening := 0
					if len(seqs[rj]) == 0 {
						opening = sp.Opts.RouteCost
					}
					for q := 0; q <= len(seqs[rj]); q++ {
						cand := insertAt(append([]int(nil), seqs[rj]...), q, gi)
						st, err := sp.simulate(cand)
						if err != nil {
							return err
						}
						if !st.feasible {
							continue
						}
						added := st.dist - baseJ.dist + opening
						if added < saved {
							seqs[rj] = cand
							seqs[ri] = without
							improved = true
							break
						}
					}
					if improved {
						break
					}
				}
				if improved {
					break
				}
			}
			if improved {
				break
			}
		}
		if improved {
			continue
		}

		// 2-opt inside each route.
		for ri := range seqs {
			seq := seqs[ri]
			if len(seq) < 3 {
				continue
			}
			cur, err := sp.simulate(seq)
			if err != nil {
				return err
			}
			for i := 0; i < len(seq)-1 && !improved; i++ {
				for j := i + 1; j < len(seq); j++ {
					cand := append([]int(nil), seq...)
					reverse(cand[i : j+1])
					st, err := sp.simulate(cand)
					if err != nil {
						return err
					}
					if st.feasible && st.dist < cur.dist {
						seqs[ri] = cand
						improved = true
						break
					}
				}
			}
			if improved {
				break
			}
		}
		if !improved {
			return nil
		}
	}
	return nil
}

func insertAt(seq []int, pos, v int) []int {
	seq = append(seq, 0)
	copy(seq[pos+1:], seq[pos:])
	seq[pos] = v
	return seq
}

func removeAt(seq []int, pos int) []int {
	return append(seq[:pos], seq[pos+1:]...)
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func compactSeqs(seqs [][]int) [][]int {
	out := seqs[:0]
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}
