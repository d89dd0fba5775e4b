package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"fieldplan/internal/model"
)

// Item is one asset to be placed on the week.
type Item struct {
	Partner       model.Code
	Asset         model.Code
	Frequency     int
	AllowSaturday bool
	FixedWeekday  int
}

// Instance is the per-branch scheduling subproblem.
type Instance struct {
	Branch   string
	WeekDays int
	Items    []Item
}

// Result is a solved weekly schedule for one branch.
type Result struct {
	Branch      string
	Assignments []model.Assignment
	Peak        int
	Optimal     bool
	Relaxed     []string // partners whose fixed-weekday constraint was dropped
	Diags       []model.Diagnostic
}

// UnschedulableError marks an asset whose candidate pattern set is empty.
type UnschedulableError struct {
	Branch string
	Asset  model.Code
	Reason string
}

func (e *UnschedulableError) Error() string {
	return fmt.Sprintf("branch %s: asset %s has no feasible visit pattern: %s", e.Branch, e.Asset, e.Reason)
}

// BuildInstances pairs the rewritten population with its frequencies and
// slices it per branch, in canonical order. Assets with zero frequency are
// left out.
func BuildInstances(snap *model.Snapshot, freqs []model.Frequency, weekDays int) []Instance {
	type key struct {
		Branch  string
		Partner model.Code
		Asset   model.Code
	}
	final := make(map[key]int, len(freqs))
	for _, f := range freqs {
		final[key{f.Branch, f.Partner, f.Asset}] = f.Final
	}
	partners := snap.PartnerByCode()

	byBranch := make(map[string]*Instance)
	var order []string
	for _, a := range snap.Assets {
		f := final[key{a.Branch, a.Partner, a.Code}]
		if f <= 0 {
			continue
		}
		inst, ok := byBranch[a.Branch]
		if !ok {
			inst = &Instance{Branch: a.Branch, WeekDays: weekDays}
			byBranch[a.Branch] = inst
			order = append(order, a.Branch)
		}
		fixed := model.NoFixedWeekday
		if p, ok := partners[a.Branch][a.Partner]; ok {
			fixed = p.FixedWeekday
		}
		inst.Items = append(inst.Items, Item{
			Partner:       a.Partner,
			Asset:         a.Code,
			Frequency:     f,
			AllowSaturday: a.DaysPerWeek == 6,
			FixedWeekday:  fixed,
		})
	}
	sort.Strings(order)
	out := make([]Instance, 0, len(order))
	for _, b := range order {
		out = append(out, *byBranch[b])
	}
	return out
}

type solveItem struct {
	item    Item
	cands   []uint8 // candidate patterns as day masks
	group   *fixedGroup
	capable bool // some candidate covers the group day
}

type fixedGroup struct {
	partner   model.Code
	day       int
	satisfied int
	remaining int // unassigned members with a covering candidate
}

func (g *fixedGroup) covers(mask uint8) bool {
	return mask&(1<<uint(g.day)) != 0
}

type solver struct {
	inst     *Instance
	items    []*solveItem
	loads    []int
	cur      []uint8
	best     []uint8
	bestPeak int
	lbTotal  int
	deadline time.Time
	nodes    int
	timedOut bool
}

// Solve finds a min-peak day assignment for the branch. The search is an
// exact branch and bound seeded with a greedy incumbent; on deadline the
// incumbent is returned with a warning.
func (inst *Instance) Solve(ctx context.Context) (*Result, error) {
	res := &Result{Branch: inst.Branch}

	items, err := inst.prepare(res)
	if err != nil {
		return nil, err
	}

	s := &solver{
		inst:     inst,
		items:    items,
		loads:    make([]int, inst.WeekDays),
		cur:      make([]uint8, len(items)),
		best:     make([]uint8, len(items)),
		bestPeak: len(items) + 1,
	}
	total := 0
	for _, it := range items {
		total += min(it.item.Frequency, inst.WeekDays)
	}
	s.lbTotal = (total + inst.WeekDays - 1) / inst.WeekDays

	if deadline, ok := ctx.Deadline(); ok {
		s.deadline = deadline
	}

	s.greedy()
	if s.bestPeak > s.lbTotal {
		s.search(0, total)
	}
	if s.timedOut {
		res.Diags = append(res.Diags, model.Diagnostic{
			Level:   model.DiagWarn,
			Stage:   "schedule",
			Branch:  inst.Branch,
			Day:     -1,
			Message: "time limit reached, accepting incumbent schedule",
		})
	}
	res.Peak = s.bestPeak
	res.Optimal = !s.timedOut || s.bestPeak == s.lbTotal

	for i, it := range s.items {
		days := maskDays(s.best[i], inst.WeekDays)
		res.Assignments = append(res.Assignments, model.Assignment{
			Branch:    inst.Branch,
			Partner:   it.item.Partner,
			Asset:     it.item.Asset,
			Frequency: len(days),
			Days:      days,
		})
	}
	sort.Slice(res.Assignments, func(i, j int) bool {
		a, b := res.Assignments[i], res.Assignments[j]
		if a.Partner.String() != b.Partner.String() {
			return a.Partner.String() < b.Partner.String()
		}
		return a.Asset.String() < b.Asset.String()
	})
	log.Debug().
		Str("branch", inst.Branch).
		Int("assets", len(res.Assignments)).
		Int("peak", res.Peak).
		Bool("optimal", res.Optimal).
		Msg("Weekly schedule solved")
	return res, nil
}

// prepare builds candidate sets, relaxes unservable fixed-weekday
// constraints, and orders items most-constrained first.
func (inst *Instance) prepare(res *Result) ([]*solveItem, error) {
	groups := make(map[model.Code]*fixedGroup)
	items := make([]*solveItem, 0, len(inst.Items))

	for _, it := range inst.Items {
		f := it.Frequency
		if f > inst.WeekDays {
			res.Diags = append(res.Diags, model.Diagnostic{
				Level:   model.DiagWarn,
				Stage:   "schedule",
				Branch:  inst.Branch,
				Day:     -1,
				Partner: it.Partner.String(),
				Asset:   it.Asset.String(),
				Message: fmt.Sprintf("frequency %d exceeds the %d-day week, clamped", f, inst.WeekDays),
			})
			f = inst.WeekDays
		}
		var cands []uint8
		for _, days := range Patterns(inst.WeekDays, f) {
			mask := daysMask(days)
			if !it.AllowSaturday && mask&(1<<model.Saturday) != 0 {
				continue
			}
			cands = append(cands, mask)
		}
		if len(cands) == 0 {
			return nil, &UnschedulableError{
				Branch: inst.Branch,
				Asset:  it.Asset,
				Reason: fmt.Sprintf("frequency %d with Saturday excluded", f),
			}
		}
		si := &solveItem{item: it, cands: cands}
		if it.FixedWeekday != model.NoFixedWeekday && it.FixedWeekday < inst.WeekDays {
			g, ok := groups[it.Partner]
			if !ok {
				g = &fixedGroup{partner: it.Partner, day: it.FixedWeekday}
				groups[it.Partner] = g
			}
			si.group = g
			for _, mask := range cands {
				if g.covers(mask) {
					g.remaining++
					break
				}
			}
		}
		items = append(items, si)
	}

	// A fixed-weekday partner with no member able to cover its day cannot be
	// served; drop the constraint and report it.
	for _, si := range items {
		if si.group != nil && si.group.remaining == 0 {
			si.group = nil
		}
	}
	relaxed := make(map[model.Code]bool)
	for code, g := range groups {
		if g.remaining == 0 {
			relaxed[code] = true
			delete(groups, code)
		}
	}
	for code := range relaxed {
		res.Relaxed = append(res.Relaxed, code.String())
		res.Diags = append(res.Diags, model.Diagnostic{
			Level:   model.DiagWarn,
			Stage:   "schedule",
			Branch:  inst.Branch,
			Day:     -1,
			Partner: code.String(),
			Message: "fixed-weekday constraint relaxed, no member pattern covers the day",
		})
	}
	sort.Strings(res.Relaxed)

	// Recount capability per member for the search bookkeeping.
	for _, g := range groups {
		g.remaining = 0
	}
	for _, si := range items {
		if si.group == nil {
			continue
		}
		for _, mask := range si.cands {
			if si.group.covers(mask) {
				si.capable = true
				si.group.remaining++
				break
			}
		}
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.item.Frequency != b.item.Frequency {
			return a.item.Frequency > b.item.Frequency
		}
		if len(a.cands) != len(b.cands) {
			return len(a.cands) < len(b.cands)
		}
		if a.item.Partner.String() != b.item.Partner.String() {
			return a.item.Partner.String() < b.item.Partner.String()
		}
		return a.item.Asset.String() < b.item.Asset.String()
	})
	return items, nil
}

// greedy seeds the incumbent: place items in search order, each on the
// candidate minimizing the resulting peak, balancing ties by squared load.
func (s *solver) greedy() {
	loads := make([]int, s.inst.WeekDays)
	choice := make([]uint8, len(s.items))
	for i, si := range s.items {
		bestIdx := -1
		bestPeak, bestSq := 1<<30, 1<<62
		mustCover := si.capable && si.group.satisfied == 0 && si.group.remaining == 1
		for c, mask := range si.cands {
			if mustCover && !si.group.covers(mask) {
				continue
			}
			peak, sq := 0, 0
			for d := 0; d < s.inst.WeekDays; d++ {
				l := loads[d]
				if mask&(1<<uint(d)) != 0 {
					l++
				}
				if l > peak {
					peak = l
				}
				sq += l * l
			}
			if peak < bestPeak || (peak == bestPeak && sq < bestSq) {
				bestIdx, bestPeak, bestSq = c, peak, sq
			}
		}
		if bestIdx < 0 {
			bestIdx = 0
		}
		mask := si.cands[bestIdx]
		choice[i] = mask
		for d := 0; d < s.inst.WeekDays; d++ {
			if mask&(1<<uint(d)) != 0 {
				loads[d]++
			}
		}
		if si.group != nil {
			if si.group.covers(mask) {
				si.group.satisfied++
			}
			if si.capable {
				si.group.remaining--
			}
		}
	}
	peak := 0
	for _, l := range loads {
		if l > peak {
			peak = l
		}
	}
	s.bestPeak = peak
	copy(s.best, choice)
	s.resetGroups()
}

func (s *solver) resetGroups() {
	seen := make(map[*fixedGroup]bool)
	for _, si := range s.items {
		if si.group == nil || seen[si.group] {
			continue
		}
		seen[si.group] = true
		si.group.satisfied = 0
		si.group.remaining = 0
	}
	for _, si := range s.items {
		if si.capable {
			si.group.remaining++
		}
	}
}

// search explores assignments depth-first, pruning on the incumbent peak
// and the total-visit lower bound.
func (s *solver) search(idx, remaining int) {
	if s.timedOut {
		return
	}
	s.nodes++
	if s.nodes&1023 == 0 && !s.deadline.IsZero() && time.Now().After(s.deadline) {
		s.timedOut = true
		return
	}
	if idx == len(s.items) {
		peak := 0
		for _, l := range s.loads {
			if l > peak {
				peak = l
			}
		}
		if peak < s.bestPeak {
			s.bestPeak = peak
			copy(s.best, s.cur)
		}
		return
	}

	// Lower bound from visits still to place.
	placed := 0
	for _, l := range s.loads {
		placed += l
	}
	lb := (placed + remaining + s.inst.WeekDays - 1) / s.inst.WeekDays
	curPeak := 0
	for _, l := range s.loads {
		if l > curPeak {
			curPeak = l
		}
	}
	if lb < curPeak {
		lb = curPeak
	}
	if lb >= s.bestPeak {
		return
	}

	si := s.items[idx]
	f := si.item.Frequency
	if f > s.inst.WeekDays {
		f = s.inst.WeekDays
	}

	for _, mask := range si.cands {
		if si.capable && si.group.satisfied == 0 && si.group.remaining == 1 && !si.group.covers(mask) {
			continue
		}
		newPeak := 0
		for d := 0; d < s.inst.WeekDays; d++ {
			l := s.loads[d]
			if mask&(1<<uint(d)) != 0 {
				l++
				s.loads[d] = l
			}
			if l > newPeak {
				newPeak = l
			}
		}
		covered := false
		if si.group != nil {
			if si.capable {
				si.group.remaining--
			}
			if si.group.covers(mask) {
				si.group.satisfied++
				covered = true
			}
		}
		s.cur[idx] = mask

		if newPeak < s.bestPeak {
			s.search(idx+1, remaining-f)
		}

		if si.group != nil {
			if si.capable {
				si.group.remaining++
			}
			if covered {
				si.group.satisfied--
			}
		}
		for d := 0; d < s.inst.WeekDays; d++ {
			if mask&(1<<uint(d)) != 0 {
				s.loads[d]--
			}
		}
		if s.timedOut {
			return
		}
		if s.bestPeak <= s.lbTotal {
			return
		}
	}
}
