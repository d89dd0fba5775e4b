// Package travel holds the road/walking travel matrix consumed by the daily
// router. Rows exist only for point pairs within the pruning radius of the
// matrix provider; the BASE sentinel is a fantom origin with zero-cost arcs.
package travel

import (
	"fmt"
	"math"
	"sort"
)

// BasePoint is the sentinel point-id of the fantom BASE node.
const BasePoint = "BASE"

// Key addresses one directed arc of the matrix.
type Key struct {
	From string
	To   string
}

// Matrix is the travel matrix of one branch for one modality.
type Matrix struct {
	Branch string
	dist   map[Key]int // meters
	dur    map[Key]int // seconds
}

// Set holds the per-branch matrices of both transport modes. Walking is
// optional; providers often ship road rows only, and the router falls back
// to distance-derived walking times for branches without walking rows.
type Set struct {
	Driving map[string]*Matrix
	Walking map[string]*Matrix
}

// NewMatrix creates an empty matrix for a branch.
func NewMatrix(branch string) *Matrix {
	return &Matrix{
		Branch: branch,
		dist:   make(map[Key]int),
		dur:    make(map[Key]int),
	}
}

// Add registers a directed arc.
func (m *Matrix) Add(from, to string, distM, durS int) {
	k := Key{From: from, To: to}
	m.dist[k] = distM
	m.dur[k] = durS
}

// Len returns the number of stored arcs.
func (m *Matrix) Len() int {
	return len(m.dist)
}

// Arc returns distance (m) and duration (s) for an arc. Arcs touching BASE
// and self-arcs are zero by construction. ok is false when the pair is
// absent from the matrix.
func (m *Matrix) Arc(from, to string) (distM, durS int, ok bool) {
	if from == BasePoint || to == BasePoint || from == to {
		return 0, 0, true
	}
	k := Key{From: from, To: to}
	d, okD := m.dist[k]
	t, okT := m.dur[k]
	if !okD || !okT {
		return 0, 0, false
	}
	return d, t, true
}

// RawArc looks up a stored arc without the BASE and self-arc shortcuts.
// Used when depot legs carry real matrix rows and the caller wants them.
func (m *Matrix) RawArc(from, to string) (distM, durS int, ok bool) {
	k := Key{From: from, To: to}
	d, okD := m.dist[k]
	t, okT := m.dur[k]
	if !okD || !okT {
		return 0, 0, false
	}
	return d, t, true
}

// MissingPairError names a pair the solver needed but the matrix lacks.
type MissingPairError struct {
	Branch string
	From   string
	To     string
}

func (e *MissingPairError) Error() string {
	return fmt.Sprintf("travel matrix for branch %s has no pair %s -> %s", e.Branch, e.From, e.To)
}

// ApplyTrafficFactor scales every stored duration by the branch traffic
// multiplier, rounding to whole seconds.
func (m *Matrix) ApplyTrafficFactor(factor float64) {
	if factor == 1 {
		return
	}
	for k, v := range m.dur {
		m.dur[k] = int(math.Round(float64(v) * factor))
	}
}

// InboundDurationPercentile returns the given percentile of all durations
// arriving at point, with linear interpolation between ranks. Zero when the
// point has no inbound arcs.
func (m *Matrix) InboundDurationPercentile(point string, pct int) int {
	var values []float64
	for k, v := range m.dur {
		if k.To == point {
			values = append(values, float64(v))
		}
	}
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	return int(math.Round(percentile(values, float64(pct))))
}

// percentile interpolates linearly between closest ranks of sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
