// Package schedule assigns every asset to a set of weekdays realizing its
// frequency, minimizing the peak daily load per branch.
package schedule

import (
	"math"
	"sort"
)

// Patterns builds the visit-pattern catalog for one frequency on a week of
// weekDays days: every rotation of the equispaced canonical base,
// deduplicated as day sets. Patterns come back sorted, each as an ascending
// day list.
func Patterns(weekDays, freq int) [][]int {
	if freq <= 0 {
		return nil
	}
	if freq >= weekDays {
		all := make([]int, weekDays)
		for d := range all {
			all[d] = d
		}
		return [][]int{all}
	}

	base := make([]int, freq)
	for i := 0; i < freq; i++ {
		base[i] = int(math.Round(float64(i*weekDays)/float64(freq))) % weekDays
	}

	seen := make(map[uint8]bool)
	var out [][]int
	for rot := 0; rot < weekDays; rot++ {
		var mask uint8
		for _, d := range base {
			mask |= 1 << uint((d+rot)%weekDays)
		}
		if seen[mask] {
			continue
		}
		seen[mask] = true
		out = append(out, maskDays(mask, weekDays))
	}
	sort.Slice(out, func(i, j int) bool { return lessDays(out[i], out[j]) })
	return out
}

func maskDays(mask uint8, weekDays int) []int {
	var days []int
	for d := 0; d < weekDays; d++ {
		if mask&(1<<uint(d)) != 0 {
			days = append(days, d)
		}
	}
	return days
}

func daysMask(days []int) uint8 {
	var mask uint8
	for _, d := range days {
		mask |= 1 << uint(d)
	}
	return mask
}

func lessDays(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
