// Package frequency derives visit frequencies per asset from measured
// consumption, and rewrites overloaded split-eligible assets into A/B
// halves hosted at synthetic partners with partitioned opening windows.
package frequency

import (
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"fieldplan/internal/model"
)

// Options are the frequency-engine knobs for one run.
type Options struct {
	// GlobalReposition overrides the per-SKU reposition level when set.
	GlobalReposition *float64
	// Flex lifts the minimum frequency to current−Flex when set.
	Flex *int
	// StandardizePartner overwrites every asset frequency with the partner max.
	StandardizePartner bool
	// Split enables A/B rewriting of overloaded assets.
	Split bool
	// SplitFactor is the overload threshold on days-per-week (typical 1.5).
	SplitFactor float64
	// SplitGap is the requested window gap between the A and B halves, seconds.
	SplitGap int
}

// Result is the S1 output: the rewritten population and the per-asset
// frequency records.
type Result struct {
	Snapshot    *model.Snapshot
	Frequencies []model.Frequency
	Diags       []model.Diagnostic
}

type assetKey struct {
	Branch  string
	Partner model.Code
	Asset   model.Code
}

type skuKey struct {
	assetKey
	SKU string
}

// Compute runs the frequency derivation over the snapshot.
func Compute(snap *model.Snapshot, opts Options) (*Result, error) {
	res := &Result{}

	rates := weeklyRates(snap.Consumption)
	fc := consumptionFrequencies(snap.SKUs, rates, opts.GlobalReposition, res)

	type derived struct {
		asset model.Asset
		freq  model.Frequency
		split bool
	}
	out := make([]derived, 0, len(snap.Assets))

	for _, a := range snap.Assets {
		key := assetKey{Branch: a.Branch, Partner: a.Partner, Asset: a.Code}
		fcA := fc[key]

		if opts.Split && a.SplitEligible && float64(fcA) > opts.SplitFactor*float64(a.DaysPerWeek) {
			out = append(out, derived{asset: a, freq: model.Frequency{Consumption: fcA}, split: true})
			continue
		}

		fr := min3(fcA, a.DaysPerWeek, a.CurrentFrequency)
		fmin := a.MinFrequency
		if opts.Flex != nil {
			fmin = max(fmin, a.CurrentFrequency-*opts.Flex)
		}
		final := max(fmin, fr)
		if final > a.DaysPerWeek {
			final = a.DaysPerWeek
		}
		out = append(out, derived{
			asset: a,
			freq: model.Frequency{
				Branch:      a.Branch,
				Partner:     a.Partner,
				Asset:       a.Code,
				Current:     a.CurrentFrequency,
				Min:         a.MinFrequency,
				Consumption: fcA,
				Reposition:  fr,
				Final:       final,
			},
		})
	}

	if opts.StandardizePartner {
		type partnerKey struct {
			Branch  string
			Partner model.Code
		}
		peak := make(map[partnerKey]int)
		for _, d := range out {
			if d.split {
				continue
			}
			k := partnerKey{Branch: d.asset.Branch, Partner: d.asset.Partner}
			if d.freq.Final > peak[k] {
				peak[k] = d.freq.Final
			}
		}
		for i := range out {
			if out[i].split {
				continue
			}
			k := partnerKey{Branch: out[i].asset.Branch, Partner: out[i].asset.Partner}
			out[i].freq.Final = peak[k]
		}
	}

	rewritten := &model.Snapshot{
		Branches:    snap.Branches,
		SKUs:        snap.SKUs,
		Consumption: snap.Consumption,
		Points:      append([]model.PointRef(nil), snap.Points...),
	}
	partnerIndex := snap.PartnerByCode()
	pointIndex := snap.PointByPartner()
	splitPartners := make(map[assetKey]bool) // partners already split, keyed as (branch, partner, partner)

	for _, d := range out {
		if !d.split {
			rewritten.Assets = append(rewritten.Assets, d.asset)
			res.Frequencies = append(res.Frequencies, d.freq)
			continue
		}

		a := d.asset
		fcA := d.freq.Consumption
		fminHalf := (a.MinFrequency + 1) / 2
		log.Info().
			Str("branch", a.Branch).
			Str("asset", a.Code.String()).
			Int("consumption_frequency", fcA).
			Int("days_per_week", a.DaysPerWeek).
			Msg("Splitting overloaded asset into A/B halves")

		pk := assetKey{Branch: a.Branch, Partner: a.Partner, Asset: a.Partner}
		if !splitPartners[pk] {
			splitPartners[pk] = true
			parent := partnerIndex[a.Branch][a.Partner]
			halfA, halfB := splitWindows(parent, opts.SplitGap, res)
			rewritten.Partners = append(rewritten.Partners, halfA, halfB)
			if pointID, ok := pointIndex[a.Branch][a.Partner]; ok {
				rewritten.Points = append(rewritten.Points,
					model.PointRef{Branch: a.Branch, Partner: halfA.Code, PointID: pointID, Lat: parent.Lat, Lon: parent.Lon},
					model.PointRef{Branch: a.Branch, Partner: halfB.Code, PointID: pointID, Lat: parent.Lat, Lon: parent.Lon},
				)
			}
		}

		for _, half := range []struct {
			tag  model.SplitHalf
			freq int
		}{
			{model.SplitA, a.DaysPerWeek},
			{model.SplitB, fcA - a.DaysPerWeek},
		} {
			halfAsset := a
			halfAsset.Code = a.Code.WithHalf(half.tag)
			halfAsset.Partner = a.Partner.WithHalf(half.tag)
			halfAsset.MinFrequency = fminHalf
			halfAsset.SplitEligible = false
			rewritten.Assets = append(rewritten.Assets, halfAsset)
			res.Frequencies = append(res.Frequencies, model.Frequency{
				Branch:      a.Branch,
				Partner:     halfAsset.Partner,
				Asset:       halfAsset.Code,
				Current:     a.CurrentFrequency,
				Min:         fminHalf,
				Consumption: half.freq,
				Reposition:  half.freq,
				Final:       half.freq,
			})
		}
	}

	// Carry over every partner still hosting assets; the parent of a fully
	// split partner disappears with its last asset.
	hosting := make(map[assetKey]bool)
	for _, a := range rewritten.Assets {
		hosting[assetKey{Branch: a.Branch, Partner: a.Partner, Asset: a.Partner}] = true
	}
	for _, p := range snap.Partners {
		if hosting[assetKey{Branch: p.Branch, Partner: p.Code, Asset: p.Code}] {
			rewritten.Partners = append(rewritten.Partners, p)
		}
	}
	sort.Slice(rewritten.Partners, func(i, j int) bool {
		a, b := rewritten.Partners[i], rewritten.Partners[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		return a.Code.String() < b.Code.String()
	})
	sort.Slice(res.Frequencies, func(i, j int) bool {
		a, b := res.Frequencies[i], res.Frequencies[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if a.Partner.String() != b.Partner.String() {
			return a.Partner.String() < b.Partner.String()
		}
		return a.Asset.String() < b.Asset.String()
	})

	res.Snapshot = rewritten
	return res, nil
}

// weeklyRates aggregates consumption into a weekly rate per SKU line:
// total consumed over total weeks, with each interval counting at least one
// day.
func weeklyRates(records []model.ConsumptionRecord) map[skuKey]float64 {
	type agg struct {
		consumed float64
		weeks    float64
	}
	sums := make(map[skuKey]agg)
	for _, r := range records {
		days := int(r.End.Sub(r.Start).Hours() / 24)
		if days < 1 {
			days = 1
		}
		k := skuKey{assetKey: assetKey{Branch: r.Branch, Partner: r.Partner, Asset: r.Asset}, SKU: r.SKU}
		a := sums[k]
		a.consumed += r.Consumed
		a.weeks += float64(days) / 7
		sums[k] = a
	}
	rates := make(map[skuKey]float64, len(sums))
	for k, a := range sums {
		if a.weeks > 0 {
			rates[k] = a.consumed / a.weeks
		}
	}
	return rates
}

// consumptionFrequencies collapses SKU-level frequencies to the asset max.
// A line without consumption contributes zero; a line without a positive
// capacity is dropped with a warning.
func consumptionFrequencies(skus []model.SKULine, rates map[skuKey]float64, globalLevel *float64, res *Result) map[assetKey]int {
	fc := make(map[assetKey]int)
	for _, line := range skus {
		if line.Capacity <= 0 {
			res.Diags = append(res.Diags, model.Diagnostic{
				Level:   model.DiagWarn,
				Stage:   "frequency",
				Branch:  line.Branch,
				Day:     -1,
				Partner: line.Partner.String(),
				Asset:   line.Asset.String(),
				Message: "SKU " + line.SKU + " has no capacity, line dropped",
			})
			continue
		}
		level := line.RepositionLevel
		if globalLevel != nil {
			level = *globalLevel
		}
		k := skuKey{assetKey: assetKey{Branch: line.Branch, Partner: line.Partner, Asset: line.Asset}, SKU: line.SKU}
		f := int(math.Ceil(rates[k] / (line.Capacity * (1 - level))))
		if f > fc[k.assetKey] {
			fc[k.assetKey] = f
		}
	}
	return fc
}

// splitWindows partitions the parent opening window into A and B halves
// separated by a centered gap. A window too narrow for the requested gap is
// reported and the gap shrinks to keep both halves non-empty.
func splitWindows(parent model.Partner, gap int, res *Result) (model.Partner, model.Partner) {
	duration := parent.Close - parent.Open
	if duration <= gap+60 {
		res.Diags = append(res.Diags, model.Diagnostic{
			Level:   model.DiagWarn,
			Stage:   "frequency",
			Branch:  parent.Branch,
			Day:     -1,
			Partner: parent.Code.String(),
			Message: "opening window too narrow for requested split gap, gap reduced",
		})
		gap = duration - 60
		if gap < 0 {
			gap = 0
		}
	}
	mid := parent.Open + (duration-gap)/2

	halfA := parent
	halfA.Code = parent.Code.WithHalf(model.SplitA)
	halfA.Close = mid

	halfB := parent
	halfB.Code = parent.Code.WithHalf(model.SplitB)
	halfB.Open = mid + gap

	return halfA, halfB
}

func min3(a, b, c int) int {
	return min(min(a, b), c)
}
