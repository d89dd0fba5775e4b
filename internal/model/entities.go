package model

import "time"

// Weekday indices run 0=Monday .. 5=Saturday. Saturday only exists on
// six-day branches.
const (
	Monday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// NoFixedWeekday marks a partner without a fixed-delivery weekday.
const NoFixedWeekday = -1

// Branch is an operational region with its own caps and solver parameters.
type Branch struct {
	Name          string
	TrafficFactor float64 // multiplies travel durations, >= 1
	MaxTime       int     // daily work budget, seconds
	MaxDist       int     // daily distance cap, meters
}

// Partner is a physical site hosting assets. Open/Close are seconds since
// the global day origin; windows crossing midnight are normalized on ingest
// by pushing Close into the next day.
type Partner struct {
	Branch       string
	Code         Code
	Open         int
	Close        int
	EntryTime    int // fixed overhead charged when a route enters the site, seconds
	Lat          float64
	Lon          float64
	Supervisor   string
	FixedWeekday int // NoFixedWeekday when absent
}

// Asset is a machine at a partner requiring periodic servicing.
type Asset struct {
	Branch           string
	Partner          Code
	Code             Code
	ServiceTime      int // seconds
	DaysPerWeek      int // 5 or 6
	MinFrequency     int
	CurrentFrequency int
	SplitEligible    bool
}

// SKULine is a consumable stocked at an asset.
type SKULine struct {
	Branch          string
	Partner         Code
	Asset           Code
	SKU             string
	Capacity        float64
	RepositionLevel float64 // target reposition level in [0,1)
}

// ConsumptionRecord is one measured consumption interval for a SKU line.
type ConsumptionRecord struct {
	Branch   string
	Partner  Code
	Asset    Code
	SKU      string
	Start    time.Time
	End      time.Time
	Consumed float64
}

// PointRef maps a partner to its canonical travel-matrix point.
type PointRef struct {
	Branch  string
	Partner Code
	PointID string
	Lat     float64
	Lon     float64
}

// Snapshot is the immutable prepared dataset consumed by the pipeline
// stages. S1 may rewrite the partner/asset population (A/B splits); the
// rewritten snapshot is ground truth for S2-S4.
type Snapshot struct {
	Branches    map[string]Branch
	Partners    []Partner
	Assets      []Asset
	SKUs        []SKULine
	Consumption []ConsumptionRecord
	Points      []PointRef
}

// PartnerByCode builds a lookup keyed by (branch, partner code).
func (s *Snapshot) PartnerByCode() map[string]map[Code]Partner {
	out := make(map[string]map[Code]Partner)
	for _, p := range s.Partners {
		m, ok := out[p.Branch]
		if !ok {
			m = make(map[Code]Partner)
			out[p.Branch] = m
		}
		m[p.Code] = p
	}
	return out
}

// PointByPartner builds a lookup of point-ids keyed by (branch, partner).
func (s *Snapshot) PointByPartner() map[string]map[Code]string {
	out := make(map[string]map[Code]string)
	for _, pt := range s.Points {
		m, ok := out[pt.Branch]
		if !ok {
			m = make(map[Code]string)
			out[pt.Branch] = m
		}
		m[pt.Partner] = pt.PointID
	}
	return out
}
