package model

// Modality is the transport mode of a route.
type Modality string

const (
	Driving Modality = "driving"
	Walking Modality = "walking"
)

// FullTime is the sentinel scale tier used when no configured tier fits.
const FullTime = "Full-Time"

// Frequency is the S1 output for one asset. Consumption is the raw
// consumption-based value (post-split for A/B halves); Reposition caps it by
// calendar and current operations; Final applies the minimum-frequency floor.
type Frequency struct {
	Branch      string
	Partner     Code
	Asset       Code
	Current     int
	Min         int
	Consumption int
	Reposition  int
	Final       int
}

// Assignment is the S2 output for one asset: the chosen visit days.
type Assignment struct {
	Branch    string
	Partner   Code
	Asset     Code
	Frequency int
	Days      []int // sorted weekday indices, len == Frequency
}

// Group is a bucket of same-partner assets serviced together on one day.
// Groups are the atomic clients of the daily router.
type Group struct {
	ID         string
	Branch     string
	Day        int
	Supervisor string
	Partner    Code
	Assets     []Code
	Services   []int // per-asset service seconds, parallel to Assets
	Service    int   // total service time, seconds
	Entry      int   // partner entry time, seconds
	Open       int
	Close      int
	PointID    string
	Lat        float64
	Lon        float64
	WeekDemand int // sum of frequency*service over members, seconds
	WeekVisits int // sum of frequencies over members
}

// Visit is one stop of a route. Travel and entry are charged on the inbound
// leg; both are zero when the previous stop belongs to the same partner.
type Visit struct {
	Ordinal int
	Group   string
	Partner Code
	Asset   Code
	DistM   int
	Travel  int // seconds
	Service int // seconds
	Entry   int // seconds
}

// Route is an ordered sequence of grouped visits for one vehicle on one day.
type Route struct {
	Name       string
	Branch     string
	Day        int
	Supervisor string
	Modality   Modality
	Tier       string
	TierHours  int     // seconds of the assigned tier
	FTE        float64 // TierHours / daily cap
	Visits     []Visit
	DistM      int
	Service    int // seconds
	Travel     int // seconds, modality-adjusted
	Entry      int // seconds
	Lat        float64 // centroid of visited partners
	Lon        float64
}

// Total returns service + entry + travel in seconds.
func (r *Route) Total() int {
	return r.Service + r.Entry + r.Travel
}

// AssetSet returns the distinct assets visited by the route.
func (r *Route) AssetSet() map[Code]bool {
	set := make(map[Code]bool, len(r.Visits))
	for _, v := range r.Visits {
		set[v.Asset] = true
	}
	return set
}

// Agent owns a weekly bundle of routes, at most one per weekday.
type Agent struct {
	Name       string
	Branch     string
	Supervisor string
	Modality   Modality
	Tier       string
	TierHours  int
	FTE        float64
	Routes     map[int]string // weekday -> route name
}
