package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"fieldplan/internal/model"
	"fieldplan/internal/travel"
)

// Input file names under the input directory.
const (
	PartnersFile    = "partners.csv"
	AssetsFile      = "assets.csv"
	SKUsFile        = "skus.csv"
	ConsumptionFile = "consumption.csv"
	PointsFile      = "points.csv"
	DrivingFile     = "travel_driving.csv"
	WalkingFile     = "travel_walking.csv"
)

// LoadSnapshot reads the partner/asset/consumption tables from dir and
// returns them as one immutable snapshot, canonically ordered. branches is
// the configured branch set; rows naming an unknown branch are rejected.
func LoadSnapshot(dir string, branches map[string]model.Branch) (*model.Snapshot, error) {
	snap := &model.Snapshot{Branches: branches}

	err := forEachRow(filepath.Join(dir, PartnersFile),
		[]string{"branch", "partner", "open_time", "close_time", "lat", "lon", "entry_time_min", "supervisor", "fixed_weekday"},
		func(t *table) error {
			branch, err := t.str("branch")
			if err != nil {
				return err
			}
			if _, ok := branches[branch]; !ok {
				return t.errf("unknown branch %s", branch)
			}
			code, err := t.code("partner")
			if err != nil {
				return err
			}
			open, err := t.clock("open_time")
			if err != nil {
				return err
			}
			close, err := t.clock("close_time")
			if err != nil {
				return err
			}
			if close <= open {
				// Window crosses midnight.
				close += 24 * 3600
			}
			lat, err := t.float("lat")
			if err != nil {
				return err
			}
			lon, err := t.float("lon")
			if err != nil {
				return err
			}
			entryMin, err := t.float("entry_time_min")
			if err != nil {
				return err
			}
			supervisor, err := t.str("supervisor")
			if err != nil {
				return err
			}
			fixed, err := t.weekday("fixed_weekday")
			if err != nil {
				return err
			}
			snap.Partners = append(snap.Partners, model.Partner{
				Branch:       branch,
				Code:         code,
				Open:         open,
				Close:        close,
				EntryTime:    int(entryMin * 60),
				Lat:          lat,
				Lon:          lon,
				Supervisor:   supervisor,
				FixedWeekday: fixed,
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	partners := snap.PartnerByCode()

	err = forEachRow(filepath.Join(dir, AssetsFile),
		[]string{"branch", "partner", "asset", "service_time_min", "days_per_week", "min_frequency", "current_frequency", "split_eligible"},
		func(t *table) error {
			branch, err := t.str("branch")
			if err != nil {
				return err
			}
			partner, err := t.code("partner")
			if err != nil {
				return err
			}
			if _, ok := partners[branch][partner]; !ok {
				return t.errf("asset references unknown partner %s in branch %s", partner, branch)
			}
			code, err := t.code("asset")
			if err != nil {
				return err
			}
			serviceMin, err := t.float("service_time_min")
			if err != nil {
				return err
			}
			dpw, err := t.int("days_per_week")
			if err != nil {
				return err
			}
			if dpw != 5 && dpw != 6 {
				return t.errf("days_per_week must be 5 or 6, got %d", dpw)
			}
			fmin, err := t.int("min_frequency")
			if err != nil {
				return err
			}
			fcur, err := t.int("current_frequency")
			if err != nil {
				return err
			}
			split, err := t.flagSN("split_eligible")
			if err != nil {
				return err
			}
			snap.Assets = append(snap.Assets, model.Asset{
				Branch:           branch,
				Partner:          partner,
				Code:             code,
				ServiceTime:      int(serviceMin * 60),
				DaysPerWeek:      dpw,
				MinFrequency:     fmin,
				CurrentFrequency: fcur,
				SplitEligible:    split,
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = forEachRow(filepath.Join(dir, SKUsFile),
		[]string{"branch", "partner", "asset", "sku", "capacity", "reposition_level"},
		func(t *table) error {
			branch, err := t.str("branch")
			if err != nil {
				return err
			}
			partner, err := t.code("partner")
			if err != nil {
				return err
			}
			asset, err := t.code("asset")
			if err != nil {
				return err
			}
			sku, err := t.str("sku")
			if err != nil {
				return err
			}
			capacity, err := t.float("capacity")
			if err != nil {
				return err
			}
			level, err := t.float("reposition_level")
			if err != nil {
				return err
			}
			if level < 0 || level >= 1 {
				return t.errf("reposition_level must be in [0,1), got %g", level)
			}
			snap.SKUs = append(snap.SKUs, model.SKULine{
				Branch:          branch,
				Partner:         partner,
				Asset:           asset,
				SKU:             sku,
				Capacity:        capacity,
				RepositionLevel: level,
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = forEachRow(filepath.Join(dir, ConsumptionFile),
		[]string{"branch", "partner", "asset", "sku", "start_date", "end_date", "consumed"},
		func(t *table) error {
			branch, err := t.str("branch")
			if err != nil {
				return err
			}
			partner, err := t.code("partner")
			if err != nil {
				return err
			}
			asset, err := t.code("asset")
			if err != nil {
				return err
			}
			sku, err := t.str("sku")
			if err != nil {
				return err
			}
			start, err := t.date("start_date")
			if err != nil {
				return err
			}
			end, err := t.date("end_date")
			if err != nil {
				return err
			}
			if end.Before(start) {
				return t.errf("end_date precedes start_date")
			}
			consumed, err := t.float("consumed")
			if err != nil {
				return err
			}
			snap.Consumption = append(snap.Consumption, model.ConsumptionRecord{
				Branch:   branch,
				Partner:  partner,
				Asset:    asset,
				SKU:      sku,
				Start:    start,
				End:      end,
				Consumed: consumed,
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	err = forEachRow(filepath.Join(dir, PointsFile),
		[]string{"branch", "partner", "point_id", "lat", "lon"},
		func(t *table) error {
			branch, err := t.str("branch")
			if err != nil {
				return err
			}
			partner, err := t.code("partner")
			if err != nil {
				return err
			}
			if _, ok := partners[branch][partner]; !ok {
				return t.errf("point mapping references unknown partner %s in branch %s", partner, branch)
			}
			pointID, err := t.str("point_id")
			if err != nil {
				return err
			}
			lat, err := t.float("lat")
			if err != nil {
				return err
			}
			lon, err := t.float("lon")
			if err != nil {
				return err
			}
			snap.Points = append(snap.Points, model.PointRef{
				Branch:  branch,
				Partner: partner,
				PointID: pointID,
				Lat:     lat,
				Lon:     lon,
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	sortSnapshot(snap)
	log.Info().
		Int("partners", len(snap.Partners)).
		Int("assets", len(snap.Assets)).
		Int("sku_lines", len(snap.SKUs)).
		Int("consumption_rows", len(snap.Consumption)).
		Msg("Loaded planning snapshot")
	return snap, nil
}

// sortSnapshot applies the canonical ordering the pipeline depends on for
// deterministic output.
func sortSnapshot(s *model.Snapshot) {
	sort.Slice(s.Partners, func(i, j int) bool {
		if s.Partners[i].Branch != s.Partners[j].Branch {
			return s.Partners[i].Branch < s.Partners[j].Branch
		}
		return s.Partners[i].Code.String() < s.Partners[j].Code.String()
	})
	sort.Slice(s.Assets, func(i, j int) bool {
		a, b := s.Assets[i], s.Assets[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if a.Partner.String() != b.Partner.String() {
			return a.Partner.String() < b.Partner.String()
		}
		return a.Code.String() < b.Code.String()
	})
	sort.Slice(s.SKUs, func(i, j int) bool {
		a, b := s.SKUs[i], s.SKUs[j]
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if a.Asset.String() != b.Asset.String() {
			return a.Asset.String() < b.Asset.String()
		}
		return a.SKU < b.SKU
	})
	sort.Slice(s.Points, func(i, j int) bool {
		if s.Points[i].Branch != s.Points[j].Branch {
			return s.Points[i].Branch < s.Points[j].Branch
		}
		return s.Points[i].Partner.String() < s.Points[j].Partner.String()
	})
}

// LoadTravel reads one per-modality travel matrix file into per-branch
// matrices. Durations are stored raw; the router applies the branch traffic
// factor.
func LoadTravel(path string, branches map[string]model.Branch) (map[string]*travel.Matrix, error) {
	out := make(map[string]*travel.Matrix)
	err := forEachRow(path,
		[]string{"branch", "point_i", "point_j", "distance_m", "duration_s"},
		func(t *table) error {
			branch, err := t.str("branch")
			if err != nil {
				return err
			}
			if _, ok := branches[branch]; !ok {
				return t.errf("unknown branch %s", branch)
			}
			from, err := t.str("point_i")
			if err != nil {
				return err
			}
			to, err := t.str("point_j")
			if err != nil {
				return err
			}
			dist, err := t.int("distance_m")
			if err != nil {
				return err
			}
			dur, err := t.int("duration_s")
			if err != nil {
				return err
			}
			if dist < 0 || dur < 0 {
				return t.errf("negative distance or duration")
			}
			m, ok := out[branch]
			if !ok {
				m = travel.NewMatrix(branch)
				out[branch] = m
			}
			m.Add(from, to, dist, dur)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadTravelSet loads the driving matrix and, when present, the walking
// matrix from dir.
func LoadTravelSet(dir string, branches map[string]model.Branch) (travel.Set, error) {
	var set travel.Set

	driving, err := LoadTravel(filepath.Join(dir, DrivingFile), branches)
	if err != nil {
		return set, err
	}
	set.Driving = driving

	walkingPath := filepath.Join(dir, WalkingFile)
	if _, err := os.Stat(walkingPath); err == nil {
		walking, err := LoadTravel(walkingPath, branches)
		if err != nil {
			return set, err
		}
		set.Walking = walking
	} else {
		log.Debug().Str("path", walkingPath).Msg("No walking matrix, walking times derived from distance")
	}

	for branch, m := range set.Driving {
		log.Debug().Str("branch", branch).Int("arcs", m.Len()).Msg("Loaded driving matrix")
	}
	for branch, m := range set.Walking {
		log.Debug().Str("branch", branch).Int("arcs", m.Len()).Msg("Loaded walking matrix")
	}
	return set, nil
}

// Check verifies the cross-table references the solver will rely on, so a
// run fails before solving rather than mid-flight.
func Check(snap *model.Snapshot) error {
	points := snap.PointByPartner()
	for _, p := range snap.Partners {
		if _, ok := points[p.Branch][p.Code]; !ok {
			return fmt.Errorf("partner %s in branch %s has no point mapping", p.Code, p.Branch)
		}
	}
	return nil
}
