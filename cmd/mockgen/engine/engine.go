// Package engine generates a synthetic but coherent planning input set:
// partners with opening windows, assets with SKUs, weeks of consumption
// history, a point mapping and an all-pairs driving matrix.
package engine

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type GeneratorConfig struct {
	Branches int
	Partners int
	Weeks    int
	Seed     int64
}

type partner struct {
	branch     string
	code       string
	open       string
	close      string
	lat, lon   float64
	entryMin   int
	supervisor string
	fixed      string
	point      string
}

type asset struct {
	branch, partner, code string
	serviceMin            int
	daysPerWeek           int
	minFreq, curFreq      int
	split                 string
}

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}

func Generate(cfg GeneratorConfig, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	var partners []partner
	var assets []asset
	skuRows := [][]string{{"branch", "partner", "asset", "sku", "capacity", "reposition_level"}}
	consRows := [][]string{{"branch", "partner", "asset", "sku", "start_date", "end_date", "consumed"}}

	historyEnd := time.Now().Truncate(24 * time.Hour)

	for b := 0; b < cfg.Branches; b++ {
		branch := fmt.Sprintf("B%02d", b+1)
		baseLat := -23.55 + float64(b)*0.8
		baseLon := -46.63 + float64(b)*0.5

		for p := 0; p < cfg.Partners; p++ {
			code := fmt.Sprintf("P%s%04d", branch, p+1)
			closeHour := 16 + rng.Intn(5)
			fixed := ""
			if rng.Float64() < 0.1 {
				fixed = weekdays[rng.Intn(len(weekdays))]
			}
			pt := partner{
				branch:     branch,
				code:       code,
				open:       "08:00:00",
				close:      fmt.Sprintf("%02d:00:00", closeHour),
				lat:        baseLat + rng.Float64()*0.2 - 0.1,
				lon:        baseLon + rng.Float64()*0.2 - 0.1,
				entryMin:   3 + rng.Intn(6),
				supervisor: fmt.Sprintf("S%d", 1+p%2),
				fixed:      fixed,
				point:      fmt.Sprintf("pt%s%04d", branch, p+1),
			}
			partners = append(partners, pt)

			nAssets := 1 + rng.Intn(3)
			for a := 0; a < nAssets; a++ {
				split := "N"
				if rng.Float64() < 0.2 {
					split = "S"
				}
				dpw := 5
				if rng.Float64() < 0.15 {
					dpw = 6
				}
				as := asset{
					branch:      branch,
					partner:     code,
					code:        fmt.Sprintf("A%s%04d%d", branch, p+1, a+1),
					serviceMin:  8 + rng.Intn(13),
					daysPerWeek: dpw,
					minFreq:     1,
					curFreq:     1 + rng.Intn(3),
					split:       split,
				}
				assets = append(assets, as)

				nSKUs := 2 + rng.Intn(3)
				for k := 0; k < nSKUs; k++ {
					sku := fmt.Sprintf("K%02d", k+1)
					capacity := 20 + rng.Intn(41)
					level := 0.1 + rng.Float64()*0.2
					skuRows = append(skuRows, []string{
						branch, code, as.code, sku,
						strconv.Itoa(capacity),
						strconv.FormatFloat(level, 'f', 2, 64),
					})
					// Weekly draw around one to three fills per week.
					rate := float64(capacity) * (0.4 + rng.Float64()*2.2)
					for w := cfg.Weeks; w > 0; w-- {
						start := historyEnd.AddDate(0, 0, -7*w)
						end := start.AddDate(0, 0, 7)
						consumed := rate * (0.8 + rng.Float64()*0.4)
						consRows = append(consRows, []string{
							branch, code, as.code, sku,
							start.Format("2006-01-02"), end.Format("2006-01-02"),
							strconv.FormatFloat(consumed, 'f', 1, 64),
						})
					}
				}
			}
		}
	}

	partnerRows := [][]string{{"branch", "partner", "open_time", "close_time", "lat", "lon", "entry_time_min", "supervisor", "fixed_weekday"}}
	pointRows := [][]string{{"branch", "partner", "point_id", "lat", "lon"}}
	for _, p := range partners {
		partnerRows = append(partnerRows, []string{
			p.branch, p.code, p.open, p.close,
			strconv.FormatFloat(p.lat, 'f', 6, 64), strconv.FormatFloat(p.lon, 'f', 6, 64),
			strconv.Itoa(p.entryMin), p.supervisor, p.fixed,
		})
		pointRows = append(pointRows, []string{
			p.branch, p.code, p.point,
			strconv.FormatFloat(p.lat, 'f', 6, 64), strconv.FormatFloat(p.lon, 'f', 6, 64),
		})
	}

	assetRows := [][]string{{"branch", "partner", "asset", "service_time_min", "days_per_week", "min_frequency", "current_frequency", "split_eligible"}}
	for _, a := range assets {
		assetRows = append(assetRows, []string{
			a.branch, a.partner, a.code,
			strconv.Itoa(a.serviceMin), strconv.Itoa(a.daysPerWeek),
			strconv.Itoa(a.minFreq), strconv.Itoa(a.curFreq), a.split,
		})
	}

	travelRows := [][]string{{"branch", "point_i", "point_j", "distance_m", "duration_s"}}
	for i, a := range partners {
		for j, b := range partners {
			if i == j || a.branch != b.branch {
				continue
			}
			// Road factor over the crow-flight distance, 30 km/h average.
			dist := int(haversineM(a.lat, a.lon, b.lat, b.lon) * 1.3)
			dur := int(float64(dist) / (30.0 / 3.6))
			travelRows = append(travelRows, []string{
				a.branch, a.point, b.point, strconv.Itoa(dist), strconv.Itoa(dur),
			})
		}
	}

	files := map[string][][]string{
		"partners.csv":       partnerRows,
		"assets.csv":         assetRows,
		"skus.csv":           skuRows,
		"consumption.csv":    consRows,
		"points.csv":         pointRows,
		"travel_driving.csv": travelRows,
	}
	for name, rows := range files {
		if err := writeCSV(filepath.Join(outDir, name), rows); err != nil {
			return err
		}
	}
	return writeParams(cfg, outDir)
}

func writeParams(cfg GeneratorConfig, outDir string) error {
	type branchParams struct {
		TrafficFactor float64 `json:"traffic_factor"`
		MaxTimeHours  float64 `json:"max_time_h"`
		MaxDistKM     float64 `json:"max_dist_km"`
	}
	branches := make(map[string]branchParams, cfg.Branches)
	for b := 0; b < cfg.Branches; b++ {
		branches[fmt.Sprintf("B%02d", b+1)] = branchParams{
			TrafficFactor: 1.1,
			MaxTimeHours:  8,
			MaxDistKM:     60,
		}
	}
	params := map[string]any{
		"weekly_days": 5,
		"branches":    branches,
	}
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "params.json"), data, 0644)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6371000.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * r * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
