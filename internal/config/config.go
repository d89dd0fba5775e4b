package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"fieldplan/internal/model"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds paths and planner parameters for one run.
type AppConfig struct {
	InputDir  string
	OutputDir string
	DataPath  string
	LogDir    string
	Params    Params
}

// BranchParams are the per-branch solver caps from the config file.
type BranchParams struct {
	TrafficFactor float64 `json:"traffic_factor"`
	MaxTimeHours  float64 `json:"max_time_h"`
	MaxDistKM     float64 `json:"max_dist_km"`
}

// Params are the planner knobs. Units in the file are human (hours, km);
// the accessors convert to the seconds/meters the engine works in.
type Params struct {
	WeeklyDays         int                     `json:"weekly_days"`
	Branches           map[string]BranchParams `json:"branches"`
	ScaleTiers         map[string]float64      `json:"scale_tiers"` // name -> hours/day
	SolverTimeLimitSec int                     `json:"solver_time_limit_s"`
	ModalityMargin     float64                 `json:"modality_margin"`
	SaturdayCapHours   float64                 `json:"saturday_cap_h"`
	SplitGapHours      float64                 `json:"split_gap_h"`
	SplitFactor        float64                 `json:"split_factor"`
	WeeklyBudgetHours  float64                 `json:"weekly_budget_h"`
	TravelPercentile   int                     `json:"travel_percentile"`
	SweepVisitMin      int                     `json:"sweep_visit_min"`
	RepositionLevel    *float64                `json:"reposition_level,omitempty"`
	Flex               *int                    `json:"flexibility,omitempty"`
	WalkingBaseCost    bool                    `json:"walking_base_cost"`
}

// Load resolves paths from .env/environment, following the same layering as
// the rest of our tools: binary directory first, then working directory.
func Load() (*AppConfig, error) {
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := filepath.Join(dataPath, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", logDir).Msg("Failed to create log directory")
	}

	cfg := &AppConfig{
		InputDir:  getEnv("INPUT_DIR", filepath.Join(dataPath, "input")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(dataPath, "output")),
		DataPath:  dataPath,
		LogDir:    logDir,
		Params:    DefaultParams(),
	}
	return cfg, nil
}

// DefaultParams mirrors the defaults of the original planning workbook.
func DefaultParams() Params {
	return Params{
		WeeklyDays: 5,
		ScaleTiers: map[string]float64{
			"RPA 2H":    2,
			"RPA 3H":    3,
			"Part-Time": 6,
			"Full-Time": 8,
		},
		SolverTimeLimitSec: 180,
		ModalityMargin:     0.10,
		SaturdayCapHours:   4,
		SplitGapHours:      3,
		SplitFactor:        1.5,
		WeeklyBudgetHours:  44,
		TravelPercentile:   50,
		SweepVisitMin:      5,
		WalkingBaseCost:    false,
	}
}

// LoadParams reads and validates the planner config file, filling defaults
// for absent fields.
func (c *AppConfig) LoadParams(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	p := DefaultParams()
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	c.Params = p
	return nil
}

// Validate checks the cross-field constraints the engine relies on.
func (p *Params) Validate() error {
	if p.WeeklyDays != 5 && p.WeeklyDays != 6 {
		return fmt.Errorf("weekly_days must be 5 or 6, got %d", p.WeeklyDays)
	}
	if len(p.Branches) == 0 {
		return fmt.Errorf("no branches configured")
	}
	for name, b := range p.Branches {
		if b.TrafficFactor < 1 {
			return fmt.Errorf("branch %s: traffic_factor must be >= 1, got %g", name, b.TrafficFactor)
		}
		if b.MaxTimeHours <= 0 || b.MaxDistKM <= 0 {
			return fmt.Errorf("branch %s: max_time_h and max_dist_km must be positive", name)
		}
	}
	if p.RepositionLevel != nil && (*p.RepositionLevel < 0 || *p.RepositionLevel >= 1) {
		return fmt.Errorf("reposition_level must be in [0,1), got %g", *p.RepositionLevel)
	}
	if p.ModalityMargin < 0 {
		return fmt.Errorf("modality_margin must be >= 0, got %g", p.ModalityMargin)
	}
	if p.TravelPercentile < 0 || p.TravelPercentile > 100 {
		return fmt.Errorf("travel_percentile must be in [0,100], got %d", p.TravelPercentile)
	}
	return nil
}

// Branch converts the per-branch parameters to engine units.
func (p *Params) Branch(name string) (model.Branch, bool) {
	bp, ok := p.Branches[name]
	if !ok {
		return model.Branch{}, false
	}
	return model.Branch{
		Name:          name,
		TrafficFactor: bp.TrafficFactor,
		MaxTime:       int(math.Round(bp.MaxTimeHours * 3600)),
		MaxDist:       int(bp.MaxDistKM * 1000),
	}, true
}

// SaturdayCap returns the Saturday route-time cap in seconds.
func (p *Params) SaturdayCap() int {
	return int(math.Round(p.SaturdayCapHours * 3600))
}

// SplitGap returns the A/B window gap in seconds.
func (p *Params) SplitGap() int {
	return int(math.Round(p.SplitGapHours * 3600))
}

// WeeklyBudget returns the weekly work budget in seconds.
func (p *Params) WeeklyBudget() int {
	return int(math.Round(p.WeeklyBudgetHours * 3600))
}

// Tier is one configured workday scale, in seconds.
type Tier struct {
	Name    string
	Seconds int
}

// TiersAscending returns the scale tiers sorted by length.
func (p *Params) TiersAscending() []Tier {
	tiers := make([]Tier, 0, len(p.ScaleTiers))
	for name, h := range p.ScaleTiers {
		tiers = append(tiers, Tier{Name: name, Seconds: int(math.Round(h * 3600))})
	}
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].Seconds != tiers[j].Seconds {
			return tiers[i].Seconds < tiers[j].Seconds
		}
		return tiers[i].Name < tiers[j].Name
	})
	return tiers
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
