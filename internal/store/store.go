// Package store persists run history in a local SQLite database so
// consecutive plans can be compared.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"fieldplan/internal/model"
	"fieldplan/internal/pipeline"
)

// Store wraps the SQLite run-history database.
type Store struct {
	sql *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &Store{sql: sqlDB}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	log.Debug().Str("path", path).Msg("Run history database opened")
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sql.Close()
}

func (s *Store) migrate() error {
	version := 0
	s.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := s.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS runs (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				label       TEXT NOT NULL,
				started_at  TEXT NOT NULL,
				finished_at TEXT NOT NULL,
				assets      INTEGER NOT NULL,
				routes      INTEGER NOT NULL,
				agents      INTEGER NOT NULL,
				warnings    INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS run_frequencies (
				run_id     INTEGER NOT NULL REFERENCES runs(id),
				branch     TEXT NOT NULL,
				partner    TEXT NOT NULL,
				asset      TEXT NOT NULL,
				current    INTEGER NOT NULL,
				min        INTEGER NOT NULL,
				reposition INTEGER NOT NULL,
				final      INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_freq_run ON run_frequencies(run_id);

			CREATE TABLE IF NOT EXISTS run_routes (
				run_id     INTEGER NOT NULL REFERENCES runs(id),
				name       TEXT NOT NULL,
				branch     TEXT NOT NULL,
				day        INTEGER NOT NULL,
				supervisor TEXT NOT NULL,
				modality   TEXT NOT NULL,
				scale      TEXT NOT NULL,
				hours      REAL NOT NULL,
				fte        REAL NOT NULL,
				dist_km    REAL NOT NULL,
				visits     INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_routes_run ON run_routes(run_id);

			CREATE TABLE IF NOT EXISTS run_agents (
				run_id     INTEGER NOT NULL REFERENCES runs(id),
				name       TEXT NOT NULL,
				branch     TEXT NOT NULL,
				supervisor TEXT NOT NULL,
				modality   TEXT NOT NULL,
				scale      TEXT NOT NULL,
				fte        REAL NOT NULL,
				week       TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_agents_run ON run_agents(run_id);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		log.Debug().Msg("Applied migration v1")
	}
	return nil
}

// SaveRun records the plan under a new run id inside one transaction.
func (s *Store) SaveRun(ctx context.Context, label string, startedAt time.Time, plan *pipeline.Plan) (int64, error) {
	tx, err := s.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	warnings := 0
	for _, d := range plan.Diags {
		if d.Level == model.DiagWarn {
			warnings++
		}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (label, started_at, finished_at, assets, routes, agents, warnings)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		label,
		startedAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		len(plan.Frequencies), len(plan.Routes), len(plan.Agents), warnings)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	freqStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_frequencies (run_id, branch, partner, asset, current, min, reposition, final)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare frequencies: %w", err)
	}
	defer freqStmt.Close()
	for _, f := range plan.Frequencies {
		if _, err := freqStmt.ExecContext(ctx, runID, f.Branch, f.Partner.String(), f.Asset.String(),
			f.Current, f.Min, f.Reposition, f.Final); err != nil {
			return 0, fmt.Errorf("insert frequency: %w", err)
		}
	}

	routeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_routes (run_id, name, branch, day, supervisor, modality, scale, hours, fte, dist_km, visits)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare routes: %w", err)
	}
	defer routeStmt.Close()
	for _, r := range plan.Routes {
		if _, err := routeStmt.ExecContext(ctx, runID, r.Name, r.Branch, r.Day+1, r.Supervisor,
			string(r.Modality), r.Tier,
			float64(r.Total())/3600, r.FTE, float64(r.DistM)/1000, len(r.Visits)); err != nil {
			return 0, fmt.Errorf("insert route: %w", err)
		}
	}

	agentStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_agents (run_id, name, branch, supervisor, modality, scale, fte, week)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare agents: %w", err)
	}
	defer agentStmt.Close()
	for _, a := range plan.Agents {
		if _, err := agentStmt.ExecContext(ctx, runID, a.Name, a.Branch, a.Supervisor,
			string(a.Modality), a.Tier, a.FTE, weekSpec(a.Routes)); err != nil {
			return 0, fmt.Errorf("insert agent: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	log.Info().Int64("run_id", runID).Str("label", label).Msg("Run saved")
	return runID, nil
}

// RunSummary is one row of the run history listing.
type RunSummary struct {
	ID        int64
	Label     string
	StartedAt string
	Assets    int
	Routes    int
	Agents    int
	Warnings  int
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.sql.QueryContext(ctx,
		`SELECT id, label, started_at, assets, routes, agents, warnings
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Label, &r.StartedAt, &r.Assets, &r.Routes, &r.Agents, &r.Warnings); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// weekSpec flattens the weekday->route map as "0=name,2=name".
func weekSpec(routes map[int]string) string {
	days := make([]int, 0, len(routes))
	for d := range routes {
		days = append(days, d)
	}
	sort.Ints(days)
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, fmt.Sprintf("%d=%s", d, routes[d]))
	}
	return strings.Join(parts, ",")
}
