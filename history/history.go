// Package history persists wat runs in SQLite: one row per run, per
// scenario outcome and per regression comparison.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/wat/dbopen"
	"github.com/hazyhaar/wat/idgen"
)

// Schema is applied on open.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	status      TEXT NOT NULL DEFAULT 'running',
	app_url     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scenario_results (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	scenario    TEXT NOT NULL,
	passed      INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	step_id     TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	artifacts   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, scenario)
);

CREATE TABLE IF NOT EXISTS diff_results (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	actor      TEXT NOT NULL,
	tag        TEXT NOT NULL,
	status     TEXT NOT NULL,
	mismatched INTEGER NOT NULL DEFAULT 0,
	width      INTEGER NOT NULL DEFAULT 0,
	height     INTEGER NOT NULL DEFAULT 0,
	diff_path  TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, actor, tag)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// Run statuses.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
)

// ErrNotFound is returned for unknown run IDs.
var ErrNotFound = errors.New("history: not found")

// Run is one `wat run` invocation.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	AppURL     string     `json:"app_url"`
}

// ScenarioResult is the outcome of one scenario in a run.
type ScenarioResult struct {
	Scenario  string        `json:"scenario"`
	Passed    bool          `json:"passed"`
	Error     string        `json:"error,omitempty"`
	StepID    string        `json:"step_id,omitempty"`
	Actor     string        `json:"actor,omitempty"`
	Duration  time.Duration `json:"duration"`
	Artifacts int           `json:"artifacts"`
}

// DiffResult is one regression comparison in a run.
type DiffResult struct {
	Actor      string `json:"actor"`
	Tag        string `json:"tag"`
	Status     string `json:"status"`
	Mismatched int    `json:"mismatched"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	DiffPath   string `json:"diff_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Detail is a run with everything recorded for it.
type Detail struct {
	Run       Run              `json:"run"`
	Scenarios []ScenarioResult `json:"scenarios"`
	Diffs     []DiffResult     `json:"diffs"`
}

// Store reads and writes run history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return New(db), nil
}

// New wraps an open database whose schema is already applied.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun inserts a running run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, appURL string) (string, error) {
	id := idgen.NewRunID()
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO runs (id, started_at, status, app_url) VALUES (?, ?, ?, ?)`,
		id, s.now().UnixMilli(), StatusRunning, appURL)
	if err != nil {
		return "", fmt.Errorf("history: begin run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run with its final status.
func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	res, err := dbopen.Exec(ctx, s.db,
		`UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`,
		s.now().UnixMilli(), status, runID)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history: finish run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// RecordScenario stores a scenario outcome.
func (s *Store) RecordScenario(ctx context.Context, runID string, r ScenarioResult) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT OR REPLACE INTO scenario_results
		 (run_id, scenario, passed, error, step_id, actor, duration_ms, artifacts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Scenario, r.Passed, r.Error, r.StepID, r.Actor, r.Duration.Milliseconds(), r.Artifacts)
	if err != nil {
		return fmt.Errorf("history: record scenario: %w", err)
	}
	return nil
}

// RecordDiffs stores comparison results in one transaction.
func (s *Store) RecordDiffs(ctx context.Context, runID string, diffs []DiffResult) error {
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO diff_results
			 (run_id, actor, tag, status, mismatched, width, height, diff_path, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range diffs {
			if _, err := stmt.ExecContext(ctx, runID, d.Actor, d.Tag, d.Status,
				d.Mismatched, d.Width, d.Height, d.DiffPath, d.Error); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("history: record diffs: %w", err)
	}
	return nil
}

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, app_url FROM runs
		 ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanRun(sc scanner) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &started, &finished, &r.Status, &r.AppURL); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		r.FinishedAt = &t
	}
	return r, nil
}

// Get returns a run with its scenario and diff results.
func (s *Store) Get(ctx context.Context, runID string) (Detail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, app_url FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Detail{}, fmt.Errorf("history: run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return Detail{}, fmt.Errorf("history: get run: %w", err)
	}
	d := Detail{Run: r, Scenarios: []ScenarioResult{}, Diffs: []DiffResult{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT scenario, passed, error, step_id, actor, duration_ms, artifacts
		 FROM scenario_results WHERE run_id = ? ORDER BY scenario`, runID)
	if err != nil {
		return Detail{}, fmt.Errorf("history: scenarios: %w", err)
	}
	for rows.Next() {
		var (
			sr ScenarioResult
			ms int64
		)
		if err := rows.Scan(&sr.Scenario, &sr.Passed, &sr.Error, &sr.StepID, &sr.Actor, &ms, &sr.Artifacts); err != nil {
			rows.Close()
			return Detail{}, fmt.Errorf("history: scan scenario: %w", err)
		}
		sr.Duration = time.Duration(ms) * time.Millisecond
		d.Scenarios = append(d.Scenarios, sr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Detail{}, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT actor, tag, status, mismatched, width, height, diff_path, error
		 FROM diff_results WHERE run_id = ? ORDER BY actor, tag`, runID)
	if err != nil {
		return Detail{}, fmt.Errorf("history: diffs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dr DiffResult
		if err := rows.Scan(&dr.Actor, &dr.Tag, &dr.Status, &dr.Mismatched,
			&dr.Width, &dr.Height, &dr.DiffPath, &dr.Error); err != nil {
			return Detail{}, fmt.Errorf("history: scan diff: %w", err)
		}
		d.Diffs = append(d.Diffs, dr)
	}
	return d, rows.Err()
}

// Latest returns the most recent run, or ErrNotFound when none exists.
func (s *Store) Latest(ctx context.Context) (Detail, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil {
		return Detail{}, err
	}
	if len(runs) == 0 {
		return Detail{}, ErrNotFound
	}
	return s.Get(ctx, runs[0].ID)
}
