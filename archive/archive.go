// Package archive provides SQLite-based persistence for solver runs:
// run metadata, per-iteration residual checks, and zstd-compressed
// fixpoint snapshots.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/scfkit/go-scf/results"
	"github.com/scfkit/go-scf/solver"
)

// Store handles SQLite database operations for run archival.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Run represents an archived solver run.
type Run struct {
	ID             string     `json:"id"`
	Problem        string     `json:"problem"`
	Method         string     `json:"method"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Status         string     `json:"status"` // "running", "converged", "exhausted", "error"
	Error          string     `json:"error,omitempty"`
	Converged      bool       `json:"converged"`
	Iterations     int        `json:"iterations"`
	Evaluations    int        `json:"evaluations"`
	FinalResidual  float64    `json:"final_residual"`
	MaxIters       int        `json:"max_iters"`
	Tol            float64    `json:"tol"`
	Damping        float64    `json:"damping"`
	ComputeSeconds float64    `json:"compute_seconds"`
}

// New creates a Store backed by the database at dbPath. The schema is
// created on first use. Pass ":memory:" for an ephemeral store.
func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and avoids
	// writer contention on files.
	db.SetMaxOpenConns(1)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	store := &Store{db: db, enc: enc, dec: dec}
	if err := store.migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// migrate creates the database schema if it doesn't exist. Timestamps
// are unix nanoseconds; residual norms are REAL with NULL standing in
// for NaN, which SQLite cannot store.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		problem TEXT NOT NULL,
		method TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		converged INTEGER DEFAULT 0,
		iterations INTEGER DEFAULT 0,
		evaluations INTEGER DEFAULT 0,
		final_residual REAL,
		max_iters INTEGER DEFAULT 0,
		tol REAL DEFAULT 0,
		damping REAL DEFAULT 0,
		compute_seconds REAL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		residual_norm REAL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT PRIMARY KEY,
		shape TEXT NOT NULL,
		data BLOB NOT NULL,
		raw_bytes INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_checks_run ON checks(run_id, iteration);
	CREATE INDEX IF NOT EXISTS idx_runs_problem ON runs(problem);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection and compression contexts.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateRun registers a run in "running" state.
func (s *Store) CreateRun(id, problemName, method string, opts *solver.Options) error {
	var maxIters int
	var tol, damping float64
	if opts != nil {
		maxIters, tol, damping = opts.MaxIters, opts.Tol, opts.Damping
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, problem, method, started_at, status, max_iters, tol, damping)
		 VALUES (?, ?, ?, ?, 'running', ?, ?, ?)`,
		id, problemName, method, time.Now().UTC().UnixNano(), maxIters, tol, damping,
	)
	return err
}

// FinishRun records a completed run's outcome.
func (s *Store) FinishRun(id string, res *solver.Result) error {
	_, err := s.db.Exec(
		`UPDATE runs SET ended_at = ?, status = ?, converged = ?, iterations = ?,
		 evaluations = ?, final_residual = ?, compute_seconds = ?
		 WHERE id = ?`,
		time.Now().UTC().UnixNano(), res.Status.String(), res.Converged,
		res.Iterations, res.Evaluations, nullableNorm(res.ResidualNorm),
		res.Runtime.Seconds(), id,
	)
	return err
}

// FailRun marks a run as failed with the fatal error's text.
func (s *Store) FailRun(id string, runErr error) error {
	_, err := s.db.Exec(
		`UPDATE runs SET ended_at = ?, status = 'error', error = ? WHERE id = ?`,
		time.Now().UTC().UnixNano(), runErr.Error(), id,
	)
	return err
}

// LogChecks appends a run's residual history, one row per check, in a
// single transaction.
func (s *Store) LogChecks(runID string, norms []float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO checks (run_id, iteration, residual_norm) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	for i, norm := range norms {
		if _, err := stmt.Exec(runID, i, nullableNorm(norm)); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()
	return tx.Commit()
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, problem, method, started_at, ended_at, status, error, converged,
		 iterations, evaluations, final_residual, max_iters, tol, damping, compute_seconds
		 FROM runs WHERE id = ?`, id,
	)
	return scanRun(row)
}

// GetChecks retrieves a run's residual history in iteration order.
// NULL norms come back as NaN.
func (s *Store) GetChecks(runID string) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT residual_norm FROM checks WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var norms []float64
	for rows.Next() {
		var norm sql.NullFloat64
		if err := rows.Scan(&norm); err != nil {
			return nil, err
		}
		if norm.Valid {
			norms = append(norms, norm.Float64)
		} else {
			norms = append(norms, math.NaN())
		}
	}
	return norms, rows.Err()
}

// RecentRuns returns the most recently started runs.
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	return s.queryRuns(
		`SELECT id, problem, method, started_at, ended_at, status, error, converged,
		 iterations, evaluations, final_residual, max_iters, tol, damping, compute_seconds
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
}

// RunsForProblem returns all runs of one problem, most recent first.
func (s *Store) RunsForProblem(problemName string) ([]*Run, error) {
	return s.queryRuns(
		`SELECT id, problem, method, started_at, ended_at, status, error, converged,
		 iterations, evaluations, final_residual, max_iters, tol, damping, compute_seconds
		 FROM runs WHERE problem = ? ORDER BY started_at DESC`, problemName)
}

func (s *Store) queryRuns(query string, args ...any) ([]*Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt int64
	var endedAt sql.NullInt64
	var errText sql.NullString
	var final sql.NullFloat64
	err := row.Scan(&run.ID, &run.Problem, &run.Method, &startedAt, &endedAt,
		&run.Status, &errText, &run.Converged, &run.Iterations, &run.Evaluations,
		&final, &run.MaxIters, &run.Tol, &run.Damping, &run.ComputeSeconds)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	if endedAt.Valid {
		t := time.Unix(0, endedAt.Int64).UTC()
		run.EndedAt = &t
	}
	if errText.Valid {
		run.Error = errText.String
	}
	if final.Valid {
		run.FinalResidual = final.Float64
	} else {
		run.FinalResidual = math.NaN()
	}
	return &run, nil
}

// nullableNorm maps NaN to NULL for storage; SQLite has no NaN REAL.
func nullableNorm(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// ExportRunJSON exports a run and its residual history as JSON.
func (s *Store) ExportRunJSON(runID string) ([]byte, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	checks, err := s.GetChecks(runID)
	if err != nil {
		return nil, err
	}

	// The run's final residual may be NaN; shadow it with the schema's
	// norm type so the export always marshals.
	type runJSON struct {
		*Run
		FinalResidual results.Norm `json:"final_residual"`
	}
	normChecks := make([]results.Norm, len(checks))
	for i, v := range checks {
		normChecks[i] = results.Norm(v)
	}

	export := map[string]any{
		"run":    runJSON{Run: run, FinalResidual: results.Norm(run.FinalResidual)},
		"checks": normChecks,
	}
	return json.MarshalIndent(export, "", "  ")
}
