// Package storage provides SQLite-based persistence for run history and
// desync reports. Uses the pure-Go modernc.org/sqlite driver to avoid CGO
// dependencies.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrNotFound is returned when a looked-up run does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// Run is one recorded simulation run.
type Run struct {
	ID                string // uuid; generated by SaveRun when empty
	Scenario          string
	Frames            int64
	MaxDepth          int
	Rollbacks         int
	ResimulatedFrames int
	FinalChecksum     string
	ReplayDir         string // empty when no bundle was written
	Verified          bool   // a verify pass compared it against a plain run
	CreatedAt         time.Time
}

// Desync is a frame where two runs that should agree produced different
// state.
type Desync struct {
	ID        int64
	RunID     string
	Frame     int64
	Expected  string
	Actual    string
	CreatedAt time.Time
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			scenario TEXT NOT NULL,
			frames INTEGER NOT NULL,
			max_depth INTEGER NOT NULL,
			rollbacks INTEGER NOT NULL DEFAULT 0,
			resimulated_frames INTEGER NOT NULL DEFAULT 0,
			final_checksum TEXT NOT NULL,
			replay_dir TEXT,
			verified INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);

		CREATE TABLE IF NOT EXISTS desync_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			frame INTEGER NOT NULL,
			expected_checksum TEXT NOT NULL,
			actual_checksum TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_desync_run ON desync_reports(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun records a run and returns its id.
func (s *Store) SaveRun(r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	var replayDir sql.NullString
	if r.ReplayDir != "" {
		replayDir = sql.NullString{String: r.ReplayDir, Valid: true}
	}
	verified := 0
	if r.Verified {
		verified = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO runs
		 (id, scenario, frames, max_depth, rollbacks, resimulated_frames, final_checksum, replay_dir, verified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Scenario, r.Frames, r.MaxDepth, r.Rollbacks, r.ResimulatedFrames,
		r.FinalChecksum, replayDir, verified,
	)
	if err != nil {
		return "", fmt.Errorf("storage: cannot save run: %w", err)
	}
	return r.ID, nil
}

// MarkVerified flags a run as checked.
func (s *Store) MarkVerified(runID string) error {
	res, err := s.db.Exec("UPDATE runs SET verified = 1 WHERE id = ?", runID)
	if err != nil {
		return fmt.Errorf("storage: cannot mark run verified: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return nil
}

const runColumns = `id, scenario, frames, max_depth, rollbacks, resimulated_frames,
	final_checksum, replay_dir, verified, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var replayDir sql.NullString
	var createdAt any
	if err := row.Scan(&r.ID, &r.Scenario, &r.Frames, &r.MaxDepth, &r.Rollbacks,
		&r.ResimulatedFrames, &r.FinalChecksum, &replayDir, &r.Verified, &createdAt); err != nil {
		return r, err
	}
	r.ReplayDir = replayDir.String
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

// RunByID retrieves a run by its id.
func (s *Store) RunByID(id string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("storage: cannot query run: %w", err)
	}
	return r, nil
}

// RecentRuns retrieves the most recent runs, optionally for one scenario.
func (s *Store) RecentRuns(scenario string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if scenario != "" {
		query += ` WHERE scenario = ?`
		args = append(args, scenario)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return runs, nil
}

// SaveDesync records a desync report and returns its id.
func (s *Store) SaveDesync(d Desync) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO desync_reports (run_id, frame, expected_checksum, actual_checksum)
		 VALUES (?, ?, ?, ?)`,
		d.RunID, d.Frame, d.Expected, d.Actual,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cannot save desync: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: cannot get inserted ID: %w", err)
	}
	return id, nil
}

// Desyncs retrieves desync reports, newest first. An empty runID returns
// reports for every run.
func (s *Store) Desyncs(runID string, limit int) ([]Desync, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, run_id, frame, expected_checksum, actual_checksum, created_at FROM desync_reports`
	args := []any{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query desyncs: %w", err)
	}
	defer rows.Close()

	var out []Desync
	for rows.Next() {
		var d Desync
		var createdAt any
		if err := rows.Scan(&d.ID, &d.RunID, &d.Frame, &d.Expected, &d.Actual, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return out, nil
}

// ScenarioStats contains aggregated statistics for one scenario.
type ScenarioStats struct {
	Scenario    string
	Runs        int
	Frames      int64
	Rollbacks   int64
	Desyncs     int
	LastRunTime time.Time
}

// Stats aggregates run history per scenario, sorted by scenario.
func (s *Store) Stats() ([]ScenarioStats, error) {
	rows, err := s.db.Query(
		`SELECT r.scenario, COUNT(*), SUM(r.frames), SUM(r.rollbacks),
		        (SELECT COUNT(*) FROM desync_reports d JOIN runs x ON d.run_id = x.id WHERE x.scenario = r.scenario),
		        MAX(r.created_at)
		 FROM runs r
		 GROUP BY r.scenario
		 ORDER BY r.scenario`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get stats: %w", err)
	}
	defer rows.Close()

	var out []ScenarioStats
	for rows.Next() {
		var st ScenarioStats
		var last any
		if err := rows.Scan(&st.Scenario, &st.Runs, &st.Frames, &st.Rollbacks, &st.Desyncs, &last); err != nil {
			return nil, fmt.Errorf("storage: cannot scan stats row: %w", err)
		}
		st.LastRunTime = parseTime(last)
		out = append(out, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return out, nil
}

// parseTime handles both time.Time and string datetimes from the driver.
func parseTime(v any) time.Time {
	switch v := v.(type) {
	case time.Time:
		return v
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
