// Package journal records trace runs and their events in a SQLite database so
// they can be listed and inspected after the fact.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/cellar/internal/trace"
)

// DatabaseFile is the name of the journal database inside the data directory.
const DatabaseFile = "cellar.db"

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Journal errors.
var (
	ErrNotFound = errors.New("run not found")
	ErrClosed   = errors.New("journal is closed")
)

// Run is a stored run summary.
type Run struct {
	RunID       string    `json:"run_id"`
	Script      string    `json:"script"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StepCount   int       `json:"step_count"`
	Outstanding []string  `json:"outstanding,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Store is a handle on an open journal database.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open opens the journal in dataDir, creating the directory, the database file
// and the schema as needed. Existing runs are kept.
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One connection keeps the foreign_keys pragma in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	for _, ddl := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SaveRun stores res and its events in one transaction and returns the new
// run ID.
func (s *Store) SaveRun(res trace.Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return "", ErrClosed
	}

	runID := generateUUID()
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRun(tx, runID, res); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// insertRun writes one run row and its event rows inside tx.
func insertRun(tx *sql.Tx, runID string, res trace.Result) error {
	outstanding, err := json.Marshal(res.Outstanding)
	if err != nil {
		return fmt.Errorf("marshal outstanding: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO runs (run_id, script, status, error, step_count, outstanding, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		runID, res.Script, res.Status, nullString(res.Error), len(res.Events), string(outstanding),
		res.StartedAt.UTC().Format(timeLayout), res.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO events (event_id, run_id, seq, op, target, as_name, result, value, state, count, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range res.Events {
		var value, count any
		if ev.Value != nil {
			value = *ev.Value
		}
		if ev.Count != nil {
			count = *ev.Count
		}
		_, err := stmt.Exec(
			generateUUID(), runID, ev.Seq, string(ev.Op), nullString(ev.Target), nullString(ev.As),
			ev.Result, value, nullString(ev.State), count, nullString(ev.Detail),
		)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
	}
	return nil
}

// GetRun returns the run with the given ID, or ErrNotFound.
func (s *Store) GetRun(runID string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return Run{}, ErrClosed
	}

	row := s.db.QueryRow(
		"SELECT run_id, script, status, error, step_count, outstanding, started_at, finished_at FROM runs WHERE run_id = ?",
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(
		"SELECT run_id, script, status, error, step_count, outstanding, started_at, finished_at FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events returns the events of a run in step order. It returns ErrNotFound if
// the run does not exist.
func (s *Store) Events(runID string) ([]trace.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrClosed
	}

	var exists int
	err := s.db.QueryRow("SELECT 1 FROM runs WHERE run_id = ?", runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check run %s: %w", runID, err)
	}

	rows, err := s.db.Query(
		"SELECT seq, op, target, as_name, result, value, state, count, detail FROM events WHERE run_id = ? ORDER BY seq",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []trace.Event
	for rows.Next() {
		var (
			ev                        trace.Event
			op                        string
			target, as, state, detail sql.NullString
			value                     sql.NullInt64
			count                     sql.NullInt64
		)
		if err := rows.Scan(&ev.Seq, &op, &target, &as, &ev.Result, &value, &state, &count, &detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Op = trace.Op(op)
		ev.Target = target.String
		ev.As = as.String
		ev.State = state.String
		ev.Detail = detail.String
		if value.Valid {
			n := value.Int64
			ev.Value = &n
		}
		if count.Valid {
			n := int(count.Int64)
			ev.Count = &n
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteRun removes a run and its events. It returns ErrNotFound if the run
// does not exist.
func (s *Store) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrClosed
	}

	res, err := s.db.Exec("DELETE FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                 Run
		errText           sql.NullString
		outstanding       string
		started, finished string
	)
	if err := sc.Scan(&r.RunID, &r.Script, &r.Status, &errText, &r.StepCount, &outstanding, &started, &finished); err != nil {
		return Run{}, err
	}
	r.Error = errText.String
	if err := json.Unmarshal([]byte(outstanding), &r.Outstanding); err != nil {
		return Run{}, fmt.Errorf("decode outstanding: %w", err)
	}

	var err error
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return Run{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// generateUUID generates a new UUID v7 for row IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}
