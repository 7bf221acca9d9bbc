package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path + "?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("state store opened", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Run operations ---

// CreateRun creates a new flow run in the running state.
func (s *SQLiteStore) CreateRun(flowName, flowPath string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:        generateID(),
		FlowName:  flowName,
		FlowPath:  flowPath,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("flow", flowName))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, flow_name, flow_path, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.FlowName, run.FlowPath, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), errVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, flow_name, flow_path, status, started_at, completed_at, error FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, flow_name, flow_path, status, started_at, completed_at, error
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	run := &Run{}
	var (
		status      string
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.FlowName, &run.FlowPath, &status, &run.StartedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return run, nil
}

// --- Component execution operations ---

// RecordComponent inserts or updates the execution record of a component
// instance within a run.
func (s *SQLiteStore) RecordComponent(exec *ComponentExecution) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if exec.ID == "" {
		exec.ID = generateID()
	}

	var errVal sql.NullString
	if exec.Error != "" {
		errVal = sql.NullString{String: exec.Error, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO component_executions
			(id, run_id, instance_id, component_type, status, firings, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, instance_id) DO UPDATE SET
			status = excluded.status,
			firings = excluded.firings,
			started_at = COALESCE(excluded.started_at, component_executions.started_at),
			completed_at = excluded.completed_at,
			error = excluded.error`,
		exec.ID, exec.RunID, exec.InstanceID, exec.ComponentType, string(exec.Status), exec.Firings,
		exec.StartedAt, exec.CompletedAt, errVal,
	)
	if err != nil {
		return fmt.Errorf("failed to record component %s: %w", exec.InstanceID, err)
	}
	return nil
}

// GetComponentExecutions returns the component records of a run ordered by
// start time.
func (s *SQLiteStore) GetComponentExecutions(runID string) ([]*ComponentExecution, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`
		SELECT id, run_id, instance_id, component_type, status, firings, started_at, completed_at, error
		FROM component_executions WHERE run_id = ? ORDER BY started_at, instance_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get component executions: %w", err)
	}
	defer rows.Close()

	var out []*ComponentExecution
	for rows.Next() {
		c := &ComponentExecution{}
		var (
			status               string
			startedAt, completed sql.NullTime
			errMsg               sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.RunID, &c.InstanceID, &c.ComponentType, &status, &c.Firings,
			&startedAt, &completed, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan component execution: %w", err)
		}
		c.Status = ComponentStatus(status)
		if startedAt.Valid {
			t := startedAt.Time
			c.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time
			c.CompletedAt = &t
		}
		c.Error = errMsg.String
		out = append(out, c)
	}
	return out, rows.Err()
}
