package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leaprun/pkg/core"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

var errNotOpened = errors.New("database not opened")

// timeLayout is how timestamps are stored; it sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database, creating parent directories.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened state store", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// InitSchema initializes the database schema.
func (s *SQLiteStore) InitSchema() error {
	if s.db == nil {
		return errNotOpened
	}
	if err := s.Migrate(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// --- Invocation operations ---

// CreateInvocation records the start of a command.
func (s *SQLiteStore) CreateInvocation(command string) (*core.Invocation, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	inv := &core.Invocation{
		ID:        generateID(),
		Command:   command,
		Status:    core.InvocationRunning,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Debug("creating invocation", slog.String("id", inv.ID), slog.String("command", command))

	_, err := s.db.Exec(
		`INSERT INTO invocations (id, command, status, started_at) VALUES (?, ?, ?, ?)`,
		inv.ID, inv.Command, string(inv.Status), formatTime(inv.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation: %w", err)
	}
	return inv, nil
}

// GetInvocation retrieves an invocation by ID.
func (s *SQLiteStore) GetInvocation(id string) (*core.Invocation, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	row := s.db.QueryRow(
		`SELECT id, command, status, started_at, completed_at, error FROM invocations WHERE id = ?`, id)
	inv, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invocation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invocation: %w", err)
	}
	return inv, nil
}

// CompleteInvocation marks an invocation finished with status.
func (s *SQLiteStore) CompleteInvocation(id string, status core.InvocationStatus, errMsg string) error {
	if s.db == nil {
		return errNotOpened
	}

	var errValue sql.NullString
	if errMsg != "" {
		errValue = sql.NullString{String: errMsg, Valid: true}
	}
	res, err := s.db.Exec(
		`UPDATE invocations SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), errValue, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete invocation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("invocation not found: %s", id)
	}
	return nil
}

// GetLatestInvocation returns the most recently started invocation, or nil if none.
func (s *SQLiteStore) GetLatestInvocation() (*core.Invocation, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	row := s.db.QueryRow(
		`SELECT id, command, status, started_at, completed_at, error FROM invocations ORDER BY started_at DESC LIMIT 1`)
	inv, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest invocation: %w", err)
	}
	return inv, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (*core.Invocation, error) {
	var (
		inv         core.Invocation
		status      string
		startedAt   string
		completedAt sql.NullString
		errMsg      sql.NullString
	)
	if err := row.Scan(&inv.ID, &inv.Command, &status, &startedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}
	inv.Status = core.InvocationStatus(status)

	var err error
	if inv.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		inv.CompletedAt = &t
	}
	inv.Error = errMsg.String
	return &inv, nil
}

// --- Node run operations ---

// RecordNodeRun stores the outcome of a node. ID and RecordedAt are filled when empty.
func (s *SQLiteStore) RecordNodeRun(run *core.NodeRun) error {
	if s.db == nil {
		return errNotOpened
	}
	if run.ID == "" {
		run.ID = generateID()
	}
	if run.RecordedAt.IsZero() {
		run.RecordedAt = time.Now().UTC()
	}

	var errValue sql.NullString
	if run.Error != "" {
		errValue = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO node_runs (id, invocation_id, node_id, state, status, materialization, failures, error, execution_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InvocationID, run.NodeID, string(run.State), run.Status, run.Materialization,
		run.Failures, errValue, run.ExecutionMS, formatTime(run.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record node run: %w", err)
	}
	return nil
}

const nodeRunColumns = `id, invocation_id, node_id, state, status, materialization, failures, error, execution_ms, recorded_at`

// GetNodeRuns returns every node run of an invocation in recording order.
func (s *SQLiteStore) GetNodeRuns(invocationID string) ([]*core.NodeRun, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	rows, err := s.db.Query(
		`SELECT `+nodeRunColumns+` FROM node_runs WHERE invocation_id = ? ORDER BY recorded_at, rowid`, invocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get node runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.NodeRun
	for rows.Next() {
		run, err := scanNodeRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetLatestNodeRun returns the most recent run of a node, or nil if it never ran.
func (s *SQLiteStore) GetLatestNodeRun(nodeID string) (*core.NodeRun, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	row := s.db.QueryRow(
		`SELECT `+nodeRunColumns+` FROM node_runs WHERE node_id = ? ORDER BY recorded_at DESC, rowid DESC LIMIT 1`, nodeID)
	run, err := scanNodeRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest node run: %w", err)
	}
	return run, nil
}

func scanNodeRun(row scanner) (*core.NodeRun, error) {
	var (
		run        core.NodeRun
		state      string
		errMsg     sql.NullString
		recordedAt string
	)
	if err := row.Scan(&run.ID, &run.InvocationID, &run.NodeID, &state, &run.Status, &run.Materialization,
		&run.Failures, &errMsg, &run.ExecutionMS, &recordedAt); err != nil {
		return nil, err
	}
	run.State = core.OutcomeState(state)
	run.Error = errMsg.String

	t, err := parseTime(recordedAt)
	if err != nil {
		return nil, err
	}
	run.RecordedAt = t
	return &run, nil
}
