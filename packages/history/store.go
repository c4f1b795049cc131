// Package history keeps a record of test runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	total       INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	not_run     INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0,
	cancelled   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS assemblies (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	seed       INTEGER NOT NULL,
	total      INTEGER NOT NULL,
	failed     INTEGER NOT NULL,
	skipped    INTEGER NOT NULL,
	not_run    INTEGER NOT NULL,
	errors     INTEGER NOT NULL,
	elapsed_ms REAL NOT NULL,
	cancelled  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tests (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	assembly     TEXT NOT NULL,
	test_id      TEXT NOT NULL,
	display_name TEXT NOT NULL,
	class        TEXT NOT NULL,
	method       TEXT NOT NULL,
	result       TEXT NOT NULL,
	cause        TEXT,
	message      TEXT,
	duration_ms  REAL NOT NULL,
	output       TEXT
);
CREATE INDEX IF NOT EXISTS tests_by_name ON tests (display_name);
`

// QueryResult represents the result of a database query
type QueryResult struct {
	Columns []string
	Rows    []map[string]interface{}
}

// Store is a history database
type Store struct {
	db           *sql.DB
	dataSource   string
	queryTimeout time.Duration
}

// Open opens (creating when needed) the history database at connectionString
func Open(connectionString string) (*Store, error) {
	dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{
		db:           db,
		dataSource:   dsn,
		queryTimeout: 30 * time.Second,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Run is one row of the runs table
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Failed     int
	Skipped    int
	NotRun     int
	Errors     int
	Cancelled  bool
}

// TestRow is one row of the tests table
type TestRow struct {
	RunID       string
	Assembly    string
	TestID      string
	DisplayName string
	Class       string
	Method      string
	Result      string
	Cause       string
	Message     string
	DurationMs  float64
	Output      string
}

// AssemblyRow is one row of the assemblies table
type AssemblyRow struct {
	RunID     string
	Name      string
	Seed      int
	Total     int
	Failed    int
	Skipped   int
	NotRun    int
	Errors    int
	ElapsedMs float64
	Cancelled bool
}

func (s *Store) exec(query string, args ...any) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// BeginRun inserts a run row
func (s *Store) BeginRun(id string, started time.Time) error {
	if err := s.exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, id, started.UTC()); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the totals of a run
func (s *Store) FinishRun(r Run) error {
	err := s.exec(`UPDATE runs SET finished_at = ?, total = ?, failed = ?, skipped = ?, not_run = ?, errors = ?, cancelled = ? WHERE id = ?`,
		r.FinishedAt.UTC(), r.Total, r.Failed, r.Skipped, r.NotRun, r.Errors, r.Cancelled, r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// RecordTest inserts a test result
func (s *Store) RecordTest(t TestRow) error {
	err := s.exec(`INSERT INTO tests (run_id, assembly, test_id, display_name, class, method, result, cause, message, duration_ms, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.Assembly, t.TestID, t.DisplayName, t.Class, t.Method, t.Result, t.Cause, t.Message, t.DurationMs, t.Output)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}
	return nil
}

// RecordAssembly inserts an assembly summary
func (s *Store) RecordAssembly(a AssemblyRow) error {
	err := s.exec(`INSERT INTO assemblies (run_id, name, seed, total, failed, skipped, not_run, errors, elapsed_ms, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.Name, a.Seed, a.Total, a.Failed, a.Skipped, a.NotRun, a.Errors, a.ElapsedMs, a.Cancelled)
	if err != nil {
		return fmt.Errorf("insert assembly: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first
func (s *Store) Runs(limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, finished_at, total, failed, skipped, not_run, errors, cancelled
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Total, &r.Failed, &r.Skipped, &r.NotRun, &r.Errors, &r.Cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.FinishedAt = finished.Time
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Query executes a SQL query and returns the result
func (s *Store) Query(query string, args ...any) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    make([]map[string]interface{}, 0),
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return result, nil
}

// TestHistory returns the recorded results of one test, newest first
func (s *Store) TestHistory(displayName string, limit int) (*QueryResult, error) {
	return s.Query(`SELECT t.run_id, r.started_at, t.result, t.duration_ms, t.message
		FROM tests t JOIN runs r ON r.id = t.run_id
		WHERE t.display_name = ? ORDER BY r.started_at DESC, t.rowid DESC LIMIT ?`, displayName, limit)
}

// parseConnectionString accepts sqlite://path, sqlite:path or a bare path
func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)
	switch {
	case strings.HasPrefix(connStr, "sqlite://"):
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		connStr = strings.TrimPrefix(connStr, "sqlite:")
	case strings.Contains(connStr, "://"):
		scheme, _, _ := strings.Cut(connStr, "://")
		return "", fmt.Errorf("unsupported database scheme: %s", scheme)
	}
	if connStr == "" {
		return "", fmt.Errorf("empty database path")
	}
	return connStr, nil
}
