// Package history keeps a record of past runs in a SQLite database so
// `tkrun history` can show trends across invocations.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/tkrun/packages/core/driver"
	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL,
	target      TEXT NOT NULL,
	environment TEXT NOT NULL DEFAULT '',
	files       INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	cancelled   INTEGER NOT NULL,
	p50_ms      REAL NOT NULL DEFAULT 0,
	p95_ms      REAL NOT NULL DEFAULT 0,
	p99_ms      REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS files (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	path        TEXT NOT NULL,
	state       TEXT NOT NULL,
	passed      INTEGER NOT NULL,
	phase       TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	steps       INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS files_run_id ON files(run_id);
`

// Run is one recorded invocation.
type Run struct {
	ID          string
	StartedAt   time.Time
	Duration    time.Duration
	Target      string
	Environment string
	Files       int
	Passed      int
	Failed      int
	Cancelled   int
	P50         time.Duration
	P95         time.Duration
	P99         time.Duration
}

// FileRecord is the stored outcome of one file in a run.
type FileRecord struct {
	Path     string
	State    string
	Passed   bool
	Phase    string
	Error    string
	Steps    int
	Failed   int
	Duration time.Duration
}

type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens, and creates if needed, the history database. path may be a
// plain file path or carry a sqlite:// or sqlite: prefix.
func Open(path string) (*Store, error) {
	dsn := parseConnectionString(path)
	if dsn == "" {
		return nil, fmt.Errorf("history database path is empty")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise history database: %w", err)
	}

	return &Store{db: db, queryTimeout: 30 * time.Second}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores a summary and returns the generated run ID.
func (s *Store) Record(ctx context.Context, target, environment string, startedAt time.Time, summary *driver.Summary) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, duration_ms, target, environment, files, passed, failed, cancelled, p50_ms, p95_ms, p99_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, startedAt.UTC(), summary.Duration.Milliseconds(), target, environment,
		summary.Total(), summary.Passed, summary.Failed, summary.Cancelled,
		ms(summary.Latency.P50), ms(summary.Latency.P95), ms(summary.Latency.P99))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, v := range summary.Files {
		errText := ""
		if v.Err != nil {
			errText = v.Err.Error()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO files (run_id, path, state, passed, phase, error, steps, failed, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, v.File, v.State.String(), v.Passed, string(v.Phase), errText,
			len(v.Steps), v.Count(runner.StepFailed)+v.Count(runner.StepErrored), v.Duration.Milliseconds())
		if err != nil {
			return "", fmt.Errorf("insert file %s: %w", v.File, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, duration_ms, target, environment, files, passed, failed, cancelled, p50_ms, p95_ms, p99_ms
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			r             Run
			durationMs    int64
			p50, p95, p99 float64
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &durationMs, &r.Target, &r.Environment,
			&r.Files, &r.Passed, &r.Failed, &r.Cancelled, &p50, &p95, &p99); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.P50, r.P95, r.P99 = fromMs(p50), fromMs(p95), fromMs(p99)
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Files returns the stored file outcomes of a run in the order recorded.
func (s *Store) Files(ctx context.Context, runID string) ([]*FileRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, state, passed, phase, error, steps, failed, duration_ms
		 FROM files WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		var (
			f          FileRecord
			durationMs int64
		)
		if err := rows.Scan(&f.Path, &f.State, &f.Passed, &f.Phase, &f.Error, &f.Steps, &f.Failed, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		f.Duration = time.Duration(durationMs) * time.Millisecond
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return files, nil
}

func parseConnectionString(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "sqlite://") {
		return strings.TrimPrefix(path, "sqlite://")
	}
	return strings.TrimPrefix(path, "sqlite:")
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMs(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}
