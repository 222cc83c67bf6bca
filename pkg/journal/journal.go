// Package journal keeps one row per build task in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/brepseq/pkg/names"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// Outcomes of a build.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Record is one build task.
type Record struct {
	ID         int64
	TaskID     string
	Target     string
	StartIndex int
	Steps      int
	Outcome    string
	// FailedStep is the name of the failing step, if any.
	FailedStep string
	Error      string
	BrepPath   string
	Names      []names.Entry
	Duration   time.Duration
	CreatedAt  time.Time
}

// Journal persists build records.
type Journal interface {
	Record(ctx context.Context, r Record) error
	List(ctx context.Context, limit int) ([]Record, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS builds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	target TEXT NOT NULL,
	start_index INTEGER NOT NULL,
	steps INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	failed_step TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	brep_path TEXT NOT NULL DEFAULT '',
	names BLOB,
	duration_ms INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS builds_created_at ON builds (created_at);
`

// Store is a SQLite-backed Journal.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the journal at path, creating the schema when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?" + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
	}, "&")
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Parallel builds share one store; a single connection serializes
	// their writes.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record persists r.
func (s *Store) Record(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("journal is not open")
	}
	r.TaskID = strings.TrimSpace(r.TaskID)
	r.Outcome = strings.TrimSpace(r.Outcome)
	if r.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	switch r.Outcome {
	case OutcomeSucceeded, OutcomeFailed, OutcomeCancelled:
	default:
		return fmt.Errorf("unknown outcome %q", r.Outcome)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	blob, err := msgpack.Marshal(r.Names)
	if err != nil {
		return fmt.Errorf("encode names: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO builds (
	task_id,
	target,
	start_index,
	steps,
	outcome,
	failed_step,
	error,
	brep_path,
	names,
	duration_ms,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		r.TaskID,
		r.Target,
		r.StartIndex,
		r.Steps,
		r.Outcome,
		r.FailedStep,
		r.Error,
		r.BrepPath,
		blob,
		r.Duration.Milliseconds(),
		r.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}

// List returns the newest limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("journal is not open")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	task_id,
	target,
	start_index,
	steps,
	outcome,
	failed_step,
	error,
	brep_path,
	names,
	duration_ms,
	created_at
FROM builds
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var blob []byte
		var durationMS, createdAt int64
		if err := rows.Scan(
			&r.ID,
			&r.TaskID,
			&r.Target,
			&r.StartIndex,
			&r.Steps,
			&r.Outcome,
			&r.FailedStep,
			&r.Error,
			&r.BrepPath,
			&blob,
			&durationMS,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		if len(blob) > 0 {
			if err := msgpack.Unmarshal(blob, &r.Names); err != nil {
				return nil, fmt.Errorf("decode names of build %d: %w", r.ID, err)
			}
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return out, nil
}

var _ Journal = (*Store)(nil)
