package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when the ledger has no record for an id.
var ErrNotFound = errors.New("session not found")

const ledgerSchemaVersion = 1

const ledgerSchemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	state          TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	chunks         INTEGER NOT NULL DEFAULT 0,
	segments       INTEGER NOT NULL DEFAULT 0,
	failed         INTEGER NOT NULL DEFAULT 0,
	fallback_stage INTEGER NOT NULL DEFAULT 0,
	podcast_url    TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`

// Record is the persisted summary of a session.
type Record struct {
	ID            string    `json:"id" yaml:"id"`
	State         State     `json:"state" yaml:"state"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
	Chunks        int       `json:"chunks" yaml:"chunks"`
	Segments      int       `json:"segments" yaml:"segments"`
	Failed        int       `json:"failed" yaml:"failed"`
	FallbackStage int       `json:"fallback_stage,omitempty" yaml:"fallback_stage,omitempty"`
	PodcastURL    string    `json:"podcast_url,omitempty" yaml:"podcast_url,omitempty"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Ledger stores session records.
type Ledger interface {
	Upsert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
}

// SQLiteLedger is the on-disk Ledger.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(ctx context.Context, path string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	l := &SQLiteLedger{db: db, path: path}
	if err := l.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLedger) initSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, ledgerSchemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := l.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := l.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", ledgerSchemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != ledgerSchemaVersion:
		return fmt.Errorf("ledger schema version %d, expected %d (delete %s)", version, ledgerSchemaVersion, l.path)
	}
	return nil
}

// Close closes the underlying database connection.
func (l *SQLiteLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Upsert writes rec, keeping the original created_at for existing rows.
func (l *SQLiteLedger) Upsert(ctx context.Context, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	const q = `
INSERT INTO sessions (id, state, created_at, updated_at, chunks, segments, failed, fallback_stage, podcast_url, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	state = excluded.state,
	updated_at = excluded.updated_at,
	chunks = excluded.chunks,
	segments = excluded.segments,
	failed = excluded.failed,
	fallback_stage = excluded.fallback_stage,
	podcast_url = excluded.podcast_url,
	error = excluded.error`

	return retryOnBusy(ctx, func() error {
		_, err := l.db.ExecContext(ctx, q,
			rec.ID, string(rec.State),
			formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
			rec.Chunks, rec.Segments, rec.Failed, rec.FallbackStage,
			rec.PodcastURL, rec.Error,
		)
		return err
	})
}

const selectColumns = `id, state, created_at, updated_at, chunks, segments, failed, fallback_stage, podcast_url, error`

func (l *SQLiteLedger) Get(ctx context.Context, id string) (Record, error) {
	row := l.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM sessions WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// List returns the most recently updated records first.
func (l *SQLiteLedger) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM sessions ORDER BY updated_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec              Record
		state            string
		created, updated string
	)
	if err := row.Scan(&rec.ID, &state, &created, &updated,
		&rec.Chunks, &rec.Segments, &rec.Failed, &rec.FallbackStage,
		&rec.PodcastURL, &rec.Error); err != nil {
		return Record{}, err
	}
	rec.State = State(state)
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// RecordFor snapshots s into a ledger record.
func RecordFor(s *Session) Record {
	rec := Record{
		ID:        s.ID,
		State:     s.State(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: time.Now().UTC(),
		Chunks:    s.ChunkCount(),
	}
	if err := s.Err(); err != nil {
		rec.Error = err.Error()
	}
	return rec
}
