// Package cache persists identification results in SQLite, keyed by the
// checksum of the audio payload.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"stemprep/internal/identify"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `CREATE TABLE IF NOT EXISTS identifications (
    checksum   TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    payload    TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

// Store is an identify.Cache backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ identify.Cache = (*Store)(nil)

// Open creates or opens the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
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
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the cached result for checksum.
func (s *Store) Get(ctx context.Context, checksum string) (*identify.Result, bool, error) {
	var payload string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT payload FROM identifications WHERE checksum = ?`, checksum,
		).Scan(&payload)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get identification: %w", err)
	}

	var r identify.Result
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, false, fmt.Errorf("decode identification: %w", err)
	}
	return &r, true, nil
}

// Put stores r for checksum, replacing any previous entry.
func (s *Store) Put(ctx context.Context, checksum string, r *identify.Result) error {
	if r == nil {
		return errors.New("result is nil")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode identification: %w", err)
	}

	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO identifications (checksum, status, payload, updated_at)
             VALUES (?, ?, ?, ?)
             ON CONFLICT(checksum) DO UPDATE SET
                 status = excluded.status, payload = excluded.payload, updated_at = excluded.updated_at`,
			checksum, string(r.Status), string(payload), time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// Count returns the number of cached results.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identifications: %w", err)
	}
	return n, nil
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
