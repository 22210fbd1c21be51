// Package store provides the local lesson-record cache backed by embedded
// SQLite.
//
// The cache is the durability boundary the user sees confirmed: every
// navigation hydrates from it synchronously, and every save writes to it
// before the remote store is even attempted. One row per derived record key,
// overwritten in place, no eviction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/colegioprep/prepsync/internal/record"
)

// Store wraps the SQLite connection holding cached lesson records.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the cache database at the given path.
//
// The database runs in WAL mode with a busy timeout so concurrent readers
// (CLI status, exports) never block the engine's writes. The caller must
// Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return s, nil
}

// Path returns the filesystem path of the cache database.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the records table and indexes. Idempotent.
func (s *Store) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		key TEXT PRIMARY KEY,
		term TEXT NOT NULL,
		class_name TEXT NOT NULL,
		week_start TEXT NOT NULL,
		payload TEXT NOT NULL,  -- full record JSON, stored verbatim
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_term ON records(term);
	CREATE INDEX IF NOT EXISTS idx_records_week ON records(week_start);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// Read returns the cached record for a key, or (nil, nil) on a miss.
//
// A row whose payload no longer parses as a valid record is treated as a
// miss rather than surfaced: the read path always degrades to blank.
func (s *Store) Read(key string) (*record.LessonRecord, error) {
	var payload string
	err := s.conn.QueryRow("SELECT payload FROM records WHERE key = ?", key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", key, err)
	}

	rec, err := record.Unmarshal([]byte(payload))
	if err != nil {
		return nil, nil
	}
	return rec, nil
}

// Write upserts a record under the given key, overwriting in place.
func (s *Store) Write(key string, rec *record.LessonRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refusing to cache invalid record: %w", err)
	}

	payload, err := rec.Marshal()
	if err != nil {
		return err
	}

	query := `
	INSERT INTO records (key, term, class_name, week_start, payload, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		term = excluded.term,
		class_name = excluded.class_name,
		week_start = excluded.week_start,
		payload = excluded.payload,
		updated_at = excluded.updated_at
	`

	_, err = s.conn.Exec(query,
		key,
		rec.Term,
		rec.ClassName,
		rec.WeekStart,
		string(payload),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	return nil
}

// Count returns the number of cached records.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Keys returns all cached record keys ordered by week start, then key.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.conn.Query("SELECT key FROM records ORDER BY week_start, key")
	if err != nil {
		return nil, fmt.Errorf("failed to list record keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan record key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record keys: %w", err)
	}
	return keys, nil
}

// ForEach calls fn for every cached record, in week-start order.
// Rows with unparseable payloads are skipped.
func (s *Store) ForEach(ctx context.Context, fn func(*record.LessonRecord) error) error {
	rows, err := s.conn.QueryContext(ctx, "SELECT payload FROM records ORDER BY week_start, key")
	if err != nil {
		return fmt.Errorf("failed to scan records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("failed to scan record payload: %w", err)
		}
		rec, err := record.Unmarshal([]byte(payload))
		if err != nil {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}
