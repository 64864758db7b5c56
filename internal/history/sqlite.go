package history

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

	"github.com/ppiankov/hookguard/internal/identity"
)

// busyTimeoutMs bounds how long a writer waits for another process's
// transaction before SQLite reports SQLITE_BUSY.
const busyTimeoutMs = 2000

// SQLiteStore keeps the history in a SQLite database shared by all hook
// processes. SQLite's own file locking serializes appends, so unlike
// FileStore concurrent Records never interleave.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("history: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	// One short-lived connection per hook process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`PRAGMA busy_timeout = %d`, busyTimeoutMs),
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS execution_history (
  fingerprint TEXT NOT NULL,
  recorded_at_unix_ms INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_history_fp ON execution_history(fingerprint, recorded_at_unix_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_history_at ON execution_history(recorded_at_unix_ms)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("history: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Seen(ctx context.Context, fp identity.Fingerprint, now time.Time, window time.Duration) (bool, error) {
	cutoff := now.Add(-window).UnixMilli()
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM execution_history
WHERE fingerprint = ? AND recorded_at_unix_ms > ?
LIMIT 1
`, string(fp), cutoff).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("history: query: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Record(ctx context.Context, fp identity.Fingerprint, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO execution_history(fingerprint, recorded_at_unix_ms) VALUES(?, ?)
`, string(fp), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT fingerprint, recorded_at_unix_ms FROM execution_history
ORDER BY recorded_at_unix_ms DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var fp string
		var ms int64
		if err := rows.Scan(&fp, &ms); err != nil {
			return nil, err
		}
		out = append(out, Record{Fingerprint: identity.Fingerprint(fp), At: time.UnixMilli(ms)})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM execution_history WHERE recorded_at_unix_ms < ?
`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
