package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/555Russich/18.fl-auto-response/internal/types"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps ids in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema exists.
// Pass ":memory:" for an in-memory database (used by tests).
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, &Error{Backend: "sqlite", Message: "path is empty"}
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &Error{Backend: "sqlite", Message: "creating data directory", Cause: err}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &Error{Backend: "sqlite", Message: "opening database", Cause: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &Error{Backend: "sqlite", Message: "pinging database", Cause: err}
	}

	// Single writer; also keeps an in-memory database alive across calls.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE IF NOT EXISTS ` + DefaultTable + ` (
			id TEXT PRIMARY KEY,
			processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, &Error{Backend: "sqlite", Message: "preparing schema", Cause: err}
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Has reports whether id is present.
func (s *SQLiteStore) Has(ctx context.Context, id types.RecordID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+DefaultTable+" WHERE id = ?", id.String()).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, &Error{Backend: "sqlite", Message: "checking id", Cause: err}
	}
	return true, nil
}

// Add inserts id, ignoring duplicates.
func (s *SQLiteStore) Add(ctx context.Context, id types.RecordID) error {
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO "+DefaultTable+" (id) VALUES (?)", id.String()); err != nil {
		return &Error{Backend: "sqlite", Message: "inserting id", Cause: err}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
