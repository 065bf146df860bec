package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/555Russich/18.fl-auto-response/internal/types"
)

// PostgresStore keeps ids in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres establishes a connection pool and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, &Error{Backend: "postgres", Message: "failed to connect to database", Cause: err}
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &Error{Backend: "postgres", Message: "failed to ping database", Cause: err}
	}

	_, err = pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS `+DefaultTable+` (
			id TEXT PRIMARY KEY,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		pool.Close()
		return nil, &Error{Backend: "postgres", Message: "failed to create table", Cause: err}
	}

	return &PostgresStore{pool: pool}, nil
}

// Has reports whether id is present.
func (s *PostgresStore) Has(ctx context.Context, id types.RecordID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+DefaultTable+` WHERE id = $1)`,
		id.String(),
	).Scan(&exists)
	if err != nil {
		return false, &Error{Backend: "postgres", Message: "failed to check id", Cause: err}
	}
	return exists, nil
}

// Add inserts id, ignoring duplicates.
func (s *PostgresStore) Add(ctx context.Context, id types.RecordID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+DefaultTable+` (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		id.String(),
	)
	if err != nil {
		return &Error{Backend: "postgres", Message: "failed to insert id", Cause: err}
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
