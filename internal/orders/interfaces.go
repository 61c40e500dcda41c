package orders

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database defines the pgxpool.Pool methods the repository uses,
// so tests can substitute a mock.
type Database interface {
	// QueryRow executes a query expected to return at most one row.
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row

	// Query executes a query that returns rows, typically a SELECT.
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)

	// Exec executes a query that doesn't return rows, typically INSERT, UPDATE, DELETE.
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
}
