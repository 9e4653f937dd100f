package database

import (
	"context"
	"fmt"

	"github.com/deplai/deplai-connector/internal/config"
)

// DB is the generic storage interface used throughout deplai.
// Implementations exist for SQLite (default), MySQL and PostgreSQL.
// Queries are written with "?" placeholders; PostgreSQL rebinds them.
type DB interface {
	// Select executes a query and scans rows into dest (slice pointer).
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Get executes a query expected to return a single row and scans into dest.
	// Columns are matched to `db:` tagged fields positionally.
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Exec executes a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)

	// InsertIfAbsent inserts record unless a row with the same conflictCols
	// already exists. It reports whether the row was inserted. The check and
	// the write are a single statement, so concurrent callers racing on the
	// same key see exactly one insert.
	InsertIfAbsent(ctx context.Context, table string, record interface{}, conflictCols []string) (bool, error)

	// Migrate applies pending schema migrations in order.
	Migrate(ctx context.Context) error

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error

	// Driver returns the backend name: "sqlite", "mysql" or "postgres".
	Driver() string
}

// New returns a DB implementation matching cfg.Driver.
// SQLite is the default when driver is empty.
func New(cfg config.DatabaseConfig) (DB, error) {
	switch cfg.Driver {
	case "mysql":
		return NewMySQL(cfg)
	case "postgres", "postgresql":
		return NewPostgres(cfg)
	case "sqlite", "sqlite3", "":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: sqlite, mysql, postgres)", cfg.Driver)
	}
}
