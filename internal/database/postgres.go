package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/deplai/deplai-connector/internal/config"
	_ "github.com/lib/pq"
)

// PostgresDB implements DB using PostgreSQL via lib/pq.
type PostgresDB struct {
	db *sql.DB
}

// NewPostgres opens a PostgreSQL connection using cfg.DSN.
func NewPostgres(cfg config.DatabaseConfig) (*PostgresDB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required when driver is postgres")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	p := &PostgresDB{db: db}
	if err := p.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return p, nil
}

func (p *PostgresDB) Driver() string { return "postgres" }

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Migrate applies pending SQL migrations adapted for PostgreSQL syntax.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		id         SERIAL       PRIMARY KEY,
		filename   VARCHAR(255) NOT NULL UNIQUE,
		applied_at VARCHAR(64)  NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}

	for _, name := range names {
		var count int
		row := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE filename = $1`, name)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("checking migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		for _, stmt := range splitStatements(postgresAdapt(string(data))) {
			if _, err := p.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying migration %s statement: %w\nSQL: %s", name, err, stmt)
			}
		}

		_, err = p.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, $2)`,
			name, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		slog.Info("Applied migration", "file", name, "driver", "postgres")
	}
	return nil
}

func (p *PostgresDB) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	rows, err := p.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows, dest)
}

func (p *PostgresDB) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	row := p.db.QueryRowContext(ctx, rebind(query), args...)
	return scanRow(row, dest)
}

func (p *PostgresDB) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := p.db.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertIfAbsent uses INSERT ... ON CONFLICT (cols) DO NOTHING.
func (p *PostgresDB) InsertIfAbsent(ctx context.Context, table string, record interface{}, conflictCols []string) (bool, error) {
	cols, placeholders, vals := structToInsert(record)
	// Internal DB helper: table/column names come from trusted application code, values remain parameterized.
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "),
	)
	res, err := p.db.ExecContext(ctx, rebind(query), vals...)
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// rebind rewrites "?" placeholders to "$1", "$2", ... skipping quoted literals.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// postgresAdapt converts SQLite-flavoured migration SQL to PostgreSQL.
func postgresAdapt(sql string) string {
	sql = strings.ReplaceAll(sql, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")
	sql = strings.ReplaceAll(sql, "DATETIME", "TIMESTAMPTZ")
	return sql
}
