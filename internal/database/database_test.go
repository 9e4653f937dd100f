package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deplai/deplai-connector/internal/config"
	"github.com/deplai/deplai-connector/models"
)

func newTestSQLite(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "deplai.db")})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestSQLite(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	var n struct {
		N int `db:"n"`
	}
	if err := db.Get(context.Background(), &n, `SELECT COUNT(*) AS n FROM schema_migrations`); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	names, _ := migrationNames()
	if n.N != len(names) {
		t.Fatalf("expected %d recorded migrations, got %d", len(names), n.N)
	}
}

func TestSQLiteInsertIfAbsent(t *testing.T) {
	db := newTestSQLite(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	first := models.Ticket{
		ID: "t-1", Fingerprint: "fp", Title: "SQLi", Status: models.TicketOpen,
		ProjectID: "p1", FirstSeen: now, LastSeen: now,
	}
	inserted, err := db.InsertIfAbsent(ctx, "tickets", first, []string{"project_id", "fingerprint"})
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	dup := first
	dup.ID = "t-2"
	dup.Title = "changed"
	inserted, err = db.InsertIfAbsent(ctx, "tickets", dup, []string{"project_id", "fingerprint"})
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted {
		t.Fatal("duplicate key must not insert")
	}

	var rows []models.Ticket
	if err := db.Select(ctx, &rows, `SELECT `+models.TicketColumns+` FROM tickets`); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "t-1" || rows[0].Title != "SQLi" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if !rows[0].FirstSeen.Equal(now) {
		t.Fatalf("first_seen round trip: got %s want %s", rows[0].FirstSeen, now)
	}
	if rows[0].Status != models.TicketOpen {
		t.Fatalf("status round trip: %q", rows[0].Status)
	}
}

func TestExecReportsRowsAffected(t *testing.T) {
	db := newTestSQLite(t)
	ctx := context.Background()
	n, err := db.Exec(ctx, `UPDATE tickets SET status = 'OPEN' WHERE project_id = ?`, "none")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 rows affected, got %d", n)
	}
}

func TestRebind(t *testing.T) {
	got := rebind(`SELECT id FROM tickets WHERE project_id = ? AND title <> '?' AND fingerprint = ?`)
	want := `SELECT id FROM tickets WHERE project_id = $1 AND title <> '?' AND fingerprint = $2`
	if got != want {
		t.Fatalf("rebind:\n got %s\nwant %s", got, want)
	}
}

func TestMySQLDSNAddsParseTimeOnce(t *testing.T) {
	if got := mysqlDSN("u:p@tcp(db:3306)/deplai"); got != "u:p@tcp(db:3306)/deplai?parseTime=true&loc=UTC" {
		t.Fatalf("unexpected dsn %q", got)
	}
	if got := mysqlDSN("u:p@tcp(db:3306)/deplai?parseTime=true"); got != "u:p@tcp(db:3306)/deplai?parseTime=true&loc=UTC" {
		t.Fatalf("unexpected dsn %q", got)
	}
}

func TestMigrationsAdaptPerDriver(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_tickets.sql")
	if err != nil {
		t.Fatal(err)
	}
	my := mysqlAdapt(string(data))
	if strings.Contains(my, "INDEX IF NOT EXISTS") {
		t.Fatal("mysql does not support CREATE INDEX IF NOT EXISTS")
	}
	pg := postgresAdapt(string(data))
	if strings.Contains(pg, "DATETIME") {
		t.Fatal("postgres has no DATETIME type")
	}
	if n := len(splitStatements(my)); n != 3 {
		t.Fatalf("expected 3 statements, got %d", n)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
