package db

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"entgo.io/ent/dialect"
	"go.uber.org/zap/zaptest"
)

var marketplaceTables = []string{
	"users",
	"projects",
	"project_phases",
	"project_activities",
	"project_analyses",
	"notifications",
	"api_keys",
}

func appliedVersions(t *testing.T, db *DB) []string {
	t.Helper()
	rows, err := db.QueryContext(context.Background(), "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("scan version: %v", err)
		}
		versions = append(versions, v)
	}
	return versions
}

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write migration %s: %v", name, err)
		}
	}
	return dir
}

func TestNew_MarketplaceSchema(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	if database.Dialect() != dialect.SQLite {
		t.Errorf("Dialect() = %q, want %q", database.Dialect(), dialect.SQLite)
	}
	if got := appliedVersions(t, database); !slices.Equal(got, []string{"001_init"}) {
		t.Errorf("applied migrations = %v, want [001_init]", got)
	}

	ctx := context.Background()
	for _, table := range marketplaceTables {
		var n int
		if err := database.QueryRowContext(ctx,
			"SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n); err != nil {
			t.Fatalf("check %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing after migrations", table)
		}
	}

	version, err := database.GetMigrationVersion(ctx)
	if err != nil {
		t.Fatalf("GetMigrationVersion: %v", err)
	}
	if version != 1 {
		t.Errorf("GetMigrationVersion = %d, want 1", version)
	}
}

func TestNew_ForeignKeysCascadePhases(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()

	var fk int
	if err := database.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1 so phases cascade with their project", fk)
	}
}

func TestNew_Errors(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"unsupported driver", Config{Driver: "mysql"}},
		{"invalid migration", Config{
			DBPath:         ":memory:",
			MigrationsPath: writeMigrations(t, map[string]string{"001_bad.sql": "NOT SQL AT ALL;"}),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if db, err := New(tt.cfg, logger); err == nil {
				db.Close()
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_FileDatabaseCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "devmarket.db")

	database, err := New(Config{Driver: "sqlite", DBPath: path}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer database.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestRunMigrations(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"002_second.sql": "ALTER TABLE widgets ADD COLUMN label TEXT;",
		"001_first.sql":  "CREATE TABLE widgets (id INTEGER PRIMARY KEY);",
		"README.md":      "not a migration",
	})

	database, err := New(Config{DBPath: ":memory:", MigrationsPath: dir}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer database.Close()

	if got := appliedVersions(t, database); !slices.Equal(got, []string{"001_first", "002_second"}) {
		t.Fatalf("applied = %v, want files in name order", got)
	}

	// A second run applies nothing; re-running 002 would fail on the duplicate column.
	if err := database.runMigrations(context.Background(), dir); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := appliedVersions(t, database); len(got) != 2 {
		t.Errorf("applied after rerun = %v", got)
	}

	if _, err := database.ExecContext(context.Background(), "INSERT INTO widgets (id, label) VALUES (1, 'x')"); err != nil {
		t.Errorf("schema from both migrations not in place: %v", err)
	}
}

func TestRunMigrations_FailedMigrationNotRecorded(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_ok.sql":     "CREATE TABLE widgets (id INTEGER PRIMARY KEY);",
		"002_broken.sql": "CREATE TABLE widgets (id INTEGER PRIMARY KEY);",
	})

	database, err := New(Config{DBPath: ":memory:"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer database.Close()

	if err := database.runMigrations(context.Background(), dir); err == nil {
		t.Fatal("expected duplicate table error")
	}
	if got := appliedVersions(t, database); !slices.Equal(got, []string{"001_ok"}) {
		t.Errorf("applied = %v, want only 001_ok", got)
	}
}

func TestNew_MissingMigrationsDirIsSkipped(t *testing.T) {
	database, err := New(Config{DBPath: ":memory:", MigrationsPath: "/nonexistent/migrations"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer database.Close()

	if got := appliedVersions(t, database); len(got) != 0 {
		t.Errorf("applied = %v, want none", got)
	}
}

func TestHealthCheck(t *testing.T) {
	database := newTestDB(t)

	if err := database.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck on open database: %v", err)
	}

	database.Close()
	if err := database.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck should fail after Close")
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"", ""},
		{"postgres://user:secret@db:5432/devmarket", "***@db:5432/devmarket"},
		{"host=db user=app", "***"},
	}
	for _, tt := range tests {
		if got := maskDSN(tt.dsn); got != tt.want {
			t.Errorf("maskDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
