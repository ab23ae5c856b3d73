package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps the database connection and the dialect used to build queries
type DB struct {
	*sql.DB // Raw SQL connection
	dialect string
	logger  *zap.Logger
}

// Config holds database configuration
type Config struct {
	Driver         string // "sqlite" or "pgx" (postgres)
	DBPath         string // For SQLite
	DSN            string // For Postgres
	MigrationsPath string
	// RecordStatements attaches SQL text to the otelsql spans.
	RecordStatements bool
}

var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// New creates a new database connection and runs migrations
func New(cfg Config, logger *zap.Logger) (*DB, error) {
	opts := []otelsql.Option{
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableQuery: !cfg.RecordStatements}),
	}

	var (
		sqlDB *sql.DB
		d     string
		err   error
	)
	switch cfg.Driver {
	case "", "sqlite":
		d = dialect.SQLite
		sqlDB, err = openSQLite(cfg.DBPath, opts)
	case "postgres", "pgx":
		d = dialect.Postgres
		sqlDB, err = openPostgres(cfg.DSN, opts)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (expected 'sqlite' or 'postgres')", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		DB:      sqlDB,
		dialect: d,
		logger:  logger,
	}

	// Run migrations
	if cfg.MigrationsPath != "" {
		if err := db.runMigrations(ctx, cfg.MigrationsPath); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Info("Database initialized",
		zap.String("driver", cfg.Driver),
		zap.String("dialect", d),
		zap.String("path", cfg.DBPath),
		zap.String("dsn_host", maskDSN(cfg.DSN)))
	return db, nil
}

func openSQLite(path string, opts []otelsql.Option) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	sqlDB, err := otelsql.Open("sqlite", path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One connection: a single writer, and :memory: databases are per connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range sqlitePragmas {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return sqlDB, nil
}

func openPostgres(dsn string, opts []otelsql.Option) (*sql.DB, error) {
	sqlDB, err := otelsql.Open("pgx", dsn, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres database: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Minute)
	return sqlDB, nil
}

// Dialect returns the ent dialect name of the connection.
func (db *DB) Dialect() string { return db.dialect }

func (db *DB) builder() *entsql.DialectBuilder { return entsql.Dialect(db.dialect) }

// maskDSN returns a masked version of the DSN for logging (hides password)
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if strings.Contains(dsn, "@") {
		parts := strings.Split(dsn, "@")
		if len(parts) > 1 {
			return "***@" + parts[len(parts)-1]
		}
	}
	return "***"
}

// runMigrations executes all pending SQL migration files
func (db *DB) runMigrations(ctx context.Context, migrationsPath string) error {
	// Use postgres subdirectory for Postgres migrations
	if db.dialect == dialect.Postgres {
		migrationsPath = filepath.Join(migrationsPath, "postgres")
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		db.logger.Warn("Migrations directory does not exist, skipping migrations",
			zap.String("path", migrationsPath))
		return nil
	}

	files, err := os.ReadDir(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}
	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		version := strings.TrimSuffix(filename, ".sql")
		if applied[version] {
			continue
		}

		db.logger.Info("Applying migration", zap.String("file", filename))

		content, err := os.ReadFile(filepath.Join(migrationsPath, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		record, args := db.builder().Insert("schema_migrations").Columns("version").Values(version).Query()
		err = db.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", filename, err)
			}
			if _, err := tx.ExecContext(ctx, record, args...); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", filename, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		db.logger.Info("Migration applied successfully", zap.String("file", filename))
	}

	return nil
}

func (db *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	applied := make(map[string]bool)
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return applied, nil
}

// withTx runs fn in a transaction, committing on nil and rolling back otherwise.
// Every statement inside fn must go through tx: SQLite has a single connection.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthCheck verifies database connectivity
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}

// GetMigrationVersion returns the count of applied migrations
func (db *DB) GetMigrationVersion(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	return count, nil
}
