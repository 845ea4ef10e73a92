package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax for the shared SQL.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB wraps sql.DB with the dialect it talks to.
type DB struct {
	Client  *sql.DB
	Dialect Dialect
}

// Open connects using driver "postgres" (pgx) or "sqlite" (modernc).
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch Dialect(strings.ToLower(driver)) {
	case Postgres, "pgx", "":
		return NewDB(ctx, dsn)
	case SQLite:
		return NewSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Client: db, Dialect: Postgres}, nil
}

// NewSQLite opens a SQLite database; use ":memory:" in tests.
func NewSQLite(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return &DB{Client: db, Dialect: SQLite}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Healthy pings the database.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Rebind rewrites $N placeholders for the connected dialect.
func (d *DB) Rebind(query string) string {
	if d.Dialect == SQLite {
		return strings.ReplaceAll(query, "$", "?")
	}
	return query
}

const timeLayout = time.RFC3339Nano

// FormatTime renders t for a TEXT timestamp column.
func FormatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// ParseTime reads a TEXT timestamp column; empty yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
