// Package db provides database connection helpers, schema migration, and the SQL-backed
// stream store. The same queries run on Postgres (pgx) and SQLite (modernc).
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "modernc.org/sqlite"             // pure-Go sqlite driver registered as 'sqlite'
)

// Dialect names a supported backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a DB_DRIVER value onto a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case Postgres:
		return Postgres, nil
	case SQLite:
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

func (d Dialect) driverName() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

// rebind rewrites '?' placeholders into the backend's form.
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// Connect opens a pool for the given dialect. SQLite is limited to one connection so
// writes never race on the file lock.
func Connect(dialect Dialect, dsn string) (*sql.DB, error) {
	database, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		database.SetMaxOpenConns(1)
	}
	return database, nil
}

// Migrate applies idempotent schema statements for all required tables and indices.
// It is the fallback when versioned migrations cannot run.
func Migrate(ctx context.Context, database *sql.DB, dialect Dialect) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS streams (
			id BIGSERIAL PRIMARY KEY,
			video_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			thumbnail TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL,
			duration TEXT NOT NULL DEFAULT '',
			is_live BOOLEAN NOT NULL DEFAULT FALSE,
			synced_at BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_published_at ON streams(published_at DESC)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
	}
	if dialect == SQLite {
		stmts[0] = `CREATE TABLE IF NOT EXISTS streams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			thumbnail TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL,
			duration TEXT NOT NULL DEFAULT '',
			is_live BOOLEAN NOT NULL DEFAULT FALSE,
			synced_at BIGINT NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`
		stmts[2] = `CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`
	}
	for i, s := range stmts {
		if _, err := database.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s migrate step %d failed: %w", dialect, i, err)
		}
	}
	return nil
}

// PutKV stores a small string value under key.
func PutKV(ctx context.Context, database *sql.DB, dialect Dialect, key, value string) error {
	q := dialect.rebind(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`)
	if _, err := database.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("put kv %s: %w", key, err)
	}
	return nil
}

// GetKV returns the value for key; ok is false when it was never set.
func GetKV(ctx context.Context, database *sql.DB, dialect Dialect, key string) (value string, ok bool, err error) {
	var v sql.NullString
	err = database.QueryRowContext(ctx, dialect.rebind(`SELECT value FROM kv WHERE key = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %s: %w", key, err)
	}
	return v.String, true, nil
}
