package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/onnwee/streamsync/db"
)

// SetupTestDB connects to Postgres, runs migrations and empties the tables.
// It skips the test if TEST_PG_DSN environment variable is not set.
func SetupTestDB(t *testing.T) *db.StreamStore {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(db.Postgres, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ctx := context.Background()
	if err := db.Migrate(ctx, database, db.Postgres); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.ExecContext(ctx, `TRUNCATE streams, kv RESTART IDENTITY`); err != nil {
		database.Close()
		t.Fatalf("failed to reset tables: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return db.NewStreamStore(database, db.Postgres)
}

// SetupSQLiteStore returns a migrated store backed by a SQLite file in a temp dir.
// It always runs, so packages use it as their default backend in tests.
func SetupSQLiteStore(t *testing.T) *db.StreamStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "streams.db") + "?_pragma=busy_timeout(5000)"
	database, err := db.Connect(db.SQLite, dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.Migrate(context.Background(), database, db.SQLite); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return db.NewStreamStore(database, db.SQLite)
}
