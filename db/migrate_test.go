package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func tableExists(t *testing.T, database *sql.DB, dialect Dialect, table string) bool {
	t.Helper()
	q := `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`
	if dialect == SQLite {
		q = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
	var n int
	if err := database.QueryRow(dialect.rebind(q), table).Scan(&n); err != nil {
		t.Fatalf("check table %s: %v", table, err)
	}
	return n > 0
}

// migrationTargets returns fresh, unmigrated databases for every available backend.
func migrationTargets(t *testing.T) map[Dialect]*sql.DB {
	t.Helper()
	out := map[Dialect]*sql.DB{}

	lite, err := Connect(SQLite, "file:"+filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { lite.Close() })
	out[SQLite] = lite

	if dsn := os.Getenv("TEST_PG_DSN"); dsn != "" {
		pg, err := Connect(Postgres, dsn)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		t.Cleanup(func() { pg.Close() })
		for _, stmt := range []string{`DROP TABLE IF EXISTS schema_migrations`, `DROP TABLE IF EXISTS streams`, `DROP TABLE IF EXISTS kv`} {
			if _, err := pg.Exec(stmt); err != nil {
				t.Fatalf("clean: %v", err)
			}
		}
		out[Postgres] = pg
	}
	return out
}

func TestRunMigrationsUpDown(t *testing.T) {
	for dialect, database := range migrationTargets(t) {
		t.Run(string(dialect), func(t *testing.T) {
			if err := RunMigrations(database, dialect); err != nil {
				t.Fatalf("RunMigrations() error = %v", err)
			}
			for _, table := range []string{"streams", "kv"} {
				if !tableExists(t, database, dialect, table) {
					t.Errorf("table %s does not exist after migration", table)
				}
			}

			version, dirty, err := GetMigrationVersion(database, dialect)
			if err != nil {
				t.Fatalf("GetMigrationVersion() error = %v", err)
			}
			if dirty || version < 1 {
				t.Errorf("version = %d dirty = %v", version, dirty)
			}

			// second run is a no-op
			if err := RunMigrations(database, dialect); err != nil {
				t.Fatalf("second RunMigrations() error = %v", err)
			}

			if err := MigrateDown(database, dialect); err != nil {
				t.Fatalf("MigrateDown() error = %v", err)
			}
			if tableExists(t, database, dialect, "streams") {
				t.Error("streams should be dropped after rolling back the first migration")
			}
		})
	}
}

func TestSetupOnPreexistingSchema(t *testing.T) {
	ctx := context.Background()
	for dialect, database := range migrationTargets(t) {
		t.Run(string(dialect), func(t *testing.T) {
			// A schema created by the embedded statements has no version table; the
			// versioned run still succeeds because every statement is IF NOT EXISTS.
			if err := Migrate(ctx, database, dialect); err != nil {
				t.Fatalf("Migrate() error = %v", err)
			}
			if err := Setup(ctx, database, dialect); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			if !tableExists(t, database, dialect, "streams") {
				t.Error("streams table missing after Setup")
			}
		})
	}
}
