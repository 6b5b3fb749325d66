package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{
		"identifiers", "locations", "sub_locations", "assets", "staging_entries",
		"checkpoints", "undo_journal", "operations", "settings", "schema_migrations",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)

		err := CheckDBMigrationStatus(db)
		if !errors.Is(err, ErrNoSchema) {
			t.Errorf("CheckDBMigrationStatus() error = %v, want ErrNoSchema", err)
		}
	})

	t.Run("current after migration", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() failed: %v", err)
		}
		if err := CheckDBMigrationStatus(db); err != nil {
			t.Errorf("CheckDBMigrationStatus() error = %v", err)
		}
	})

	t.Run("migrating twice is a no-op", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("first MigrateUp() failed: %v", err)
		}
		if err := MigrateUp(db); err != nil {
			t.Errorf("second MigrateUp() failed: %v", err)
		}
		if err := CheckDBMigrationStatus(db); err != nil {
			t.Errorf("CheckDBMigrationStatus() error = %v", err)
		}
	})
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v < 1 {
		t.Errorf("LatestVersion() = %d, want >= 1", v)
	}
}

func TestSchema_ForeignKeys(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO sub_locations (id, location_id, name, created_at)
		VALUES ('sub-1', 'missing', 'wing', datetime('now'))`)
	if err == nil {
		t.Error("expected foreign key violation for unknown location")
	}
}

func TestSchema_DigestUniqueness(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO locations (id, name, region, type, created_at)
		VALUES ('loc', 'Mill', 'ny', 'factory', datetime('now'))`); err != nil {
		t.Fatalf("inserting location: %v", err)
	}

	insert := func(id, class, state string) error {
		_, err := db.Exec(`INSERT INTO assets (id, asset_class, sha256, short_digest, original_path,
			archive_path, category, location_id, state, job_id, created_at, updated_at)
			VALUES (?, ?, 'abc', 'abc', '/s/a', 'a', 'unknown', 'loc', ?, 'job', datetime('now'), datetime('now'))`,
			id, class, state)
		return err
	}

	if err := insert("a1", "image", "RELOCATED"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insert("a2", "image", "FINALIZED"); err == nil {
		t.Error("expected unique violation for the same class and digest")
	}
	if err := insert("a3", "video", "RELOCATED"); err != nil {
		t.Errorf("same digest in another class should be allowed: %v", err)
	}
	if err := insert("a4", "image", "VERIFICATION_FAILED"); err != nil {
		t.Errorf("flagged assets should not block the digest: %v", err)
	}
}

// openTestDB opens an in-memory SQLite database on a single connection.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	return db
}
