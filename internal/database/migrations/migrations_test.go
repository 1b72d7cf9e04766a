package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db, SQLite3); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"folders", "files", "version_records", "runs", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)

		err := CheckDBMigrationStatus(db, SQLite3)
		if err == nil {
			t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
		}
		if err.Error() != "database has no schema version (needs migration)" {
			t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
		}
	})

	t.Run("up to date after migration", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db, SQLite3); err != nil {
			t.Fatalf("MigrateUp() failed: %v", err)
		}
		if err := CheckDBMigrationStatus(db, SQLite3); err != nil {
			t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
		}
	})
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db, SQLite3); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db, SQLite3); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}
}

func TestLatestVersion(t *testing.T) {
	for _, driver := range []string{SQLite3, Postgres, MySQL} {
		t.Run(driver, func(t *testing.T) {
			v, err := LatestVersion(driver)
			if err != nil {
				t.Fatalf("LatestVersion(%q) error = %v", driver, err)
			}
			if v != 1 {
				t.Errorf("LatestVersion(%q) = %d, want 1", driver, v)
			}
		})
	}

	t.Run("unknown driver", func(t *testing.T) {
		if _, err := LatestVersion("oracle"); err == nil {
			t.Error("LatestVersion() expected error for unknown driver")
		}
	})
}

func TestSchema_ForeignKeys(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db, SQLite3); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`
		INSERT INTO files (id, path, path_hash, folder_id, create_ts, modify_ts)
		VALUES ('file-1', '/r/a.txt', 'h1', 'missing-folder', '2024-01-01 00:00:00', '2024-01-01 00:00:00')
	`)
	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_OneActiveVersionPerPath(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db, SQLite3); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := `
		INSERT INTO version_records (entity_id, path, path_hash, is_dir, create_ts, modify_ts,
			is_active, op_type, version, version_start, version_end)
		VALUES (?, '/r/a.txt', 'h1', 0, '2024-01-01 00:00:00', '2024-01-01 00:00:00',
			?, 'i', ?, '2024-01-01 00:00:00', '9999-12-31 23:59:59.999999')`

	if _, err := db.Exec(insert, "e1", true, 1); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := db.Exec(insert, "e2", true, 2); err == nil {
		t.Error("Expected unique violation for a second active version, but insert succeeded")
	}
	if _, err := db.Exec(insert, "e3", false, 3); err != nil {
		t.Errorf("inactive version rejected: %v", err)
	}
	if _, err := db.Exec(insert, "e4", false, 1); err == nil {
		t.Error("Expected unique violation for duplicate version number, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database with foreign keys enabled.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
