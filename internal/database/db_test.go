package database

import (
	"testing"
	"time"
)

// setupTestDB opens an initialized database in a temp directory
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(); err != nil {
		t.Fatalf("Failed to init db: %v", err)
	}

	return db
}

func TestInitIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	// A second Init against an up-to-date database must be a no-op
	if err := db.Init(); err != nil {
		t.Fatalf("Second init failed: %v", err)
	}

	var version int
	if err := db.Conn().QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("Failed to read user_version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion, version)
	}
}

func TestHealth(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Health(); err != nil {
		t.Errorf("Expected healthy database, got %v", err)
	}
}

func TestMigrateLegacyActivitiesTable(t *testing.T) {
	dbPath := t.TempDir() + "/test.db"

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Recreate the shape written by the old tool: a start column holding the
	// activity's event time, no last_updated, user_version 0
	legacy := []string{
		`CREATE TABLE activities (
			id INTEGER PRIMARY KEY,
			private_note TEXT,
			description TEXT,
			name TEXT,
			type TEXT,
			user_id TEXT NOT NULL,
			start INTEGER NOT NULL,
			raw TEXT NOT NULL
		)`,
		`INSERT INTO activities (id, private_note, description, name, type, user_id, start, raw)
		 VALUES (101, 'knee:3', 'desc', 'Morning Run', 'Run', 'default', 1500000000,
		         '{"id": 101, "name": "Morning Run", "start_date": "2017-07-14T02:40:00Z"}')`,
		`INSERT INTO activities (id, private_note, description, name, type, user_id, start, raw)
		 VALUES (102, NULL, NULL, 'Evening Ride', 'Ride', 'default', 1500086400, '{"id": 102, "name": "Evening Ride"}')`,
	}
	for _, stmt := range legacy {
		if _, err := db.Conn().Exec(stmt); err != nil {
			t.Fatalf("Failed to create legacy table: %v", err)
		}
	}

	before := time.Now().Unix()
	if err := db.Init(); err != nil {
		t.Fatalf("Failed to migrate legacy database: %v", err)
	}

	// Rows survive with their raw payload intact
	a, err := db.GetActivity(101, "default")
	if err != nil {
		t.Fatalf("Failed to get migrated activity: %v", err)
	}
	if a == nil {
		t.Fatal("Expected migrated activity, got nil")
	}
	if a.Name == nil || *a.Name != "Morning Run" {
		t.Errorf("Expected name 'Morning Run', got %v", a.Name)
	}
	if a.PrivateNote == nil || *a.PrivateNote != "knee:3" {
		t.Errorf("Expected private_note 'knee:3', got %v", a.PrivateNote)
	}
	if a.LastUpdated < before {
		t.Errorf("Expected last_updated stamped at migration time, got %d", a.LastUpdated)
	}

	count, err := db.CountActivities("default")
	if err != nil {
		t.Fatalf("Failed to count activities: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 migrated activities, got %d", count)
	}

	// The start column is gone
	var hasStart int
	err = db.Conn().QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('activities') WHERE name = 'start'",
	).Scan(&hasStart)
	if err != nil {
		t.Fatalf("Failed to inspect table: %v", err)
	}
	if hasStart != 0 {
		t.Error("Expected start column to be dropped")
	}

	// New rows land in the rebuilt table
	if _, err := db.StoreActivity([]byte(`{"id": 103, "name": "Swim"}`), "default"); err != nil {
		t.Fatalf("Failed to store into migrated table: %v", err)
	}
}
