package database

import (
	"encoding/json"
	"testing"
)

func TestStoreAndGetAthlete(t *testing.T) {
	db := setupTestDB(t)

	raw := json.RawMessage(`{"id": 12345, "username": "testuser", "firstname": "Test"}`)

	id, err := db.StoreAthlete(raw, "default")
	if err != nil {
		t.Fatalf("Failed to store athlete: %v", err)
	}
	if id != 12345 {
		t.Errorf("Expected athlete id 12345, got %d", id)
	}

	a, err := db.GetAthlete(12345)
	if err != nil {
		t.Fatalf("Failed to get athlete: %v", err)
	}
	if a == nil {
		t.Fatal("Expected athlete, got nil")
	}
	if a.UserID != "default" {
		t.Errorf("Expected user_id 'default', got %s", a.UserID)
	}
	if string(a.Raw) != string(raw) {
		t.Errorf("Expected raw payload preserved verbatim, got %s", a.Raw)
	}
}

func TestStoreAthleteUpsert(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.StoreAthlete([]byte(`{"id": 1, "username": "old"}`), "default"); err != nil {
		t.Fatalf("Failed to store athlete: %v", err)
	}
	if _, err := db.StoreAthlete([]byte(`{"id": 1, "username": "new"}`), "default"); err != nil {
		t.Fatalf("Failed to re-store athlete: %v", err)
	}

	a, err := db.GetAthlete(1)
	if err != nil {
		t.Fatalf("Failed to get athlete: %v", err)
	}
	if string(a.Raw) != `{"id": 1, "username": "new"}` {
		t.Errorf("Expected refreshed raw payload, got %s", a.Raw)
	}

	var count int
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM athletes`).Scan(&count); err != nil {
		t.Fatalf("Failed to count athletes: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row after upsert, got %d", count)
	}
}

func TestGetNonexistentAthlete(t *testing.T) {
	db := setupTestDB(t)

	a, err := db.GetAthlete(99999)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if a != nil {
		t.Errorf("Expected nil for uncached athlete, got %+v", a)
	}
}

func TestGetAthleteByUser(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.StoreAthlete([]byte(`{"id": 77, "username": "alice"}`), "alice"); err != nil {
		t.Fatalf("Failed to store athlete: %v", err)
	}

	a, err := db.GetAthleteByUser("alice")
	if err != nil {
		t.Fatalf("Failed to get athlete by user: %v", err)
	}
	if a == nil {
		t.Fatal("Expected athlete, got nil")
	}
	if a.AthleteID != 77 {
		t.Errorf("Expected athlete id 77, got %d", a.AthleteID)
	}

	missing, err := db.GetAthleteByUser("nobody")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown user, got %+v", missing)
	}
}
