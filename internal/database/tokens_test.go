package database

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStoreAndLookupTokens(t *testing.T) {
	db := setupTestDB(t)

	raw := json.RawMessage(`{"token_type": "Bearer", "access_token": "acc1", "refresh_token": "ref1"}`)
	expiresAt := time.Now().Add(6 * time.Hour).Unix()

	err := db.StoreTokens("default", 12345, "ref1", "acc1", expiresAt, "read_all,activity:read_all", raw)
	if err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}

	access, err := db.LookupAccessToken("default")
	if err != nil {
		t.Fatalf("Failed to lookup access token: %v", err)
	}
	if access == nil {
		t.Fatal("Expected access token, got nil")
	}
	if access.Token != "acc1" {
		t.Errorf("Expected token 'acc1', got %s", access.Token)
	}
	if access.ExpiresAt != expiresAt {
		t.Errorf("Expected expires_at %d, got %d", expiresAt, access.ExpiresAt)
	}
	if access.AthleteID == nil || *access.AthleteID != 12345 {
		t.Errorf("Expected athlete_id 12345, got %v", access.AthleteID)
	}
	if string(access.Raw) != string(raw) {
		t.Errorf("Expected raw payload preserved, got %s", access.Raw)
	}

	refresh, err := db.LookupRefreshToken("default")
	if err != nil {
		t.Fatalf("Failed to lookup refresh token: %v", err)
	}
	if refresh == nil {
		t.Fatal("Expected refresh token, got nil")
	}
	if refresh.Token != "ref1" {
		t.Errorf("Expected token 'ref1', got %s", refresh.Token)
	}
	if refresh.Scope == nil || *refresh.Scope != "read_all,activity:read_all" {
		t.Errorf("Expected scope preserved, got %v", refresh.Scope)
	}
}

func TestStoreTokensReplacesPriorPair(t *testing.T) {
	db := setupTestDB(t)

	if err := db.StoreTokens("default", 1, "ref1", "acc1", 100, "read_all", []byte(`{}`)); err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}
	if err := db.StoreTokens("default", 1, "ref2", "acc2", 200, "read_all", []byte(`{}`)); err != nil {
		t.Fatalf("Failed to re-store tokens: %v", err)
	}

	access, err := db.LookupAccessToken("default")
	if err != nil {
		t.Fatalf("Failed to lookup access token: %v", err)
	}
	if access.Token != "acc2" || access.ExpiresAt != 200 {
		t.Errorf("Expected replaced access token acc2/200, got %s/%d", access.Token, access.ExpiresAt)
	}

	refresh, err := db.LookupRefreshToken("default")
	if err != nil {
		t.Fatalf("Failed to lookup refresh token: %v", err)
	}
	if refresh.Token != "ref2" {
		t.Errorf("Expected replaced refresh token 'ref2', got %s", refresh.Token)
	}

	// One row per user in each table
	var count int
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM access_tokens`).Scan(&count); err != nil {
		t.Fatalf("Failed to count access tokens: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 access token row, got %d", count)
	}
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM refresh_tokens`).Scan(&count); err != nil {
		t.Fatalf("Failed to count refresh tokens: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 refresh token row, got %d", count)
	}
}

func TestStoreTokensRejectsEmptyTokens(t *testing.T) {
	db := setupTestDB(t)

	if err := db.StoreTokens("default", 1, "", "acc", 100, "", []byte(`{}`)); err == nil {
		t.Error("Expected error for empty refresh token")
	}
	if err := db.StoreTokens("default", 1, "ref", "", 100, "", []byte(`{}`)); err == nil {
		t.Error("Expected error for empty access token")
	}
}

func TestLookupTokensForUnknownUser(t *testing.T) {
	db := setupTestDB(t)

	access, err := db.LookupAccessToken("nobody")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if access != nil {
		t.Errorf("Expected nil access token, got %+v", access)
	}

	refresh, err := db.LookupRefreshToken("nobody")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if refresh != nil {
		t.Errorf("Expected nil refresh token, got %+v", refresh)
	}
}

func TestTokensScopedPerUser(t *testing.T) {
	db := setupTestDB(t)

	if err := db.StoreTokens("alice", 1, "ref-a", "acc-a", 100, "", []byte(`{}`)); err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}
	if err := db.StoreTokens("bob", 2, "ref-b", "acc-b", 200, "", []byte(`{}`)); err != nil {
		t.Fatalf("Failed to store tokens: %v", err)
	}

	access, err := db.LookupAccessToken("alice")
	if err != nil {
		t.Fatalf("Failed to lookup access token: %v", err)
	}
	if access.Token != "acc-a" {
		t.Errorf("Expected alice's token 'acc-a', got %s", access.Token)
	}
}
