package config

import (
	"testing"
)

func setTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	// Clear variables Load reads so ambient environment doesn't leak in
	for _, key := range []string{
		"HOST", "PORT", "DATABASE_PATH",
		"STRAVA_CLIENT_ID", "STRAVA_CLIENT_SECRET", "DEFAULT_USER_ID",
		"SYNC_PAGE_SIZE", "RATE_LIMIT_THROTTLE_PERCENT",
		"METRICS_ENABLED", "METRICS_HOST", "METRICS_PORT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	for key, value := range vars {
		t.Setenv(key, value)
	}
}

func TestLoadConfigWithDefaults(t *testing.T) {
	setTestEnv(t, map[string]string{
		"STRAVA_CLIENT_ID":     "test_client_id",
		"STRAVA_CLIENT_SECRET": "test_client_secret",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", cfg.Host)
	}
	if cfg.Port != 4180 {
		t.Errorf("Expected default port 4180, got %d", cfg.Port)
	}
	if cfg.DatabasePath != "./stravaldi.db" {
		t.Errorf("Expected default database path './stravaldi.db', got %s", cfg.DatabasePath)
	}
	if cfg.DefaultUserID != "default" {
		t.Errorf("Expected default user id 'default', got %s", cfg.DefaultUserID)
	}
	if cfg.SyncPageSize != 50 {
		t.Errorf("Expected default sync page size 50, got %d", cfg.SyncPageSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.LogLevel)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected metrics enabled by default")
	}

	if cfg.StravaClientID != "test_client_id" {
		t.Errorf("Expected STRAVA_CLIENT_ID 'test_client_id', got %s", cfg.StravaClientID)
	}
	if cfg.StravaClientSecret != "test_client_secret" {
		t.Errorf("Expected STRAVA_CLIENT_SECRET 'test_client_secret', got %s", cfg.StravaClientSecret)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	setTestEnv(t, map[string]string{
		"HOST":                 "0.0.0.0",
		"PORT":                 "8080",
		"DATABASE_PATH":        "/tmp/custom.db",
		"STRAVA_CLIENT_ID":     "custom_id",
		"STRAVA_CLIENT_SECRET": "custom_secret",
		"DEFAULT_USER_ID":      "alice",
		"SYNC_PAGE_SIZE":       "100",
		"LOG_LEVEL":            "debug",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %s", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Port)
	}
	if cfg.DatabasePath != "/tmp/custom.db" {
		t.Errorf("Expected database path '/tmp/custom.db', got %s", cfg.DatabasePath)
	}
	if cfg.DefaultUserID != "alice" {
		t.Errorf("Expected user id 'alice', got %s", cfg.DefaultUserID)
	}
	if cfg.SyncPageSize != 100 {
		t.Errorf("Expected sync page size 100, got %d", cfg.SyncPageSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %s", cfg.LogLevel)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setTestEnv(t, map[string]string{
		"STRAVA_CLIENT_ID": "only_id",
	})

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for missing STRAVA_CLIENT_SECRET, got nil")
	}
}

func TestLoadConfigInvalidPageSize(t *testing.T) {
	setTestEnv(t, map[string]string{
		"STRAVA_CLIENT_ID":     "test_client_id",
		"STRAVA_CLIENT_SECRET": "test_client_secret",
		"SYNC_PAGE_SIZE":       "500",
	})

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for out-of-range SYNC_PAGE_SIZE, got nil")
	}
}
