package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host string `env:"HOST" envDefault:"localhost"`
	Port int    `env:"PORT" envDefault:"4180"`

	// Database configuration
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./stravaldi.db"`

	// Strava API configuration
	StravaClientID     string `env:"STRAVA_CLIENT_ID"`
	StravaClientSecret string `env:"STRAVA_CLIENT_SECRET"`

	// Local account used when no --user flag is given
	DefaultUserID string `env:"DEFAULT_USER_ID" envDefault:"default"`

	// Sync tuning
	SyncPageSize             int     `env:"SYNC_PAGE_SIZE" envDefault:"50"`
	RateLimitThrottlePercent float64 `env:"RATE_LIMIT_THROTTLE_PERCENT" envDefault:"85"`

	// Metrics configuration
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsHost    string `env:"METRICS_HOST" envDefault:"localhost"`
	MetricsPort    int    `env:"METRICS_PORT" envDefault:"4181"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables
// It fails fast if required variables are missing
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	var missingVars []string
	if cfg.StravaClientID == "" {
		missingVars = append(missingVars, "STRAVA_CLIENT_ID")
	}
	if cfg.StravaClientSecret == "" {
		missingVars = append(missingVars, "STRAVA_CLIENT_SECRET")
	}
	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	if cfg.SyncPageSize < 1 || cfg.SyncPageSize > 200 {
		return nil, fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 200, got %d", cfg.SyncPageSize)
	}

	return cfg, nil
}
