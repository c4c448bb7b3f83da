package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stravaldi/internal/metrics"
)

// Athlete represents a cached Strava athlete profile
type Athlete struct {
	AthleteID   int64
	UserID      string
	LastUpdated int64
	Raw         json.RawMessage
}

// StoreAthlete upserts an athlete profile from its verbatim upstream JSON.
// One row per athlete_id; re-ingesting refreshes user_id, last_updated and
// raw. Returns the athlete id.
func (db *DB) StoreAthlete(raw json.RawMessage, userID string) (int64, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpStoreAthlete))
	defer timer.ObserveDuration()

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreAthlete).Inc()
		return 0, fmt.Errorf("failed to parse athlete payload: %w", err)
	}
	if payload.ID == 0 {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreAthlete).Inc()
		return 0, fmt.Errorf("athlete payload missing id")
	}

	_, err := db.conn.Exec(`
		INSERT INTO athletes (athlete_id, user_id, last_updated, raw)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(athlete_id) DO UPDATE SET
			user_id = excluded.user_id,
			last_updated = excluded.last_updated,
			raw = excluded.raw
	`, payload.ID, userID, time.Now().Unix(), string(raw))

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreAthlete).Inc()
		return 0, fmt.Errorf("failed to store athlete: %w", err)
	}

	return payload.ID, nil
}

// GetAthlete retrieves an athlete profile by id. Returns nil if not cached.
func (db *DB) GetAthlete(athleteID int64) (*Athlete, error) {
	var a Athlete
	var raw string
	err := db.conn.QueryRow(`
		SELECT athlete_id, user_id, last_updated, raw
		FROM athletes WHERE athlete_id = ?
	`, athleteID).Scan(&a.AthleteID, &a.UserID, &a.LastUpdated, &raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get athlete: %w", err)
	}

	a.Raw = json.RawMessage(raw)
	return &a, nil
}

// GetAthleteByUser retrieves the athlete profile owned by a local user.
// Returns nil if the user has no cached profile.
func (db *DB) GetAthleteByUser(userID string) (*Athlete, error) {
	var a Athlete
	var raw string
	err := db.conn.QueryRow(`
		SELECT athlete_id, user_id, last_updated, raw
		FROM athletes WHERE user_id = ?
		ORDER BY last_updated DESC
		LIMIT 1
	`, userID).Scan(&a.AthleteID, &a.UserID, &a.LastUpdated, &raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get athlete by user: %w", err)
	}

	a.Raw = json.RawMessage(raw)
	return &a, nil
}
