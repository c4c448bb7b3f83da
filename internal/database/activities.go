package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stravaldi/internal/metrics"
)

// Activity represents a cached Strava activity. Raw is the verbatim upstream
// JSON; the remaining fields are denormalized from it at store time.
type Activity struct {
	ID          int64
	PrivateNote *string
	Description *string
	Name        *string
	Type        *string
	UserID      string
	LastUpdated int64
	Raw         json.RawMessage
}

// activityPayload is the subset of the upstream JSON that gets denormalized
type activityPayload struct {
	ID          int64   `json:"id"`
	PrivateNote *string `json:"private_note"`
	Description *string `json:"description"`
	Name        *string `json:"name"`
	Type        *string `json:"type"`
}

// StoreActivity upserts an activity from its verbatim upstream JSON payload.
// Re-ingesting an existing id refreshes every denormalized column, raw, and
// last_updated. Returns the upstream activity id.
func (db *DB) StoreActivity(raw json.RawMessage, userID string) (int64, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpStoreActivity))
	defer timer.ObserveDuration()

	var payload activityPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreActivity).Inc()
		return 0, fmt.Errorf("failed to parse activity payload: %w", err)
	}
	if payload.ID == 0 {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreActivity).Inc()
		return 0, fmt.Errorf("activity payload missing id")
	}

	_, err := db.conn.Exec(`
		INSERT INTO activities (id, private_note, description, name, type, user_id, last_updated, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			private_note = excluded.private_note,
			description = excluded.description,
			name = excluded.name,
			type = excluded.type,
			user_id = excluded.user_id,
			last_updated = excluded.last_updated,
			raw = excluded.raw
	`, payload.ID, payload.PrivateNote, payload.Description, payload.Name, payload.Type,
		userID, time.Now().Unix(), string(raw))

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreActivity).Inc()
		return 0, fmt.Errorf("failed to store activity: %w", err)
	}

	return payload.ID, nil
}

// GetActivity retrieves an activity by id for a user. Returns nil if the
// activity is not cached.
func (db *DB) GetActivity(activityID int64, userID string) (*Activity, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetActivity))
	defer timer.ObserveDuration()

	var a Activity
	var raw string
	err := db.conn.QueryRow(`
		SELECT id, private_note, description, name, type, user_id, last_updated, raw
		FROM activities WHERE id = ? AND user_id = ?
	`, activityID, userID).Scan(
		&a.ID, &a.PrivateNote, &a.Description, &a.Name, &a.Type,
		&a.UserID, &a.LastUpdated, &raw,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetActivity).Inc()
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}

	a.Raw = json.RawMessage(raw)
	return &a, nil
}

// ListActivities returns all cached activities for a user, newest sync first
func (db *DB) ListActivities(userID string) ([]*Activity, error) {
	rows, err := db.conn.Query(`
		SELECT id, private_note, description, name, type, user_id, last_updated, raw
		FROM activities
		WHERE user_id = ?
		ORDER BY last_updated DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []*Activity
	for rows.Next() {
		var a Activity
		var raw string
		err := rows.Scan(
			&a.ID, &a.PrivateNote, &a.Description, &a.Name, &a.Type,
			&a.UserID, &a.LastUpdated, &raw,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Raw = json.RawMessage(raw)
		activities = append(activities, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}

// CountActivities returns the number of cached activities for a user
func (db *DB) CountActivities(userID string) (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM activities WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return count, nil
}
