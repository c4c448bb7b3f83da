package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"stravaldi/internal/metrics"
)

// RefreshToken is the long-lived half of a user's OAuth credential pair
type RefreshToken struct {
	UserID    string
	AthleteID *int64
	Token     string
	Scope     *string
	Raw       json.RawMessage
}

// AccessToken is the short-lived half of a user's OAuth credential pair
type AccessToken struct {
	UserID    string
	AthleteID *int64
	ExpiresAt int64
	Token     string
	Scope     *string
	Raw       json.RawMessage
}

// StoreTokens writes the refresh and access token rows for a user in a single
// transaction. The user_id primary key gives both tables latest-wins replace
// semantics: re-authentication overwrites any prior credential pair.
func (db *DB) StoreTokens(userID string, athleteID int64, refreshToken, accessToken string, expiresAt int64, scope string, raw json.RawMessage) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpStoreTokens))
	defer timer.ObserveDuration()

	if refreshToken == "" || accessToken == "" {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreTokens).Inc()
		return fmt.Errorf("refusing to store empty token for user %s", userID)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreTokens).Inc()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO refresh_tokens (user_id, athlete_id, token, scope, raw)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			token = excluded.token,
			scope = excluded.scope,
			raw = excluded.raw
	`, userID, athleteID, refreshToken, scope, string(raw))
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreTokens).Inc()
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO access_tokens (user_id, athlete_id, expires_at, token, scope, raw)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			expires_at = excluded.expires_at,
			token = excluded.token,
			scope = excluded.scope,
			raw = excluded.raw
	`, userID, athleteID, expiresAt, accessToken, scope, string(raw))
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreTokens).Inc()
		return fmt.Errorf("failed to store access token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpStoreTokens).Inc()
		return fmt.Errorf("failed to commit tokens: %w", err)
	}

	return nil
}

// LookupAccessToken retrieves the current access token for a user.
// Returns nil if the user has never authenticated.
func (db *DB) LookupAccessToken(userID string) (*AccessToken, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpLookupToken))
	defer timer.ObserveDuration()

	var t AccessToken
	var raw string
	err := db.conn.QueryRow(`
		SELECT user_id, athlete_id, expires_at, token, scope, raw
		FROM access_tokens WHERE user_id = ?
	`, userID).Scan(&t.UserID, &t.AthleteID, &t.ExpiresAt, &t.Token, &t.Scope, &raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpLookupToken).Inc()
		return nil, fmt.Errorf("failed to lookup access token: %w", err)
	}

	t.Raw = json.RawMessage(raw)
	return &t, nil
}

// LookupRefreshToken retrieves the current refresh token for a user.
// Returns nil if the user has never authenticated.
func (db *DB) LookupRefreshToken(userID string) (*RefreshToken, error) {
	var t RefreshToken
	var raw string
	err := db.conn.QueryRow(`
		SELECT user_id, athlete_id, token, scope, raw
		FROM refresh_tokens WHERE user_id = ?
	`, userID).Scan(&t.UserID, &t.AthleteID, &t.Token, &t.Scope, &raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpLookupToken).Inc()
		return nil, fmt.Errorf("failed to lookup refresh token: %w", err)
	}

	t.Raw = json.RawMessage(raw)
	return &t, nil
}
