package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"stravaldi/internal/database"
	"stravaldi/internal/metrics"
	"stravaldi/internal/strava"
)

// Scopes requested during authorization, covering private activities
var Scopes = []string{"read_all", "activity:read_all"}

const (
	stateTTL = 10 * time.Minute

	// refreshWindow refreshes access tokens slightly before expiry so a
	// token handed to a caller doesn't expire mid-sync
	refreshWindow = 5 * time.Minute
)

// ErrNoToken indicates the user has never completed the OAuth flow
var ErrNoToken = errors.New("no token stored for user")

// Manager handles the OAuth token lifecycle: authorization state, code
// exchange, and transparent refresh of expired access tokens
type Manager struct {
	db     *database.DB
	client *strava.Client
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]stateEntry
}

// stateEntry ties a CSRF state to the local user that initiated the flow
type stateEntry struct {
	userID    string
	expiresAt time.Time
}

// NewManager creates a new token manager
func NewManager(db *database.DB, client *strava.Client) *Manager {
	m := &Manager{
		db:     db,
		client: client,
		logger: slog.Default(),
		states: make(map[string]stateEntry),
	}

	go m.cleanupStates()

	return m
}

// AuthCodeURL generates a Strava authorization URL for a local user. The
// returned state is one-time use and expires after ten minutes.
func (m *Manager) AuthCodeURL(redirectURI, userID string) (string, string) {
	state := uuid.NewString()

	m.mu.Lock()
	m.states[state] = stateEntry{userID: userID, expiresAt: time.Now().Add(stateTTL)}
	m.mu.Unlock()

	authURL := m.client.AuthCodeURL(redirectURI, Scopes, state)

	m.logger.Info("Generated auth URL", "user_id", userID, "state", state)

	return authURL, state
}

// HandleCallback validates the state, exchanges the authorization code, and
// stores the credential pair for the user carried in the state.
// Returns the local user id and the Strava athlete id.
func (m *Manager) HandleCallback(ctx context.Context, code, state, scope string) (string, int64, error) {
	userID, ok := m.takeState(state)
	if !ok {
		return "", 0, fmt.Errorf("invalid or expired state")
	}

	tokenResp, err := m.client.ExchangeCode(ctx, code)
	if err != nil {
		return "", 0, fmt.Errorf("failed to exchange code: %w", err)
	}

	var athleteData struct {
		ID int64 `json:"id"`
	}
	if len(tokenResp.Athlete) > 0 {
		if err := json.Unmarshal(tokenResp.Athlete, &athleteData); err != nil {
			return "", 0, fmt.Errorf("failed to parse athlete data: %w", err)
		}
	}

	if err := m.db.StoreTokens(userID, athleteData.ID,
		tokenResp.RefreshToken, tokenResp.AccessToken, tokenResp.ExpiresAt,
		scope, tokenResp.Raw); err != nil {
		return "", 0, fmt.Errorf("failed to store tokens: %w", err)
	}

	m.logger.Info("Stored tokens for user",
		"user_id", userID,
		"athlete_id", athleteData.ID,
		"expires_at", tokenResp.ExpiresAt,
		"scope", scope)

	// The token response embeds the athlete summary; cache it so the user
	// has a profile row before the first sync completes
	if len(tokenResp.Athlete) > 0 {
		if _, err := m.db.StoreAthlete(tokenResp.Athlete, userID); err != nil {
			m.logger.Error("Failed to store athlete from token response", "user_id", userID, "error", err)
		}
	}

	return userID, athleteData.ID, nil
}

// AccessToken returns a usable access token for the user, refreshing it
// first if it is expired or about to expire. Returns ErrNoToken if the user
// has never authenticated.
func (m *Manager) AccessToken(ctx context.Context, userID string) (string, error) {
	access, err := m.db.LookupAccessToken(userID)
	if err != nil {
		return "", err
	}
	if access == nil {
		return "", fmt.Errorf("%w: %s", ErrNoToken, userID)
	}

	if time.Now().Add(refreshWindow).Unix() < access.ExpiresAt {
		return access.Token, nil
	}

	m.logger.Info("Access token expired, refreshing", "user_id", userID, "expires_at", access.ExpiresAt)

	refresh, err := m.db.LookupRefreshToken(userID)
	if err != nil {
		return "", err
	}
	if refresh == nil {
		return "", fmt.Errorf("%w: %s", ErrNoToken, userID)
	}

	tokenResp, err := m.client.RefreshToken(ctx, refresh.Token)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	var athleteID int64
	if refresh.AthleteID != nil {
		athleteID = *refresh.AthleteID
	}
	var scope string
	if refresh.Scope != nil {
		scope = *refresh.Scope
	}

	if err := m.db.StoreTokens(userID, athleteID,
		tokenResp.RefreshToken, tokenResp.AccessToken, tokenResp.ExpiresAt,
		scope, tokenResp.Raw); err != nil {
		return "", fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	m.logger.Info("Refreshed access token", "user_id", userID, "expires_at", tokenResp.ExpiresAt)

	return tokenResp.AccessToken, nil
}

// takeState validates a state and removes it (one-time use).
// Returns the user id that initiated the flow.
func (m *Manager) takeState(state string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.states[state]
	if !exists {
		return "", false
	}

	delete(m.states, state)

	if time.Now().After(entry.expiresAt) {
		return "", false
	}

	return entry.userID, true
}

// cleanupStates removes expired states every minute
func (m *Manager) cleanupStates() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		now := time.Now()
		for state, entry := range m.states {
			if now.After(entry.expiresAt) {
				delete(m.states, state)
			}
		}
		m.mu.Unlock()
	}
}
