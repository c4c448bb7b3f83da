package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"stravaldi/internal/config"
	"stravaldi/internal/database"
	"stravaldi/internal/tokens"
)

// OAuthHandler handles the browser OAuth flow endpoints
type OAuthHandler struct {
	tokens *tokens.Manager
	db     *database.DB
	config *config.Config
	logger *slog.Logger
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(tokenManager *tokens.Manager, db *database.DB, cfg *config.Config) *OAuthHandler {
	return &OAuthHandler{
		tokens: tokenManager,
		db:     db,
		config: cfg,
		logger: slog.Default(),
	}
}

// HandleAuthStart initiates the OAuth flow by redirecting to Strava
func (h *OAuthHandler) HandleAuthStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = h.config.DefaultUserID
	}

	// Build redirect URI (same host/port as current request)
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	redirectURI := fmt.Sprintf("%s://%s/oauth-callback", scheme, r.Host)

	authURL, state := h.tokens.AuthCodeURL(redirectURI, userID)

	h.logger.Info("Starting OAuth flow", "user_id", userID, "state", state, "redirect_uri", redirectURI)

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// HandleCallback processes the OAuth callback from Strava
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	scope := r.URL.Query().Get("scope")
	errorParam := r.URL.Query().Get("error")

	// The user declined on the Strava consent screen
	if errorParam != "" {
		h.logger.Warn("OAuth authorization denied", "error", errorParam)
		http.Error(w, fmt.Sprintf("Authorization failed: %s", errorParam), http.StatusBadRequest)
		return
	}

	if code == "" || state == "" {
		h.logger.Warn("Missing OAuth parameters", "has_code", code != "", "has_state", state != "")
		http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
		return
	}

	h.logger.Info("Processing OAuth callback", "code_length", len(code), "state", state, "scope", scope)

	userID, athleteID, err := h.tokens.HandleCallback(r.Context(), code, state, scope)
	if err != nil {
		h.logger.Error("Failed to handle OAuth callback", "error", err)

		errorMsg := "Failed to complete authorization"
		if err.Error() == "invalid or expired state" {
			errorMsg = "Invalid or expired authorization request. Please try again."
		}

		http.Error(w, errorMsg, http.StatusBadRequest)
		return
	}

	h.logger.Info("OAuth flow completed", "user_id", userID, "athlete_id", athleteID)

	// Kick off the first cache fill in the background
	if _, err := h.db.EnqueueSyncJob(userID, database.JobTypeSyncUser); err != nil {
		h.logger.Error("Failed to enqueue sync job", "user_id", userID, "error", err)
		// Don't fail the OAuth flow if sync enqueueing fails
	} else {
		h.logger.Info("Enqueued sync job", "user_id", userID)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Authorization Successful</title>
	<style>
		body {
			font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif;
			max-width: 600px;
			margin: 100px auto;
			padding: 20px;
			text-align: center;
		}
		h1 { color: #FC4C02; }
		p { color: #666; line-height: 1.6; }
		code {
			background: #f4f4f4;
			padding: 2px 6px;
			border-radius: 3px;
			font-family: monospace;
		}
	</style>
</head>
<body>
	<h1>&#10003; Authorization Successful</h1>
	<p>Your Strava account has been connected (Athlete ID: <code>%d</code>)</p>
	<p>Your activities are now being cached in the background.</p>
	<p>You can close this window.</p>
</body>
</html>`, athleteID)
}
