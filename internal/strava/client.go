package strava

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stravaldi/internal/metrics"
)

const (
	defaultBaseURL  = "https://www.strava.com/api/v3"
	defaultTokenURL = "https://www.strava.com/oauth/token"
	defaultAuthURL  = "https://www.strava.com/oauth/authorize"

	maxRetries   = 5
	initialDelay = 1 * time.Second
	maxDelay     = 5 * time.Minute
)

// Client is a Strava API client
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	logger       *slog.Logger
	rateLimits   *RateLimitTracker

	// Overridable in tests
	baseURL  string
	tokenURL string
	authURL  string
}

// NewClient creates a new Strava API client
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       slog.Default(),
		rateLimits:   NewRateLimitTracker(),
		baseURL:      defaultBaseURL,
		tokenURL:     defaultTokenURL,
		authURL:      defaultAuthURL,
	}
}

// NewClientWithEndpoints creates a client pointed at alternative API and
// OAuth endpoints, for use against a mock Strava server
func NewClientWithEndpoints(clientID, clientSecret, baseURL, tokenURL, authURL string) *Client {
	c := NewClient(clientID, clientSecret)
	c.baseURL = baseURL
	c.tokenURL = tokenURL
	c.authURL = authURL
	return c
}

// RateLimits returns the client's rate limit tracker
func (c *Client) RateLimits() *RateLimitTracker {
	return c.rateLimits
}

// doRequest performs an authenticated API request with retries.
// Network errors, 5xx responses and 429s are retried with exponential
// backoff (429s honor Retry-After); other non-200s return an HTTPError.
func (c *Client) doRequest(ctx context.Context, operation, method, path, accessToken string) ([]byte, error) {
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying request", "operation", operation, "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			c.logger.Error("request failed", "operation", operation, "path", path, "error", err, "attempt", attempt)
			continue
		}

		c.parseRateLimitHeaders(resp.Header)

		statusStr := strconv.Itoa(resp.StatusCode)
		metrics.StravaAPIRequestsTotal.WithLabelValues(operation, statusStr).Inc()
		metrics.StravaAPIRequestDuration.WithLabelValues(operation, statusStr).Observe(duration.Seconds())

		c.logger.Debug("strava_api_request",
			"operation", operation,
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", duration.Milliseconds())

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", err)
				continue
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if retryAfter := parseRetryAfter(resp.Header); retryAfter > 0 {
				delay = retryAfter
			}
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: "rate limited"}
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: "server error"}
			continue

		default:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded for %s: %w", operation, lastErr)
}

// parseRateLimitHeaders extracts rate limit information from response headers.
// Strava reports both windows comma-separated, e.g. "100,1000".
func (c *Client) parseRateLimitHeaders(headers http.Header) {
	limitHeader := headers.Get("X-RateLimit-Limit")
	usageHeader := headers.Get("X-RateLimit-Usage")
	if limitHeader == "" || usageHeader == "" {
		return
	}

	limits := strings.Split(limitHeader, ",")
	usages := strings.Split(usageHeader, ",")
	if len(limits) != 2 || len(usages) != 2 {
		return
	}

	limit15, _ := strconv.Atoi(strings.TrimSpace(limits[0]))
	limitDaily, _ := strconv.Atoi(strings.TrimSpace(limits[1]))
	usage15, _ := strconv.Atoi(strings.TrimSpace(usages[0]))
	usageDaily, _ := strconv.Atoi(strings.TrimSpace(usages[1]))

	c.rateLimits.Update(limit15, usage15, limitDaily, usageDaily)
}

// parseRetryAfter extracts retry delay from the Retry-After header
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
