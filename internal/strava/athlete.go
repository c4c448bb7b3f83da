package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"stravaldi/internal/metrics"
)

// GetAthlete fetches the authenticated athlete's profile verbatim
func (c *Client) GetAthlete(ctx context.Context, accessToken string) (json.RawMessage, error) {
	body, err := c.doRequest(ctx, metrics.OpGetAthlete, http.MethodGet, "/athlete", accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get athlete: %w", err)
	}

	return json.RawMessage(body), nil
}
