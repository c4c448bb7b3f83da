package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"stravaldi/internal/metrics"
)

// ActivitySummary is the subset of a list-endpoint entry the syncer needs
type ActivitySummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ListActivities fetches one page of the athlete's activity summaries.
// Returns the summaries and whether more pages may be available.
func (c *Client) ListActivities(ctx context.Context, accessToken string, page, perPage int) ([]ActivitySummary, bool, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 200 // Strava max
	}

	params := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}
	path := "/athlete/activities?" + params.Encode()

	body, err := c.doRequest(ctx, metrics.OpListActivities, http.MethodGet, path, accessToken)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list activities: %w", err)
	}

	var summaries []ActivitySummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal activities: %w", err)
	}

	// A full page means there might be more
	hasMore := len(summaries) == perPage

	return summaries, hasMore, nil
}

// GetActivity fetches the detailed activity payload verbatim
func (c *Client) GetActivity(ctx context.Context, accessToken string, activityID int64) (json.RawMessage, error) {
	path := fmt.Sprintf("/activities/%d?include_all_efforts=false", activityID)

	body, err := c.doRequest(ctx, metrics.OpGetActivity, http.MethodGet, path, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity %d: %w", activityID, err)
	}

	return json.RawMessage(body), nil
}
