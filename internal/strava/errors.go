package strava

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError represents a non-success response from the Strava API
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("strava api error: status %d: %s", e.StatusCode, e.Body)
}

func statusIs(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}

// IsUnauthorized reports whether err is a 401 from the Strava API
func IsUnauthorized(err error) bool {
	return statusIs(err, http.StatusUnauthorized)
}

// IsNotFound reports whether err is a 404 from the Strava API
func IsNotFound(err error) bool {
	return statusIs(err, http.StatusNotFound)
}

// IsTooManyRequests reports whether err is a 429 from the Strava API
func IsTooManyRequests(err error) bool {
	return statusIs(err, http.StatusTooManyRequests)
}
