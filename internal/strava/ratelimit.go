package strava

import (
	"sync"
	"time"

	"stravaldi/internal/metrics"
)

// RateLimitTracker tracks Strava API rate limits as reported by response
// headers. Strava enforces a 15-minute window and a daily window.
type RateLimitTracker struct {
	mu          sync.RWMutex
	limit15Min  int
	usage15Min  int
	limitDaily  int
	usageDaily  int
	lastUpdated time.Time
}

// RateLimitStatus is a snapshot of the current rate limit state
type RateLimitStatus struct {
	Limit15Min    int
	Usage15Min    int
	LimitDaily    int
	UsageDaily    int
	Usage15MinPct float64
	UsageDailyPct float64
	LastUpdated   time.Time
}

// NewRateLimitTracker creates a tracker seeded with Strava's default limits
func NewRateLimitTracker() *RateLimitTracker {
	return &RateLimitTracker{
		limit15Min: 200,
		limitDaily: 2000,
	}
}

// Update records the limits and usage parsed from response headers
func (rl *RateLimitTracker) Update(limit15Min, usage15Min, limitDaily, usageDaily int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limit15Min = limit15Min
	rl.usage15Min = usage15Min
	rl.limitDaily = limitDaily
	rl.usageDaily = usageDaily
	rl.lastUpdated = time.Now()

	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimit15Min, metrics.BucketLimit).Set(float64(limit15Min))
	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimit15Min, metrics.BucketUsage).Set(float64(usage15Min))
	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimitDaily, metrics.BucketLimit).Set(float64(limitDaily))
	metrics.StravaRateLimitUsage.WithLabelValues(metrics.RateLimitDaily, metrics.BucketUsage).Set(float64(usageDaily))
}

// Status returns the current rate limit status
func (rl *RateLimitTracker) Status() RateLimitStatus {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	status := RateLimitStatus{
		Limit15Min:  rl.limit15Min,
		Usage15Min:  rl.usage15Min,
		LimitDaily:  rl.limitDaily,
		UsageDaily:  rl.usageDaily,
		LastUpdated: rl.lastUpdated,
	}
	if rl.limit15Min > 0 {
		status.Usage15MinPct = float64(rl.usage15Min) / float64(rl.limit15Min) * 100
	}
	if rl.limitDaily > 0 {
		status.UsageDailyPct = float64(rl.usageDaily) / float64(rl.limitDaily) * 100
	}
	return status
}

// IsNearLimit reports whether usage in either window has reached the given
// percentage threshold
func (rl *RateLimitTracker) IsNearLimit(threshold float64) bool {
	status := rl.Status()
	return status.Usage15MinPct >= threshold || status.UsageDailyPct >= threshold
}
