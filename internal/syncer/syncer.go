package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stravaldi/internal/database"
	"stravaldi/internal/metrics"
	"stravaldi/internal/strava"
	"stravaldi/internal/tokens"
)

// Syncer fills the local activity cache from the Strava API
type Syncer struct {
	db       *database.DB
	client   *strava.Client
	tokens   *tokens.Manager
	logger   *slog.Logger
	pageSize int

	// Delay between summary pages, kept short but nonzero to spread load
	pageDelay time.Duration
}

// Result summarizes a sync run
type Result struct {
	AthleteID int64
	Listed    int
	Fetched   int
	Skipped   int
}

// New creates a new Syncer
func New(db *database.DB, client *strava.Client, tokenManager *tokens.Manager, pageSize int) *Syncer {
	return &Syncer{
		db:        db,
		client:    client,
		tokens:    tokenManager,
		logger:    slog.Default(),
		pageSize:  pageSize,
		pageDelay: 100 * time.Millisecond,
	}
}

// Sync refreshes the athlete profile and fills the activity cache for a
// user. Summary pages are walked in order; details are fetched only for
// activities not already cached, so an up-to-date cache costs one API call
// per page plus the profile fetch.
func (s *Syncer) Sync(ctx context.Context, userID string) (*Result, error) {
	accessToken, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	athleteRaw, err := s.client.GetAthlete(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch athlete profile: %w", err)
	}

	athleteID, err := s.db.StoreAthlete(athleteRaw, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to store athlete profile: %w", err)
	}

	s.logger.Info("Stored athlete profile", "user_id", userID, "athlete_id", athleteID)

	result := &Result{AthleteID: athleteID}
	page := 1

	for {
		summaries, hasMore, err := s.client.ListActivities(ctx, accessToken, page, s.pageSize)
		if err != nil {
			metrics.SyncRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
			return nil, fmt.Errorf("failed to list activities (page %d): %w", page, err)
		}

		for _, summary := range summaries {
			result.Listed++

			cached, err := s.db.GetActivity(summary.ID, userID)
			if err != nil {
				return nil, fmt.Errorf("failed to check cache for activity %d: %w", summary.ID, err)
			}
			if cached != nil {
				s.logger.Debug("Activity found in cache", "activity_id", summary.ID, "name", summary.Name)
				result.Skipped++
				metrics.ActivitiesSyncedTotal.WithLabelValues(metrics.ActivitySkipped).Inc()
				continue
			}

			s.logger.Info("Activity not in cache, fetching details",
				"activity_id", summary.ID,
				"name", summary.Name)

			raw, err := s.client.GetActivity(ctx, accessToken, summary.ID)
			if err != nil {
				if strava.IsNotFound(err) {
					s.logger.Warn("Activity vanished upstream, skipping", "activity_id", summary.ID)
					continue
				}
				metrics.SyncRunsTotal.WithLabelValues(metrics.ResultFailure).Inc()
				return nil, fmt.Errorf("failed to fetch activity %d: %w", summary.ID, err)
			}

			if _, err := s.db.StoreActivity(raw, userID); err != nil {
				return nil, fmt.Errorf("failed to store activity %d: %w", summary.ID, err)
			}

			result.Fetched++
			metrics.ActivitiesSyncedTotal.WithLabelValues(metrics.ActivityFetched).Inc()
		}

		s.logger.Info("Synced activity page",
			"user_id", userID,
			"page", page,
			"listed", len(summaries),
			"fetched_so_far", result.Fetched)

		if !hasMore {
			break
		}
		page++

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pageDelay):
		}
	}

	metrics.SyncRunsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.SyncActivitiesFetched.Observe(float64(result.Fetched))

	s.logger.Info("Sync completed",
		"user_id", userID,
		"athlete_id", athleteID,
		"listed", result.Listed,
		"fetched", result.Fetched,
		"skipped", result.Skipped)

	return result, nil
}
