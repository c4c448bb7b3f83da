package syncer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"stravaldi/internal/database"
	"stravaldi/internal/metrics"
	"stravaldi/internal/strava"
	"stravaldi/internal/tokens"
)

// Worker drains the sync_jobs queue in the background
type Worker struct {
	db           *database.DB
	syncer       *Syncer
	client       *strava.Client
	logger       *slog.Logger
	pollInterval time.Duration

	// throttlePercent pauses backfill when rate limit usage crosses it
	throttlePercent float64
}

// NewWorker creates a new sync job worker
func NewWorker(db *database.DB, s *Syncer, client *strava.Client, throttlePercent float64) *Worker {
	return &Worker{
		db:              db,
		syncer:          s,
		client:          client,
		logger:          slog.Default(),
		pollInterval:    500 * time.Millisecond,
		throttlePercent: throttlePercent,
	}
}

// Start runs the worker loop until the context is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting sync worker")
	metrics.WorkerActive.Set(1)
	defer metrics.WorkerActive.Set(0)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping sync worker")
			return ctx.Err()
		default:
		}

		// Back off while the API budget is nearly spent; jobs stay queued
		if w.client.RateLimits().IsNearLimit(w.throttlePercent) {
			metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeThrottled).Inc()
			metrics.SyncJobsThrottled.Inc()
			w.sleep(ctx)
			continue
		}

		job, err := w.db.ClaimSyncJob()
		if err != nil {
			w.logger.Error("Failed to claim sync job", "error", err)
			w.sleep(ctx)
			continue
		}

		if job == nil {
			metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeIdle).Inc()
			w.sleep(ctx)
			continue
		}

		metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeJobFound).Inc()
		w.processJob(ctx, job)
	}
}

// processJob handles a single claimed job
func (w *Worker) processJob(ctx context.Context, job *database.SyncJob) {
	start := time.Now()
	w.logger.Info("Processing sync job",
		"id", job.ID,
		"user_id", job.UserID,
		"job_type", job.JobType,
		"retry_count", job.RetryCount)

	if job.JobType != database.JobTypeSyncUser {
		w.logger.Warn("Unknown sync job type, dropping", "id", job.ID, "job_type", job.JobType)
		if err := w.db.DeleteSyncJob(job.ID); err != nil {
			w.logger.Error("Failed to delete unknown sync job", "id", job.ID, "error", err)
		}
		metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultDropped).Inc()
		return
	}

	result, err := w.syncer.Sync(ctx, job.UserID)
	duration := time.Since(start).Seconds()

	if err != nil {
		// Auth failures are not retryable: the user must re-authenticate
		if isPermanent(err) {
			w.logger.Warn("Sync job failed permanently, dropping",
				"id", job.ID,
				"user_id", job.UserID,
				"error", err)
			if delErr := w.db.DeleteSyncJob(job.ID); delErr != nil {
				w.logger.Error("Failed to delete permanent-failure job", "id", job.ID, "error", delErr)
			}
			metrics.QueueProcessingDuration.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultFailure).Observe(duration)
			metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultDropped).Inc()
			return
		}

		w.logger.Error("Failed to process sync job", "id", job.ID, "error", err)
		metrics.QueueProcessingDuration.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultFailure).Observe(duration)
		metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultRetry).Inc()
		metrics.QueueRetryTotal.WithLabelValues(metrics.QueueTypeSyncJob, strconv.Itoa(job.RetryCount+1)).Inc()
		w.release(job, err.Error())
		return
	}

	if err := w.db.DeleteSyncJob(job.ID); err != nil {
		w.logger.Error("Failed to delete completed sync job", "id", job.ID, "error", err)
		return
	}

	metrics.QueueProcessingDuration.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultSuccess).Observe(duration)
	metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeSyncJob, metrics.ResultSuccess).Inc()

	w.logger.Info("Sync job completed",
		"id", job.ID,
		"user_id", job.UserID,
		"listed", result.Listed,
		"fetched", result.Fetched,
		"skipped", result.Skipped)
}

// release returns a failed job to the queue with backoff
func (w *Worker) release(job *database.SyncJob, errMsg string) {
	released, err := w.db.ReleaseSyncJob(job.ID, job.RetryCount, errMsg)
	if err != nil {
		w.logger.Error("Failed to release sync job", "id", job.ID, "error", err)
		return
	}

	if !released {
		w.logger.Warn("Sync job exceeded max retries, dropped",
			"id", job.ID,
			"retry_count", job.RetryCount)
	} else {
		w.logger.Info("Sync job released for retry",
			"id", job.ID,
			"retry_count", job.RetryCount+1)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

// isPermanent reports whether an error should never be retried
func isPermanent(err error) bool {
	return errors.Is(err, tokens.ErrNoToken) || strava.IsUnauthorized(err)
}
