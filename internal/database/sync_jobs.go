package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stravaldi/internal/metrics"
)

const (
	// MaxRetries is the number of times a failed job is retried before being dropped
	MaxRetries = 7

	// StaleLockTimeout is how long a claimed job can sit in processing before
	// another worker may take it over
	StaleLockTimeout = 10 * time.Minute
)

// JobTypeSyncUser triggers a full cache sync for a local user
const JobTypeSyncUser = "sync_user"

// SyncJob represents a sync job awaiting processing
type SyncJob struct {
	ID                  int64
	UserID              string
	JobType             string
	RetryCount          int
	LastError           *string
	NextRetryAt         *time.Time
	ProcessingStartedAt *time.Time
	CreatedAt           time.Time
}

// EnqueueSyncJob adds a sync job to the processing queue
func (db *DB) EnqueueSyncJob(userID, jobType string) (int64, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpEnqueueSyncJob))
	defer timer.ObserveDuration()

	result, err := db.conn.Exec(
		`INSERT INTO sync_jobs (user_id, job_type, created_at) VALUES (?, ?, ?)`,
		userID, jobType, time.Now().Unix(),
	)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnqueueSyncJob).Inc()
		return 0, fmt.Errorf("failed to enqueue sync job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnqueueSyncJob).Inc()
		return 0, fmt.Errorf("failed to get sync job id: %w", err)
	}

	metrics.QueueEnqueueTotal.WithLabelValues(metrics.QueueTypeSyncJob).Inc()

	return id, nil
}

// ClaimSyncJob claims the next ready sync job for processing.
// Returns nil if no items are ready. Items are ready when next_retry_at is
// NULL or in the past, and processing_started_at is NULL or stale.
// The UPDATE claims the job atomically so concurrent workers never double-claim.
func (db *DB) ClaimSyncJob() (*SyncJob, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpClaimSyncJob))
	defer timer.ObserveDuration()

	now := time.Now()
	staleThreshold := now.Add(-StaleLockTimeout).Unix()

	query := `
		UPDATE sync_jobs
		SET processing_started_at = ?
		WHERE id = (
			SELECT id
			FROM sync_jobs
			WHERE (next_retry_at IS NULL OR next_retry_at <= ?)
			  AND (processing_started_at IS NULL OR processing_started_at < ?)
			ORDER BY id ASC
			LIMIT 1
		)
		RETURNING id, user_id, job_type, retry_count, last_error, next_retry_at, created_at
	`

	var job SyncJob
	var nextRetryAt *int64
	var createdAt int64

	err := db.conn.QueryRow(query, now.Unix(), now.Unix(), staleThreshold).Scan(
		&job.ID,
		&job.UserID,
		&job.JobType,
		&job.RetryCount,
		&job.LastError,
		&nextRetryAt,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No items ready
		}
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpClaimSyncJob).Inc()
		return nil, fmt.Errorf("failed to claim sync job: %w", err)
	}

	if nextRetryAt != nil {
		t := time.Unix(*nextRetryAt, 0)
		job.NextRetryAt = &t
	}
	job.ProcessingStartedAt = &now
	job.CreatedAt = time.Unix(createdAt, 0)

	return &job, nil
}

// DeleteSyncJob deletes a processed sync job from the queue
func (db *DB) DeleteSyncJob(id int64) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpDeleteSyncJob))
	defer timer.ObserveDuration()

	_, err := db.conn.Exec(`DELETE FROM sync_jobs WHERE id = ?`, id)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpDeleteSyncJob).Inc()
		return fmt.Errorf("failed to delete sync job: %w", err)
	}

	return nil
}

// ReleaseSyncJob releases a failed sync job back to the queue with retry
// tracking and exponential backoff. Returns true if the job was released,
// false if it was dropped after exceeding MaxRetries.
func (db *DB) ReleaseSyncJob(id int64, retryCount int, errMsg string) (bool, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpReleaseSyncJob))
	defer timer.ObserveDuration()

	newRetryCount := retryCount + 1

	if newRetryCount > MaxRetries {
		if err := db.DeleteSyncJob(id); err != nil {
			return false, fmt.Errorf("failed to drop sync job after max retries: %w", err)
		}
		return false, nil // Dropped
	}

	// Backoff schedule: 1min, 5min, 15min, 30min, 1hr, 2hr, 4hr
	backoffMinutes := []int{1, 5, 15, 30, 60, 120, 240}
	backoffIdx := newRetryCount - 1
	if backoffIdx >= len(backoffMinutes) {
		backoffIdx = len(backoffMinutes) - 1
	}

	nextRetryAt := time.Now().Add(time.Duration(backoffMinutes[backoffIdx]) * time.Minute)

	_, err := db.conn.Exec(`
		UPDATE sync_jobs
		SET retry_count = ?,
		    last_error = ?,
		    next_retry_at = ?,
		    processing_started_at = NULL
		WHERE id = ?
	`, newRetryCount, errMsg, nextRetryAt.Unix(), id)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpReleaseSyncJob).Inc()
		return false, fmt.Errorf("failed to release sync job: %w", err)
	}

	return true, nil // Released for retry
}

// GetSyncJobQueueLength returns the number of sync jobs in the queue
func (db *DB) GetSyncJobQueueLength() (int, error) {
	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM sync_jobs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get sync job queue length: %w", err)
	}
	return count, nil
}

// GetReadySyncJobQueueLength returns the number of sync jobs ready to process
func (db *DB) GetReadySyncJobQueueLength() (int, error) {
	now := time.Now()
	staleThreshold := now.Add(-StaleLockTimeout).Unix()

	var count int
	err := db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM sync_jobs
		WHERE (next_retry_at IS NULL OR next_retry_at <= ?)
		  AND (processing_started_at IS NULL OR processing_started_at < ?)
	`, now.Unix(), staleThreshold).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get ready sync job queue length: %w", err)
	}
	return count, nil
}

// GetProcessingSyncJobQueueLength returns the number of sync jobs currently
// held by a worker (recent processing_started_at)
func (db *DB) GetProcessingSyncJobQueueLength() (int, error) {
	staleThreshold := time.Now().Add(-StaleLockTimeout).Unix()

	var count int
	err := db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM sync_jobs
		WHERE processing_started_at IS NOT NULL
		  AND processing_started_at >= ?
	`, staleThreshold).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get processing sync job queue length: %w", err)
	}
	return count, nil
}
