package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/portal/internal/store"
)

var (
	// ErrNoJobs is returned by Dequeue when nothing is runnable
	ErrNoJobs = errors.New("no jobs available")
	// ErrJobNotFound is returned when a job id does not exist or is not in a
	// state the operation applies to
	ErrJobNotFound = errors.New("job not found")
)

const jobColumns = `id, tenant_id, queue, type, payload, status, priority, attempts, max_attempts,
		       error, created_at, run_at, started_at, completed_at, locked_by, locked_at`

// Queue provides PostgreSQL-backed job queue operations
type Queue struct {
	db  store.DBTX
	now func() time.Time
}

// NewQueue creates a job queue over db
func NewQueue(db store.DBTX) *Queue {
	return &Queue{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithTx returns a queue whose writes join tx, so a job commits or rolls back
// with the rows that caused it
func (q *Queue) WithTx(tx store.DBTX) *Queue {
	return &Queue{db: tx, now: q.now}
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO jobs (
			id, tenant_id, queue, type, payload, status, priority,
			attempts, max_attempts, created_at, run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = q.db.ExecContext(ctx, query,
		job.ID, job.TenantID, job.Queue, job.Type, payloadJSON, job.Status, job.Priority,
		job.Attempts, job.MaxAttempts, job.CreatedAt, job.RunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", store.ConvertError(err))
	}

	return nil
}

// Schedule adds a job to be executed at a specific time
func (q *Queue) Schedule(ctx context.Context, job *Job, runAt time.Time) error {
	job.RunAt = runAt
	return q.Enqueue(ctx, job)
}

// Dequeue locks the next runnable job on queueName for workerID. Concurrent
// workers never receive the same job.
func (q *Queue) Dequeue(ctx context.Context, workerID, queueName string) (*Job, error) {
	query := `
		UPDATE jobs
		SET status = $1, locked_by = $2, locked_at = $3, started_at = $3, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $4
				AND queue = $5
				AND run_at <= $3
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	now := q.now()
	job, err := scanJob(q.db.QueryRowContext(ctx, query,
		JobStatusRunning, workerID, now,
		JobStatusPending, queueName,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJobs
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	return job, nil
}

// Complete marks a job as successfully completed
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, completed_at = $2, locked_by = NULL, locked_at = NULL
		WHERE id = $3
	`
	return q.execOne(ctx, "complete", query, JobStatusCompleted, q.now(), jobID)
}

// Fail marks a job as failed with an error message
func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1, error = $2, completed_at = $3, locked_by = NULL, locked_at = NULL
		WHERE id = $4
	`
	return q.execOne(ctx, "fail", query, JobStatusFailed, errMsg, q.now(), jobID)
}

// Retry puts a job back to pending with exponential backoff. The attempts
// check and the update are one statement, so a job past max_attempts is
// never revived.
func (q *Queue) Retry(ctx context.Context, jobID uuid.UUID, errMsg string) (time.Time, error) {
	query := `
		WITH job_data AS (
			SELECT attempts, max_attempts FROM jobs WHERE id = $1
		)
		UPDATE jobs
		SET status = $2,
			run_at = $3 + (INTERVAL '1 minute' * (1 << LEAST(jobs.attempts - 1, 10))),
			locked_by = NULL,
			locked_at = NULL,
			error = $4
		FROM job_data
		WHERE jobs.id = $1
		  AND job_data.attempts < job_data.max_attempts
		RETURNING jobs.run_at
	`

	var runAt time.Time
	err := q.db.QueryRowContext(ctx, query, jobID, JobStatusPending, q.now(), errMsg).Scan(&runAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w or exceeded max attempts: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to retry job: %w", err)
	}
	return runAt, nil
}

// Cancel marks a pending or running job as cancelled
func (q *Queue) Cancel(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, completed_at = $2, locked_by = NULL, locked_at = NULL
		WHERE id = $3 AND status IN ($4, $5)
	`
	return q.execOne(ctx, "cancel", query,
		JobStatusCancelled, q.now(), jobID, JobStatusPending, JobStatusRunning)
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(q.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns a tenant's jobs, optionally filtered by status, newest first
func (q *Queue) ListJobs(ctx context.Context, tenantID string, status JobStatus, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE tenant_id = $1
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := q.db.QueryContext(ctx, query, tenantID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// PurgeCompleted removes completed jobs older than the specified duration
func (q *Queue) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE status = $1 AND completed_at < $2
	`

	result, err := q.db.ExecContext(ctx, query, JobStatusCompleted, q.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// Stats returns per-status counts for a queue
func (q *Queue) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'running') as running,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'cancelled') as cancelled
		FROM jobs
		WHERE queue = $1
	`

	var stats QueueStats
	err := q.db.QueryRowContext(ctx, query, queueName).Scan(
		&stats.Pending, &stats.Running, &stats.Completed, &stats.Failed, &stats.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	stats.Queue = queueName
	return &stats, nil
}

// QueueStats holds statistics for a job queue
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Running   int    `json:"running"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}

func (q *Queue) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s job: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var payloadJSON []byte

	err := row.Scan(
		&job.ID, &job.TenantID, &job.Queue, &job.Type, &payloadJSON, &job.Status, &job.Priority,
		&job.Attempts, &job.MaxAttempts, &job.Error, &job.CreatedAt, &job.RunAt,
		&job.StartedAt, &job.CompletedAt, &job.LockedBy, &job.LockedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	if job.Payload == nil {
		job.Payload = map[string]any{}
	}

	return &job, nil
}
