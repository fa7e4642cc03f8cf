// Package jobs is the PostgreSQL-backed background queue that delivers portal
// notifications: a queue table drained with SKIP LOCKED, a worker pool, a
// periodic scheduler and the notification handlers themselves.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job finished successfully
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed after all retries
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled
	JobStatusCancelled JobStatus = "cancelled"
)

// JobPriority represents the priority level of a job
type JobPriority int

const (
	PriorityLow    JobPriority = 0
	PriorityNormal JobPriority = 50
	PriorityHigh   JobPriority = 75
	PriorityUrgent JobPriority = 100
)

// DefaultQueue is the queue notifications are enqueued on
const DefaultQueue = "default"

// DefaultMaxAttempts bounds retries before a job lands in failed
const DefaultMaxAttempts = 5

// Job represents a background job with all its metadata
type Job struct {
	ID uuid.UUID `json:"id"`
	// TenantID is the slug of the site the job belongs to
	TenantID    string         `json:"tenant_id"`
	Queue       string         `json:"queue"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Status      JobStatus      `json:"status"`
	Priority    JobPriority    `json:"priority"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	// Error stores the last error message if the job failed
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RunAt       time.Time  `json:"run_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LockedBy    *string    `json:"locked_by,omitempty"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
}

// NewJob creates a pending job on the default queue
func NewJob(tenantID, jobType string, payload map[string]any) *Job {
	now := time.Now().UTC()
	if payload == nil {
		payload = map[string]any{}
	}
	return &Job{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Queue:       DefaultQueue,
		Type:        jobType,
		Payload:     payload,
		Status:      JobStatusPending,
		Priority:    PriorityNormal,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		RunAt:       now,
	}
}

// IsRetryable returns true if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Attempts < j.MaxAttempts
}

// String reads a string field from the payload, "" when absent
func (j *Job) String(key string) string {
	v, _ := j.Payload[key].(string)
	return v
}

// Backoff is the delay before retrying after the given attempt: one minute
// doubled per attempt, capped at 2^10 minutes. Retry computes the same value
// in SQL.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 10 {
		shift = 10
	}
	return time.Duration(1<<shift) * time.Minute
}
