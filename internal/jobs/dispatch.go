package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/store"
)

// Dispatcher enqueues jobs on behalf of domain services
type Dispatcher struct {
	queue  *Queue
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher writing to queue
func NewDispatcher(queue *Queue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: queue, logger: logger.Named("jobs")}
}

// Dispatch enqueues a job of jobType for tenantID. When tx is non-nil the
// insert joins that transaction.
func (d *Dispatcher) Dispatch(ctx context.Context, tx store.DBTX, tenantID, jobType string, payload map[string]any) (*Job, error) {
	return d.DispatchWithPriority(ctx, tx, tenantID, jobType, payload, PriorityNormal)
}

// DispatchWithPriority is Dispatch with an explicit priority
func (d *Dispatcher) DispatchWithPriority(ctx context.Context, tx store.DBTX, tenantID, jobType string, payload map[string]any, priority JobPriority) (*Job, error) {
	job := NewJob(tenantID, jobType, payload)
	job.Priority = priority

	q := d.queue
	if tx != nil {
		q = q.WithTx(tx)
	}

	if err := q.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to dispatch %s: %w", jobType, err)
	}

	d.logger.Debug("job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("type", jobType),
		zap.String("tenant", tenantID),
		zap.Int("priority", int(priority)),
	)
	return job, nil
}
