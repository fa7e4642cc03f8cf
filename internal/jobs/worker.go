package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/metrics"
)

// Handler processes one job. A returned error triggers a retry until the
// job runs out of attempts.
type Handler func(ctx context.Context, job *Job) error

// PoolConfig configures a WorkerPool
type PoolConfig struct {
	Queue        string        `mapstructure:"queue"`
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// JobTimeout bounds a single handler run
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// DefaultPoolConfig returns the pool settings used by portal serve
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Queue:        DefaultQueue,
		Workers:      2,
		PollInterval: time.Second,
		JobTimeout:   30 * time.Second,
	}
}

// Worker is a single goroutine draining the queue
type Worker struct {
	ID       string
	pool     *WorkerPool
	stopChan <-chan struct{}
}

// WorkerPool manages multiple worker goroutines for concurrent job processing
type WorkerPool struct {
	queue    *Queue
	handlers *HandlerRegistry
	config   PoolConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
	// instance prefixes worker IDs and is unique per process
	instance string

	workers  []*Worker
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopped  bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *Queue, config PoolConfig, logger *zap.Logger, m *metrics.Metrics) *WorkerPool {
	defaults := DefaultPoolConfig()
	if config.Queue == "" {
		config.Queue = defaults.Queue
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerPool{
		queue:    queue,
		handlers: NewHandlerRegistry(),
		config:   config,
		logger:   logger.Named("jobs"),
		metrics:  m,
		instance: instanceID(),
		stopChan: make(chan struct{}),
	}
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "portal"
	}
	return host + "-" + uuid.NewString()[:8]
}

func (p *WorkerPool) workerID(i int) string {
	return fmt.Sprintf("%s-%s-%d", p.instance, p.config.Queue, i)
}

// RegisterHandler registers a job handler for a specific job type
func (p *WorkerPool) RegisterHandler(jobType string, handler Handler) {
	p.handlers.Register(jobType, handler)
}

// Handlers exposes the registry, mainly for wiring checks
func (p *WorkerPool) Handlers() *HandlerRegistry {
	return p.handlers
}

// Start launches the workers. They run until Stop is called or ctx ends.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	p.logger.Info("starting worker pool",
		zap.Int("workers", p.config.Workers),
		zap.String("queue", p.config.Queue),
		zap.Strings("types", p.handlers.ListTypes()),
	)

	for i := 0; i < p.config.Workers; i++ {
		worker := &Worker{
			ID:       p.workerID(i),
			pool:     p,
			stopChan: p.stopChan,
		}

		p.workers = append(p.workers, worker)
		p.wg.Add(1)
		go worker.run(ctx)
	}
}

// Stop signals every worker and waits for in-flight jobs to finish
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped", zap.String("queue", p.config.Queue))
}

// Shutdown is Stop bounded by ctx, for use as a server shutdown hook
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool did not stop: %w", ctx.Err())
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// drain without sleeping while work is available
		for w.runOnce(ctx) {
			select {
			case <-w.stopChan:
				return
			case <-ctx.Done():
				return
			default:
			}
		}
		timer.Reset(w.pool.config.PollInterval)
	}
}

// runOnce processes at most one job and reports whether it found one
func (w *Worker) runOnce(ctx context.Context) bool {
	job, err := w.pool.queue.Dequeue(ctx, w.ID, w.pool.config.Queue)
	if err != nil {
		if !errors.Is(err, ErrNoJobs) && ctx.Err() == nil {
			w.pool.logger.Warn("dequeue failed", zap.String("worker", w.ID), zap.Error(err))
		}
		return false
	}

	w.processJob(ctx, job)
	return true
}

// processJob runs the handler and records the outcome on the queue
func (w *Worker) processJob(ctx context.Context, job *Job) {
	p := w.pool
	log := p.logger.With(
		zap.String("worker", w.ID),
		zap.String("job_id", job.ID.String()),
		zap.String("type", job.Type),
		zap.String("tenant", job.TenantID),
		zap.Int("attempt", job.Attempts),
	)
	start := time.Now()

	handler, err := p.handlers.Get(job.Type)
	if err != nil {
		log.Error("no handler for job type")
		if failErr := p.queue.Fail(ctx, job.ID, err.Error()); failErr != nil {
			log.Error("failed to mark job failed", zap.Error(failErr))
		}
		p.metrics.JobOutcome(job.Type, "failed")
		return
	}

	err = w.invoke(ctx, handler, job)
	duration := time.Since(start)

	if err != nil {
		w.handleJobError(ctx, log, job, err)
		return
	}

	if err := p.queue.Complete(ctx, job.ID); err != nil {
		log.Error("failed to mark job complete", zap.Error(err))
		return
	}

	log.Info("job completed", zap.Duration("duration", duration))
	p.metrics.JobOutcome(job.Type, "completed")
}

// invoke runs handler under the job timeout and turns a panic into an error
func (w *Worker) invoke(ctx context.Context, handler Handler, job *Job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, w.pool.config.JobTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	return handler(ctx, job)
}

func (w *Worker) handleJobError(ctx context.Context, log *zap.Logger, job *Job, jobErr error) {
	p := w.pool
	errMsg := jobErr.Error()

	if job.IsRetryable() {
		runAt, err := p.queue.Retry(ctx, job.ID, errMsg)
		if err == nil {
			log.Warn("job failed, retrying", zap.Error(jobErr), zap.Time("run_at", runAt))
			p.metrics.JobOutcome(job.Type, "retried")
			return
		}
		log.Error("failed to schedule retry", zap.Error(err))
	}

	if err := p.queue.Fail(ctx, job.ID, errMsg); err != nil {
		log.Error("failed to mark job failed", zap.Error(err))
	}
	log.Error("job failed permanently", zap.Error(jobErr), zap.Int("max_attempts", job.MaxAttempts))
	p.metrics.JobOutcome(job.Type, "failed")
}

// HandlerRegistry maps job types to handlers
type HandlerRegistry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a job type, replacing any previous one
func (r *HandlerRegistry) Register(jobType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

// Get retrieves a handler for a job type
func (r *HandlerRegistry) Get(jobType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type: %s", jobType)
	}

	return handler, nil
}

// ListTypes returns the registered job types in sorted order
func (r *HandlerRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
