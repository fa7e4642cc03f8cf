package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheduler enqueues recurring jobs at fixed intervals
type Scheduler struct {
	queue     *Queue
	logger    *zap.Logger
	tick      time.Duration
	now       func() time.Time
	schedules map[string]*Schedule
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// Schedule defines a recurring job
type Schedule struct {
	ID       string
	TenantID string
	Type     string
	Payload  map[string]any
	Interval time.Duration
	Enabled  bool
	LastRun  time.Time
	NextRun  time.Time
}

// NewScheduler creates a scheduler that checks for due schedules every tick
func NewScheduler(queue *Queue, tick time.Duration, logger *zap.Logger) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		queue:     queue,
		logger:    logger.Named("scheduler"),
		tick:      tick,
		now:       time.Now,
		schedules: make(map[string]*Schedule),
		stopChan:  make(chan struct{}),
	}
}

// Every builds a schedule for jobType with the given interval
func Every(interval time.Duration, jobType string, payload map[string]any) *Schedule {
	return &Schedule{
		ID:       uuid.NewString(),
		Type:     jobType,
		Payload:  payload,
		Interval: interval,
	}
}

// Add registers a schedule. Its first run is one interval from now.
func (s *Scheduler) Add(schedule *Schedule) error {
	if schedule.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if schedule.Type == "" {
		return errors.New("job type is required")
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	schedule.NextRun = s.now().Add(schedule.Interval)
	schedule.Enabled = true
	s.schedules[schedule.ID] = schedule
	return nil
}

// Remove deletes a schedule
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}
	delete(s.schedules, id)
	return nil
}

// SetEnabled pauses or resumes a schedule
func (s *Scheduler) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}
	schedule.Enabled = enabled
	return nil
}

// List returns the schedules ordered by next run
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out
}

// Start runs the scheduler loop until Stop or ctx ends
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the loop and waits for it to exit
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue enqueues every enabled schedule whose next run has passed and
// returns how many were enqueued
func (s *Scheduler) RunDue(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	enqueued := 0
	for _, schedule := range s.schedules {
		if !schedule.Enabled || now.Before(schedule.NextRun) {
			continue
		}

		job := NewJob(schedule.TenantID, schedule.Type, schedule.Payload)
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Warn("failed to enqueue scheduled job",
				zap.String("schedule", schedule.ID),
				zap.String("type", schedule.Type),
				zap.Error(err),
			)
			continue
		}

		schedule.LastRun = now
		schedule.NextRun = now.Add(schedule.Interval)
		enqueued++
	}
	return enqueued
}
