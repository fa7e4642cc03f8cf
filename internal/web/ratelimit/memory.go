package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryLimiter is an in-process sliding window log. It backs rate limiting
// when no Redis is configured, so limits are per process.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	limit   int
	window  time.Duration
	now     Clock
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// MemoryConfig holds configuration for the in-memory limiter
type MemoryConfig struct {
	Limit  int
	Window time.Duration
	// CleanupInterval is how often idle keys are dropped; zero disables it
	CleanupInterval time.Duration
	Clock           Clock
}

// NewMemoryLimiter creates a new in-memory limiter
func NewMemoryLimiter(config MemoryConfig) (*MemoryLimiter, error) {
	if config.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if config.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}

	now := config.Clock
	if now == nil {
		now = time.Now
	}

	m := &MemoryLimiter{
		entries: make(map[string][]time.Time),
		limit:   config.Limit,
		window:  config.Window,
		now:     now,
		done:    make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		m.cleanup = time.NewTicker(config.CleanupInterval)
		go m.cleanupLoop()
	}

	return m, nil
}

// Allow checks if a request should be allowed for the given key
func (m *MemoryLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	hits := m.trim(key, now)

	allowed := len(hits) < m.limit
	if allowed {
		hits = append(hits, now)
		m.entries[key] = hits
	}

	resetAt := now.Add(m.window)
	if len(hits) > 0 {
		resetAt = hits[0].Add(m.window)
	}

	return &Info{
		Limit:     m.limit,
		Remaining: remaining(m.limit, len(hits)),
		ResetAt:   resetAt,
		Allowed:   allowed,
	}, nil
}

// Reset removes all rate limit data for the given key
func (m *MemoryLimiter) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Count returns the number of requests currently in the window for key
func (m *MemoryLimiter) Count(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trim(key, m.now())), nil
}

// trim drops entries that left the window. Caller holds mu.
func (m *MemoryLimiter) trim(key string, now time.Time) []time.Time {
	hits := m.entries[key]
	cutoff := now.Add(-m.window)

	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}

	hits = append(hits[:0], hits[i:]...)
	if len(hits) == 0 {
		delete(m.entries, key)
		return nil
	}
	m.entries[key] = hits
	return hits
}

func (m *MemoryLimiter) cleanupLoop() {
	for {
		select {
		case <-m.cleanup.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key := range m.entries {
		m.trim(key, now)
	}
}

// Len returns the number of tracked keys
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the cleanup goroutine
func (m *MemoryLimiter) Close() error {
	m.once.Do(func() {
		close(m.done)
		if m.cleanup != nil {
			m.cleanup.Stop()
		}
	})
	return nil
}
