package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements an in-memory cache with TTL support
type MemoryCache struct {
	mu     sync.Mutex
	items  map[string]cacheItem
	config Config
	now    func() time.Time
	done   chan struct{}
	once   sync.Once
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates an in-memory cache. A positive cleanupInterval
// starts a goroutine that drops expired items; stop it with Close.
func NewMemoryCache(config Config, cleanupInterval time.Duration) *MemoryCache {
	m := &MemoryCache{
		items:  make(map[string]cacheItem),
		config: config,
		now:    time.Now,
		done:   make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go m.cleanupLoop(cleanupInterval)
	}

	return m
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fullKey := m.config.Prefix + key
	item, ok := m.items[fullKey]
	if !ok {
		return nil, ErrMiss
	}
	if item.expired(m.now()) {
		delete(m.items, fullKey)
		return nil, ErrMiss
	}

	return item.value, nil
}

// Set stores a copy of value
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	item := cacheItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiration = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.items[m.config.Prefix+key] = item
	m.mu.Unlock()
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, m.config.Prefix+key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored items, expired or not
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close stops the background cleanup goroutine
func (m *MemoryCache) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *MemoryCache) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, item := range m.items {
		if item.expired(now) {
			delete(m.items, key)
		}
	}
}

func (i cacheItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}
