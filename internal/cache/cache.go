// Package cache provides short-lived byte caches backed by Redis or process
// memory. Values are opaque; callers choose the encoding.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get returns ErrMiss when the key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value; a zero ttl uses the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is the default time-to-live for cached items
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 30 * time.Second,
		Prefix:     "portal:",
	}
}

// ErrMiss is returned when a key is not in the cache
var ErrMiss = errors.New("cache miss")

// Noop never stores anything
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, error) { return nil, ErrMiss }

func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (Noop) Delete(ctx context.Context, key string) error { return nil }
