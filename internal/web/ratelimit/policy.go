package ratelimit

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy names a limit applied to a class of endpoints
type Policy struct {
	Name   string        `mapstructure:"name"`
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Built-in policies
var (
	// PolicyContact guards public intake forms
	PolicyContact = Policy{Name: "contact", Limit: 5, Window: 10 * time.Minute}
	// PolicyAuth guards login attempts
	PolicyAuth = Policy{Name: "auth", Limit: 10, Window: 15 * time.Minute}
	// PolicyAPI guards authenticated API traffic
	PolicyAPI = Policy{Name: "api", Limit: 120, Window: time.Minute}
)

// DefaultPolicies returns the built-in policies
func DefaultPolicies() []Policy {
	return []Policy{PolicyContact, PolicyAuth, PolicyAPI}
}

// Backend selects the store behind every policy
type Backend string

const (
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
	BackendNoop   Backend = "noop"
)

// ErrUnknownPolicy is returned when a policy name was never registered
var ErrUnknownPolicy = errors.New("unknown rate limit policy")

// Registry holds one limiter per policy
type Registry struct {
	backend  Backend
	limiters map[string]Limiter
	closers  []io.Closer
}

// NewRegistry builds limiters for the given policies. A redis backend without
// a client degrades to memory.
func NewRegistry(backend Backend, client *redis.Client, policies ...Policy) (*Registry, error) {
	if backend == BackendRedis && client == nil {
		backend = BackendMemory
	}

	r := &Registry{
		backend:  backend,
		limiters: make(map[string]Limiter, len(policies)),
	}

	for _, p := range policies {
		if p.Name == "" {
			return nil, errors.New("policy name is required")
		}
		if _, dup := r.limiters[p.Name]; dup {
			return nil, fmt.Errorf("duplicate rate limit policy %q", p.Name)
		}

		switch backend {
		case BackendRedis:
			l, err := NewRedisLimiter(RedisConfig{
				Client: client,
				Limit:  p.Limit,
				Window: p.Window,
				Prefix: "ratelimit:" + p.Name + ":",
			})
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", p.Name, err)
			}
			r.limiters[p.Name] = l
		case BackendMemory:
			l, err := NewMemoryLimiter(MemoryConfig{
				Limit:           p.Limit,
				Window:          p.Window,
				CleanupInterval: p.Window,
			})
			if err != nil {
				r.Close()
				return nil, fmt.Errorf("policy %s: %w", p.Name, err)
			}
			r.limiters[p.Name] = l
			r.closers = append(r.closers, l)
		case BackendNoop:
			r.limiters[p.Name] = Noop{Limit: p.Limit, Window: p.Window}
		default:
			r.Close()
			return nil, fmt.Errorf("unknown rate limit backend %q", backend)
		}
	}

	return r, nil
}

// Backend returns the backend actually in use
func (r *Registry) Backend() Backend {
	return r.backend
}

// Get returns the limiter for a policy
func (r *Registry) Get(name string) (Limiter, error) {
	l, ok := r.limiters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, name)
	}
	return l, nil
}

// MustGet is Get for wiring code where a missing policy is a programming error
func (r *Registry) MustGet(name string) Limiter {
	l, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return l
}

// Close releases background resources held by the limiters
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
