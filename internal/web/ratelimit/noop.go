package ratelimit

import (
	"context"
	"time"
)

// Noop allows every request. It is used when rate limiting is disabled
// or no backing store is configured.
type Noop struct {
	Limit  int
	Window time.Duration
}

// Allow always allows the request
func (n Noop) Allow(ctx context.Context, key string) (*Info, error) {
	return &Info{
		Limit:     n.Limit,
		Remaining: n.Limit,
		ResetAt:   time.Now().Add(n.Window),
		Allowed:   true,
	}, nil
}
