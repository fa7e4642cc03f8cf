package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	// Allow records the request if it fits in the current window
	// Denied requests are not recorded and do not extend the window
	Allow(ctx context.Context, key string) (*Info, error)
}

// Info contains information about the current rate limit state
type Info struct {
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Remaining is the number of requests remaining in the current window
	Remaining int
	// ResetAt is when the oldest counted request leaves the window
	ResetAt time.Time
	// Allowed indicates whether the request should be allowed
	Allowed bool
}

// Clock returns the current time. Tests replace it to move the window.
type Clock func() time.Time

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
