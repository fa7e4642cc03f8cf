package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_Backends(t *testing.T) {
	client, _ := setupTestRedis(t)

	t.Run("redis", func(t *testing.T) {
		reg, err := NewRegistry(BackendRedis, client, DefaultPolicies()...)
		require.NoError(t, err)
		defer reg.Close()

		assert.Equal(t, BackendRedis, reg.Backend())
		l, err := reg.Get("contact")
		require.NoError(t, err)
		assert.IsType(t, &RedisLimiter{}, l)
	})

	t.Run("redis without client degrades to memory", func(t *testing.T) {
		reg, err := NewRegistry(BackendRedis, nil, DefaultPolicies()...)
		require.NoError(t, err)
		defer reg.Close()

		assert.Equal(t, BackendMemory, reg.Backend())
		assert.IsType(t, &MemoryLimiter{}, reg.MustGet("auth"))
	})

	t.Run("noop", func(t *testing.T) {
		reg, err := NewRegistry(BackendNoop, nil, PolicyAPI)
		require.NoError(t, err)
		assert.IsType(t, Noop{}, reg.MustGet("api"))
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewRegistry(Backend("etcd"), nil, PolicyAPI)
		assert.Error(t, err)
	})
}

func TestRegistry_PoliciesAreIndependent(t *testing.T) {
	reg, err := NewRegistry(BackendMemory, nil,
		Policy{Name: "one", Limit: 1, Window: time.Minute},
		Policy{Name: "two", Limit: 1, Window: time.Minute},
	)
	require.NoError(t, err)
	defer reg.Close()

	ctx := context.Background()
	info, _ := reg.MustGet("one").Allow(ctx, "ip")
	assert.True(t, info.Allowed)
	info, _ = reg.MustGet("one").Allow(ctx, "ip")
	assert.False(t, info.Allowed)

	info, _ = reg.MustGet("two").Allow(ctx, "ip")
	assert.True(t, info.Allowed)
}

func TestRegistry_Errors(t *testing.T) {
	_, err := NewRegistry(BackendMemory, nil, PolicyAPI, PolicyAPI)
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(BackendMemory, nil, Policy{Limit: 1, Window: time.Second})
	assert.ErrorContains(t, err, "name is required")

	_, err = NewRegistry(BackendMemory, nil, Policy{Name: "bad", Limit: 0, Window: time.Second})
	assert.ErrorContains(t, err, "policy bad")

	reg, err := NewRegistry(BackendNoop, nil)
	require.NoError(t, err)
	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
	assert.Panics(t, func() { reg.MustGet("missing") })
}
