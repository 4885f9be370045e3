package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimalShardCount(t *testing.T) {
	assert.Equal(t, 1, OptimalShardCount(5, ShardOptions{}))
	assert.Equal(t, 1, OptimalShardCount(15, ShardOptions{}))  // floor(15/10)=1 -> pow 1
	assert.Equal(t, 2, OptimalShardCount(25, ShardOptions{}))  // floor(25/10)=2 -> pow 2
	assert.Equal(t, 4, OptimalShardCount(45, ShardOptions{}))  // floor(45/10)=4 -> pow 4
}

func TestShardedLimiter_AcquireWithinBurst(t *testing.T) {
	lim := New(10, 10, ShardOptions{MinShards: 1, MaxShards: 1})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := lim.Acquire(ctx, "k", 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	_, err := lim.Acquire(ctx, "k", 1)
	assert.Error(t, err, "11th acquire should exceed burst capacity")
}

func TestShardedLimiter_RateZeroAlwaysDenies(t *testing.T) {
	lim := New(0, 0, ShardOptions{MinShards: 1, MaxShards: 1})
	_, err := lim.Acquire(context.Background(), "k", 1)
	assert.Error(t, err)
}

func TestShardedLimiter_ReserveAndExecute(t *testing.T) {
	lim := New(1, 1, ShardOptions{MinShards: 1, MaxShards: 1})
	ctx := context.Background()

	_, err := lim.Acquire(ctx, "k", 1) // drain the burst
	require.NoError(t, err)

	res, err := lim.Reserve(ctx, "k", 1, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, res.ExecuteAt.After(res.ReservedAt) || res.ExecuteAt.Equal(res.ReservedAt))
	assert.Equal(t, res.ExecuteAt.Add(60*time.Second), res.ExpiresAt)
}

func TestShardedLimiter_ReserveExceedsMaxWait(t *testing.T) {
	lim := New(1, 1, ShardOptions{MinShards: 1, MaxShards: 1})
	ctx := context.Background()

	_, err := lim.Acquire(ctx, "k", 1)
	require.NoError(t, err)

	_, err = lim.Reserve(ctx, "k", 100, time.Millisecond)
	assert.Error(t, err)
}

func TestShardedLimiter_CancelReservation(t *testing.T) {
	lim := New(10, 10, ShardOptions{MinShards: 1, MaxShards: 1})
	res, err := lim.Reserve(context.Background(), "k", 1, time.Second)
	require.NoError(t, err)

	lim.CancelReservation(res.ID)
	err = lim.ExecuteReservation(context.Background(), res.ID)
	assert.Error(t, err, "cancelled reservation must not execute")
}

func TestAdaptiveLimiter_GrowsAfterConsecutiveSuccesses(t *testing.T) {
	base := New(100, 100, ShardOptions{MinShards: 1, MaxShards: 1})
	adaptive := NewAdaptive(base, DefaultAdaptiveOptions(10, 200))

	for i := 0; i < 10; i++ {
		adaptive.OnSuccess()
	}
	assert.InDelta(t, 105, adaptive.Rate(), 0.01)
}

func TestAdaptiveLimiter_ShrinksOnRateLimit(t *testing.T) {
	base := New(100, 100, ShardOptions{MinShards: 1, MaxShards: 1})
	adaptive := NewAdaptive(base, DefaultAdaptiveOptions(10, 200))

	adaptive.OnRateLimit("k", 0)
	assert.InDelta(t, 90, adaptive.Rate(), 0.01)
}
