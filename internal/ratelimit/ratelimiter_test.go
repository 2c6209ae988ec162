package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, window time.Duration) (*RateLimiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiterWithWindow(client, window)
	rl.now = func() time.Time { return now }
	return rl, mr, &now
}

func TestRateLimiter_AllowWithDetails(t *testing.T) {
	ctx := context.Background()

	t.Run("counts down then blocks", func(t *testing.T) {
		rl, _, now := newTestLimiter(t, time.Minute)

		for i := 0; i < 3; i++ {
			allowed, remaining, resetAt, err := rl.AllowWithDetails(ctx, "user:a", 3)
			require.NoError(t, err)
			assert.True(t, allowed)
			assert.Equal(t, 3-i-1, remaining)
			assert.Equal(t, now.Add(time.Minute).UnixMilli(), resetAt.UnixMilli())
		}

		allowed, remaining, _, err := rl.AllowWithDetails(ctx, "user:a", 3)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
	})

	t.Run("rejected requests are not recorded", func(t *testing.T) {
		rl, mr, _ := newTestLimiter(t, time.Minute)

		for i := 0; i < 5; i++ {
			_, _, _, err := rl.AllowWithDetails(ctx, "user:b", 2)
			require.NoError(t, err)
		}
		members, err := mr.ZMembers(keyPrefix + "user:b")
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("window slides", func(t *testing.T) {
		rl, _, now := newTestLimiter(t, time.Minute)

		_, _, _, err := rl.AllowWithDetails(ctx, "user:c", 2)
		require.NoError(t, err)
		*now = now.Add(30 * time.Second)
		_, _, _, err = rl.AllowWithDetails(ctx, "user:c", 2)
		require.NoError(t, err)

		allowed, _, resetAt, err := rl.AllowWithDetails(ctx, "user:c", 2)
		require.NoError(t, err)
		assert.False(t, allowed)
		// the first request leaves the window 30s from now
		assert.Equal(t, now.Add(30*time.Second).UnixMilli(), resetAt.UnixMilli())

		*now = now.Add(31 * time.Second)
		allowed, remaining, _, err := rl.AllowWithDetails(ctx, "user:c", 2)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 0, remaining)
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl, _, _ := newTestLimiter(t, time.Minute)

		allowed, _, _, err := rl.AllowWithDetails(ctx, "user:d", 1)
		require.NoError(t, err)
		assert.True(t, allowed)
		allowed, _, _, err = rl.AllowWithDetails(ctx, "user:e", 1)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("unlimited when limit is 0", func(t *testing.T) {
		rl, mr, _ := newTestLimiter(t, time.Minute)

		allowed, remaining, resetAt, err := rl.AllowWithDetails(ctx, "user:f", 0)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, -1, remaining)
		assert.True(t, resetAt.IsZero())
		assert.False(t, mr.Exists(keyPrefix+"user:f"))
	})

	t.Run("redis failure is returned", func(t *testing.T) {
		rl, mr, _ := newTestLimiter(t, time.Minute)
		mr.Close()

		_, _, _, err := rl.AllowWithDetails(ctx, "user:g", 1)
		assert.Error(t, err)
	})
}

func TestRateLimiter_DefaultWindow(t *testing.T) {
	rl := NewRateLimiterWithWindow(nil, 0)
	assert.Equal(t, DefaultWindow, rl.window)
}

func TestNoopLimiter(t *testing.T) {
	allowed, remaining, resetAt, err := NewNoopLimiter().AllowWithDetails(context.Background(), "any", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, -1, remaining)
	assert.True(t, resetAt.IsZero())
}
