package billing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailblazer_ai/internal/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisSpendService(t *testing.T) {
	client, mr := setupTestRedis(t)
	svc := NewRedisSpendService(client)
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, svc.AddSpend(ctx, GlobalScope, decimal.RequireFromString("0.25"), at))
	require.NoError(t, svc.AddSpend(ctx, GlobalScope, decimal.RequireFromString("0.50"), at))
	require.NoError(t, svc.AddSpend(ctx, GlobalScope, decimal.RequireFromString("1"), at.AddDate(0, 0, -1)))
	require.NoError(t, svc.AddSpend(ctx, GlobalScope, decimal.Zero, at))

	monthly, err := svc.MonthlySpend(ctx, GlobalScope, at)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.75").Equal(monthly), monthly.String())

	daily, err := svc.DailySpend(ctx, GlobalScope, at)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.75").Equal(daily), daily.String())

	assert.True(t, mr.TTL("trailblazer:spend:global:2026:10") > 0)

	other, err := svc.MonthlySpend(ctx, UserScope("nobody"), at)
	require.NoError(t, err)
	assert.True(t, other.IsZero())

	require.NoError(t, svc.ResetMonthlySpend(ctx, GlobalScope, at))
	monthly, err = svc.MonthlySpend(ctx, GlobalScope, at)
	require.NoError(t, err)
	assert.True(t, monthly.IsZero())
}

func TestWithinBudget(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewRedisSpendService(client)
	ctx := context.Background()
	now := time.Now().UTC()

	limits := BudgetLimits{MonthlyLimitUSD: decimal.NewFromInt(10), DailyLimitUSD: decimal.NewFromInt(2)}
	assert.True(t, WithinBudget(ctx, svc, GlobalScope, limits, now))

	require.NoError(t, svc.AddSpend(ctx, GlobalScope, decimal.NewFromInt(2), now))
	assert.False(t, WithinBudget(ctx, svc, GlobalScope, limits, now))
	assert.True(t, WithinBudget(ctx, svc, GlobalScope, BudgetLimits{}, now))
	assert.True(t, WithinBudget(ctx, NewNoopSpendService(), GlobalScope, limits, now))
}

func TestTrackerSpendService(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(nil, BudgetLimits{}, WithClock(func() time.Time { return now }))
	tracker.Load([]models.UsageEvent{
		{Cost: decimal.NewFromFloat(1.5), UserID: "alice", Timestamp: now.Add(-time.Hour)},
		{Cost: decimal.NewFromFloat(2), UserID: "bob", Timestamp: now.Add(-2 * time.Hour)},
		{Cost: decimal.NewFromFloat(4), UserID: "alice", Timestamp: now.AddDate(0, 0, -3)},
		{Cost: decimal.NewFromFloat(8), UserID: "alice", Timestamp: now.AddDate(0, -1, 0)},
	})
	s := NewTrackerSpendService(tracker)
	ctx := context.Background()

	daily, err := s.DailySpend(ctx, GlobalScope, now)
	require.NoError(t, err)
	assert.True(t, daily.Equal(decimal.NewFromFloat(3.5)), daily.String())

	monthly, err := s.MonthlySpend(ctx, GlobalScope, now)
	require.NoError(t, err)
	assert.True(t, monthly.Equal(decimal.NewFromFloat(7.5)), monthly.String())

	aliceMonth, err := s.MonthlySpend(ctx, UserScope("alice"), now)
	require.NoError(t, err)
	assert.True(t, aliceMonth.Equal(decimal.NewFromFloat(5.5)), aliceMonth.String())

	assert.NoError(t, s.AddSpend(ctx, GlobalScope, decimal.NewFromInt(1), now))
}
