package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailblazer_ai/internal/models"
)

func TestBudgetRepository(t *testing.T) {
	db := newTestDB(t)
	repo := db.NewBudgetRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, GlobalBudgetScope)
	assert.ErrorIs(t, err, ErrBudgetNotFound)

	settings := &models.BudgetSettings{
		MonthlyLimitUSD:  decimal.NewFromInt(100),
		DailyLimitUSD:    decimal.NewFromInt(10),
		WarningThreshold: 0.8,
	}
	require.NoError(t, repo.Upsert(ctx, settings))
	assert.Equal(t, GlobalBudgetScope, settings.Scope)

	got, err := repo.Get(ctx, GlobalBudgetScope)
	require.NoError(t, err)
	assert.True(t, got.MonthlyLimitUSD.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 0.8, got.WarningThreshold)

	t.Run("update refreshes the cache", func(t *testing.T) {
		settings.MonthlyLimitUSD = decimal.NewFromInt(250)
		require.NoError(t, repo.Upsert(ctx, settings))

		got, err := repo.Get(ctx, GlobalBudgetScope)
		require.NoError(t, err)
		assert.True(t, got.MonthlyLimitUSD.Equal(decimal.NewFromInt(250)))
	})

	t.Run("reads after cache clear hit the database", func(t *testing.T) {
		db.budgetCache.Clear()
		got, err := repo.Get(ctx, GlobalBudgetScope)
		require.NoError(t, err)
		assert.True(t, got.MonthlyLimitUSD.Equal(decimal.NewFromInt(250)))
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		got, err := repo.Get(ctx, GlobalBudgetScope)
		require.NoError(t, err)
		got.WarningThreshold = 0.1

		again, err := repo.Get(ctx, GlobalBudgetScope)
		require.NoError(t, err)
		assert.Equal(t, 0.8, again.WarningThreshold)
	})

	t.Run("validation", func(t *testing.T) {
		assert.Error(t, repo.Upsert(ctx, &models.BudgetSettings{MonthlyLimitUSD: decimal.NewFromInt(-1), WarningThreshold: 0.5}))
		assert.Error(t, repo.Upsert(ctx, &models.BudgetSettings{WarningThreshold: 1.5}))
	})
}
