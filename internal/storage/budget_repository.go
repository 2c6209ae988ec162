package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
)

// GlobalBudgetScope is the scope used when budgets are not per tenant
const GlobalBudgetScope = "global"

// BudgetRepository stores spend limits. Reads go through the DB's LRU cache.
type BudgetRepository struct {
	db *DB
}

// NewBudgetRepository creates a new budget repository
func NewBudgetRepository(db *DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// Get returns the settings for scope, or ErrBudgetNotFound
func (r *BudgetRepository) Get(ctx context.Context, scope string) (*models.BudgetSettings, error) {
	if cached, ok := r.db.budgetCache.Get(scope); ok {
		out := *cached
		return &out, nil
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var settings models.BudgetSettings
	query := r.db.Rebind(`SELECT scope, monthly_limit_usd, daily_limit_usd, warning_threshold, updated_at
		FROM budget_settings WHERE scope = ?`)
	if err := r.db.conn.GetContext(ctx, &settings, query, scope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBudgetNotFound
		}
		return nil, eris.Wrap(err, "failed to get budget settings")
	}

	r.db.budgetCache.Set(scope, &settings)
	out := settings
	return &out, nil
}

// Upsert stores settings and refreshes the cache
func (r *BudgetRepository) Upsert(ctx context.Context, settings *models.BudgetSettings) error {
	if settings.Scope == "" {
		settings.Scope = GlobalBudgetScope
	}
	if settings.MonthlyLimitUSD.IsNegative() || settings.DailyLimitUSD.IsNegative() {
		return eris.New("budget limits must not be negative")
	}
	if settings.WarningThreshold <= 0 || settings.WarningThreshold > 1 {
		return eris.Errorf("warning threshold must be in (0, 1], got %v", settings.WarningThreshold)
	}
	settings.UpdatedAt = time.Now().UTC()

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO budget_settings (scope, monthly_limit_usd, daily_limit_usd, warning_threshold, updated_at)
		VALUES (:scope, :monthly_limit_usd, :daily_limit_usd, :warning_threshold, :updated_at)
		ON CONFLICT (scope) DO UPDATE SET
			monthly_limit_usd = excluded.monthly_limit_usd,
			daily_limit_usd = excluded.daily_limit_usd,
			warning_threshold = excluded.warning_threshold,
			updated_at = excluded.updated_at`

	if _, err := r.db.conn.NamedExecContext(ctx, query, settings); err != nil {
		return eris.Wrap(err, "failed to upsert budget settings")
	}

	cached := *settings
	r.db.budgetCache.Set(settings.Scope, &cached)
	return nil
}
