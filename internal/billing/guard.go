package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trailblazer_ai/internal/config"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/utils"
)

// BudgetStore reads stored budget settings. storage.BudgetRepository implements it.
type BudgetStore interface {
	Get(ctx context.Context, scope string) (*models.BudgetSettings, error)
}

// LimitsFromConfig converts the configured default limits.
func LimitsFromConfig(cfg config.BudgetConfig) BudgetLimits {
	return BudgetLimits{
		MonthlyLimitUSD:  decimal.NewFromFloat(cfg.MonthlyLimitUSD),
		DailyLimitUSD:    decimal.NewFromFloat(cfg.DailyLimitUSD),
		WarningThreshold: cfg.WarningThreshold,
	}.withDefaults()
}

// LimitsFromSettings converts stored settings.
func LimitsFromSettings(s *models.BudgetSettings) BudgetLimits {
	return BudgetLimits{
		MonthlyLimitUSD:  s.MonthlyLimitUSD,
		DailyLimitUSD:    s.DailyLimitUSD,
		WarningThreshold: s.WarningThreshold,
	}.withDefaults()
}

// BudgetGuard refuses new model calls once a spend limit is reached.
// Stored settings win over the configured defaults.
type BudgetGuard struct {
	store    BudgetStore
	defaults BudgetLimits
	spend    SpendService
	scope    string
	logger   *utils.Logger
}

// NewBudgetGuard creates a guard over the global scope. store and spend may be nil.
func NewBudgetGuard(store BudgetStore, defaults BudgetLimits, spend SpendService) *BudgetGuard {
	if spend == nil {
		spend = NewNoopSpendService()
	}
	return &BudgetGuard{
		store:    store,
		defaults: defaults.withDefaults(),
		spend:    spend,
		scope:    GlobalScope,
		logger:   utils.NewLogger("budget-guard"),
	}
}

// Limits returns the effective limits.
func (g *BudgetGuard) Limits(ctx context.Context) BudgetLimits {
	if g.store == nil {
		return g.defaults
	}
	settings, err := g.store.Get(ctx, g.scope)
	if err != nil || settings == nil {
		return g.defaults
	}
	return LimitsFromSettings(settings)
}

// Check reports whether a limit is reached and, if so, how long until its window resets.
// Spend lookups that fail let the call through.
func (g *BudgetGuard) Check(ctx context.Context, now time.Time) (bool, time.Duration) {
	limits := g.Limits(ctx)
	now = now.UTC()

	if limits.MonthlyLimitUSD.IsPositive() {
		spent, err := g.spend.MonthlySpend(ctx, g.scope, now)
		if err != nil {
			g.logger.Warn("Monthly spend lookup failed", "error", err)
		} else if spent.GreaterThanOrEqual(limits.MonthlyLimitUSD) {
			next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			return true, next.Sub(now)
		}
	}
	if limits.DailyLimitUSD.IsPositive() {
		spent, err := g.spend.DailySpend(ctx, g.scope, now)
		if err != nil {
			g.logger.Warn("Daily spend lookup failed", "error", err)
		} else if spent.GreaterThanOrEqual(limits.DailyLimitUSD) {
			next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
			return true, next.Sub(now)
		}
	}
	return false, 0
}
