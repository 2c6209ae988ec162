package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"trailblazer_ai/internal/billing"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/storage"
	"trailblazer_ai/internal/utils"
)

// BudgetRequest is the body of PUT /v1/budget. Zero disables a limit.
type BudgetRequest struct {
	MonthlyLimitUSD  decimal.Decimal `json:"monthlyLimitUsd"`
	DailyLimitUSD    decimal.Decimal `json:"dailyLimitUsd"`
	WarningThreshold float64         `json:"warningThreshold"`
}

// handleUsageSummary handles GET /v1/usage/summary?window=all|today|week|month
func (d *Dependencies) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	window, err := billing.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if d.Tracker == nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "usage tracking is not configured")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, d.Tracker.Summary(window))
}

// handleUsageAlerts handles GET /v1/usage/alerts
func (d *Dependencies) handleUsageAlerts(w http.ResponseWriter, r *http.Request) {
	limits := d.limits(r.Context())
	daily, monthly := d.spendTotals(r.Context(), time.Now())
	utils.RespondWithJSON(w, http.StatusOK, billing.EvaluateBudget(limits, daily, monthly))
}

// handleGetBudget handles GET /v1/budget
func (d *Dependencies) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, d.limits(r.Context()))
}

// handlePutBudget handles PUT /v1/budget
func (d *Dependencies) handlePutBudget(w http.ResponseWriter, r *http.Request) {
	var req BudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.MonthlyLimitUSD.IsNegative() || req.DailyLimitUSD.IsNegative() {
		utils.RespondWithError(w, http.StatusBadRequest, "Budget limits must not be negative")
		return
	}
	if req.WarningThreshold == 0 {
		req.WarningThreshold = billing.DefaultWarningThreshold
	}
	if req.WarningThreshold < 0 || req.WarningThreshold > 1 {
		utils.RespondWithError(w, http.StatusBadRequest, "Warning threshold must be in (0, 1]")
		return
	}
	if d.Budgets == nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "budget storage is not configured")
		return
	}

	settings := &models.BudgetSettings{
		Scope:            storage.GlobalBudgetScope,
		MonthlyLimitUSD:  req.MonthlyLimitUSD,
		DailyLimitUSD:    req.DailyLimitUSD,
		WarningThreshold: req.WarningThreshold,
	}
	if err := d.Budgets.Upsert(r.Context(), settings); err != nil {
		d.log().Error("Failed to store budget", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to store budget")
		return
	}

	limits := billing.LimitsFromSettings(settings)
	if d.Tracker != nil {
		d.Tracker.SetLimits(limits)
	}
	d.log().Info("Budget updated",
		"monthly_limit_usd", limits.MonthlyLimitUSD.String(),
		"daily_limit_usd", limits.DailyLimitUSD.String(),
		"warning_threshold", limits.WarningThreshold)
	utils.RespondWithJSON(w, http.StatusOK, limits)
}

func (d *Dependencies) limits(ctx context.Context) billing.BudgetLimits {
	if d.Guard != nil {
		return d.Guard.Limits(ctx)
	}
	if d.Budgets != nil {
		settings, err := d.Budgets.Get(ctx, storage.GlobalBudgetScope)
		if err == nil {
			return billing.LimitsFromSettings(settings)
		}
		if !errors.Is(err, storage.ErrBudgetNotFound) {
			d.log().Warn("Failed to read budget", "error", err)
		}
	}
	if d.Tracker != nil {
		return d.Tracker.Limits()
	}
	return billing.BudgetLimits{WarningThreshold: billing.DefaultWarningThreshold}
}

// spendTotals prefers the shared counters and falls back to this process's tracker.
func (d *Dependencies) spendTotals(ctx context.Context, now time.Time) (daily, monthly decimal.Decimal) {
	if d.Spend != nil {
		dv, derr := d.Spend.DailySpend(ctx, billing.GlobalScope, now)
		mv, merr := d.Spend.MonthlySpend(ctx, billing.GlobalScope, now)
		if derr == nil && merr == nil {
			return dv, mv
		}
		d.log().Warn("Spend counters unavailable, using local totals", "daily_error", derr, "monthly_error", merr)
	}
	if d.Tracker == nil {
		return decimal.Zero, decimal.Zero
	}
	return d.Tracker.Summary(billing.WindowToday).TotalCost, d.Tracker.Summary(billing.WindowMonth).TotalCost
}
