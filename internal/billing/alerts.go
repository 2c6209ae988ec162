package billing

import "github.com/shopspring/decimal"

// DefaultWarningThreshold is the fraction of a limit at which warnings start.
const DefaultWarningThreshold = 0.8

// BudgetLimits are spend limits in USD. A zero limit disables that check.
type BudgetLimits struct {
	MonthlyLimitUSD  decimal.Decimal `json:"monthlyLimitUsd"`
	DailyLimitUSD    decimal.Decimal `json:"dailyLimitUsd"`
	WarningThreshold float64         `json:"warningThreshold"`
}

func (l BudgetLimits) withDefaults() BudgetLimits {
	if l.WarningThreshold <= 0 || l.WarningThreshold > 1 {
		l.WarningThreshold = DefaultWarningThreshold
	}
	return l
}

// BudgetAlerts is the result of a budget check.
type BudgetAlerts struct {
	MonthlyExceeded bool            `json:"monthlyExceeded"`
	DailyExceeded   bool            `json:"dailyExceeded"`
	MonthlyWarning  bool            `json:"monthlyWarning"`
	DailyWarning    bool            `json:"dailyWarning"`
	MonthlySpend    decimal.Decimal `json:"monthlySpend"`
	DailySpend      decimal.Decimal `json:"dailySpend"`
	Limits          BudgetLimits    `json:"limits"`
}

// Any reports whether any flag is raised.
func (a BudgetAlerts) Any() bool {
	return a.MonthlyExceeded || a.DailyExceeded || a.MonthlyWarning || a.DailyWarning
}

// EvaluateBudget is the pure budget rule: reaching a limit exceeds it, and reaching
// threshold×limit warns (an exceeded limit also warns).
func EvaluateBudget(limits BudgetLimits, daily, monthly decimal.Decimal) BudgetAlerts {
	limits = limits.withDefaults()
	threshold := decimal.NewFromFloat(limits.WarningThreshold)

	a := BudgetAlerts{MonthlySpend: monthly, DailySpend: daily, Limits: limits}
	if limits.MonthlyLimitUSD.IsPositive() {
		a.MonthlyExceeded = monthly.GreaterThanOrEqual(limits.MonthlyLimitUSD)
		a.MonthlyWarning = monthly.GreaterThanOrEqual(limits.MonthlyLimitUSD.Mul(threshold))
	}
	if limits.DailyLimitUSD.IsPositive() {
		a.DailyExceeded = daily.GreaterThanOrEqual(limits.DailyLimitUSD)
		a.DailyWarning = daily.GreaterThanOrEqual(limits.DailyLimitUSD.Mul(threshold))
	}
	return a
}
