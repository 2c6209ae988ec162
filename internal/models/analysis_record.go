package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnalysisRecord is the persisted final result of one analysis.
type AnalysisRecord struct {
	ID           uuid.UUID                     `db:"id"`
	UserID       string                        `db:"user_id"`
	Provider     string                        `db:"provider"`
	Model        string                        `db:"model"`
	Difficulty   int                           `db:"difficulty"`
	Analysis     JSONColumn[CanonicalAnalysis] `db:"analysis"`
	RawResponse  string                        `db:"raw_response"`
	Verdict      JSONColumn[JudgeVerdict]      `db:"judge_verdict"`
	JudgePassed  *bool                         `db:"judge_passed"`
	InputTokens  int64                         `db:"input_tokens"`
	OutputTokens int64                         `db:"output_tokens"`
	CostUSD      decimal.Decimal               `db:"cost_usd"`
	LatencyMs    int64                         `db:"latency_ms"`
	UseCaseID    string                        `db:"use_case_id"`
	CreatedAt    time.Time                     `db:"created_at"`
}

// BudgetSettings is the stored spend configuration for a scope ("global" or a tenant id).
type BudgetSettings struct {
	Scope            string          `db:"scope"`
	MonthlyLimitUSD  decimal.Decimal `db:"monthly_limit_usd"`
	DailyLimitUSD    decimal.Decimal `db:"daily_limit_usd"`
	WarningThreshold float64         `db:"warning_threshold"`
	UpdatedAt        time.Time       `db:"updated_at"`
}
