package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageEvent records one completed provider call. Immutable once created.
type UsageEvent struct {
	ID           uuid.UUID        `json:"id"`
	Provider     ProviderIdentity `json:"provider"`
	Model        string           `json:"model"`
	InputTokens  int64            `json:"inputTokens"`
	OutputTokens int64            `json:"outputTokens"`
	Cost         decimal.Decimal  `json:"cost"`
	LatencyMs    int64            `json:"latencyMs"`
	Timestamp    time.Time        `json:"timestamp"`
	UseCase      string           `json:"useCase,omitempty"`
	UseCaseID    string           `json:"useCaseId,omitempty"`
	UserID       string           `json:"userId,omitempty"`
	Success      bool             `json:"success"`
}

// MetricsRecord is the persisted form of a UsageEvent.
type MetricsRecord struct {
	ID           uuid.UUID       `db:"id"`
	UserID       string          `db:"user_id"`
	Provider     string          `db:"provider"`
	Model        string          `db:"model"`
	UseCase      string          `db:"use_case"`
	UseCaseID    string          `db:"use_case_id"`
	InputTokens  int64           `db:"input_tokens"`
	OutputTokens int64           `db:"output_tokens"`
	CostUSD      decimal.Decimal `db:"cost_usd"`
	LatencyMs    int64           `db:"latency_ms"`
	Success      bool            `db:"success"`
	CreatedAt    time.Time       `db:"created_at"`
}

// NewMetricsRecord converts an event to its persisted form.
func NewMetricsRecord(ev UsageEvent) *MetricsRecord {
	return &MetricsRecord{
		ID:           ev.ID,
		UserID:       ev.UserID,
		Provider:     string(ev.Provider),
		Model:        ev.Model,
		UseCase:      ev.UseCase,
		UseCaseID:    ev.UseCaseID,
		InputTokens:  ev.InputTokens,
		OutputTokens: ev.OutputTokens,
		CostUSD:      ev.Cost,
		LatencyMs:    ev.LatencyMs,
		Success:      ev.Success,
		CreatedAt:    ev.Timestamp,
	}
}

// UsageEvent converts a persisted record back into an event.
func (r *MetricsRecord) UsageEvent() UsageEvent {
	return UsageEvent{
		ID:           r.ID,
		Provider:     ProviderIdentity(r.Provider),
		Model:        r.Model,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		Cost:         r.CostUSD,
		LatencyMs:    r.LatencyMs,
		Timestamp:    r.CreatedAt,
		UseCase:      r.UseCase,
		UseCaseID:    r.UseCaseID,
		UserID:       r.UserID,
		Success:      r.Success,
	}
}
