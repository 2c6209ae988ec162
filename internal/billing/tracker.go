package billing

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/utils"
)

const defaultRetention = 100_000

// UsageInput describes one completed provider call.
type UsageInput struct {
	Provider     models.ProviderIdentity
	Model        string
	InputTokens  int64
	OutputTokens int64
	Latency      time.Duration
	UseCase      string
	UseCaseID    string
	UserID       string
	Success      bool
}

// Breakdown aggregates a slice of events.
type Breakdown struct {
	Cost         decimal.Decimal `json:"cost"`
	Requests     int             `json:"requests"`
	InputTokens  int64           `json:"inputTokens"`
	OutputTokens int64           `json:"outputTokens"`
}

func (b *Breakdown) add(ev models.UsageEvent) {
	b.Cost = b.Cost.Add(ev.Cost)
	b.Requests++
	b.InputTokens += ev.InputTokens
	b.OutputTokens += ev.OutputTokens
}

// UsageSummary is the aggregation of one window.
type UsageSummary struct {
	Window            Window               `json:"window"`
	Since             *time.Time           `json:"since,omitempty"`
	TotalCost         decimal.Decimal      `json:"totalCost"`
	RequestCount      int                  `json:"requestCount"`
	TotalInputTokens  int64                `json:"totalInputTokens"`
	TotalOutputTokens int64                `json:"totalOutputTokens"`
	ByProvider        map[string]Breakdown `json:"byProvider"`
	ByModel           map[string]Breakdown `json:"byModel"`
	ByUseCase         map[string]Breakdown `json:"byUseCase"`
}

// Tracker is the in-process usage log. Append-only; safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	events    []models.UsageEvent
	prices    *PriceTable
	limits    BudgetLimits
	retention int
	now       func() time.Time
	logger    *utils.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger used for unknown-model warnings.
func WithLogger(l *utils.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithRetention caps the number of events kept; the oldest are dropped first.
func WithRetention(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.retention = n
		}
	}
}

// NewTracker creates a tracker. A nil price table uses the defaults.
func NewTracker(prices *PriceTable, limits BudgetLimits, opts ...TrackerOption) *Tracker {
	if prices == nil {
		prices = NewPriceTable(nil)
	}
	t := &Tracker{
		prices:    prices,
		limits:    limits.withDefaults(),
		retention: defaultRetention,
		now:       time.Now,
		logger:    utils.NewLogger("usage-tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Prices returns the tracker's price table.
func (t *Tracker) Prices() *PriceTable { return t.prices }

// RecordUsage prices and appends one event. It never fails: unknown models cost zero.
func (t *Tracker) RecordUsage(in UsageInput) models.UsageEvent {
	cost, known := t.prices.Cost(in.Model, in.InputTokens, in.OutputTokens)
	if !known {
		t.logger.Warn("No pricing for model, recording zero cost", "provider", in.Provider, "model", in.Model)
	}

	ev := models.UsageEvent{
		ID:           uuid.New(),
		Provider:     in.Provider,
		Model:        in.Model,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		Cost:         cost,
		LatencyMs:    in.Latency.Milliseconds(),
		Timestamp:    t.now().UTC(),
		UseCase:      in.UseCase,
		UseCaseID:    in.UseCaseID,
		UserID:       in.UserID,
		Success:      in.Success,
	}

	t.mu.Lock()
	t.events = append(t.events, ev)
	t.trimLocked()
	t.mu.Unlock()

	return ev
}

// Load appends previously persisted events, e.g. month-to-date records at startup.
func (t *Tracker) Load(events []models.UsageEvent) {
	if len(events) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, events...)
	sort.SliceStable(t.events, func(i, j int) bool { return t.events[i].Timestamp.Before(t.events[j].Timestamp) })
	t.trimLocked()
}

func (t *Tracker) trimLocked() {
	if over := len(t.events) - t.retention; over > 0 {
		t.events = append(t.events[:0:0], t.events[over:]...)
	}
}

// Events returns a copy of the events in the window.
func (t *Tracker) Events(w Window) []models.UsageEvent {
	since := w.Start(t.now())

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.UsageEvent, 0, len(t.events))
	for _, ev := range t.events {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out
}

// Summary aggregates the events in the window.
func (t *Tracker) Summary(w Window) UsageSummary {
	s := UsageSummary{
		Window:     w,
		TotalCost:  decimal.Zero,
		ByProvider: map[string]Breakdown{},
		ByModel:    map[string]Breakdown{},
		ByUseCase:  map[string]Breakdown{},
	}
	if since := w.Start(t.now()); !since.IsZero() {
		s.Since = &since
	}

	for _, ev := range t.Events(w) {
		s.TotalCost = s.TotalCost.Add(ev.Cost)
		s.RequestCount++
		s.TotalInputTokens += ev.InputTokens
		s.TotalOutputTokens += ev.OutputTokens

		addTo(s.ByProvider, string(ev.Provider), ev)
		addTo(s.ByModel, ev.Model, ev)
		if ev.UseCase != "" {
			addTo(s.ByUseCase, ev.UseCase, ev)
		}
	}
	return s
}

func addTo(m map[string]Breakdown, key string, ev models.UsageEvent) {
	b := m[key]
	b.add(ev)
	m[key] = b
}

// Limits returns the current budget limits.
func (t *Tracker) Limits() BudgetLimits {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.limits
}

// SetLimits replaces the budget limits, e.g. after the stored budget changes.
func (t *Tracker) SetLimits(limits BudgetLimits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = limits.withDefaults()
}

// CheckBudgetAlerts compares today's and this month's totals against the limits. No side effects.
func (t *Tracker) CheckBudgetAlerts() BudgetAlerts {
	daily := t.Summary(WindowToday).TotalCost
	monthly := t.Summary(WindowMonth).TotalCost
	return EvaluateBudget(t.Limits(), daily, monthly)
}
