package billing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailblazer_ai/internal/models"
)

type collectingReporter struct {
	mu     sync.Mutex
	events []models.UsageEvent
}

func (c *collectingReporter) Name() string { return "collector" }

func (c *collectingReporter) Report(ctx context.Context, ev models.UsageEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collectingReporter) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestRecorder_DoesNotWaitForReporters(t *testing.T) {
	release := make(chan struct{})
	slow := ReporterFunc{ReporterName: "slow", Fn: func(ctx context.Context, ev models.UsageEvent) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}
	collector := &collectingReporter{}
	rec := NewRecorder(NewTracker(nil, BudgetLimits{}), time.Second, slow, collector)

	start := time.Now()
	ev := rec.Record(UsageInput{Provider: models.ProviderOpenAI, Model: "gpt-4o", InputTokens: 10})
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 1, rec.Tracker().Summary(WindowAll).RequestCount, "tracker append is synchronous")

	close(release)
	rec.Wait()
	require.Equal(t, 1, collector.len())
	assert.Equal(t, ev.ID, collector.events[0].ID)
}

func TestRecorder_SwallowsFailuresAndPanics(t *testing.T) {
	var calls atomic.Int32
	failing := ReporterFunc{ReporterName: "failing", Fn: func(ctx context.Context, ev models.UsageEvent) error {
		calls.Add(1)
		return errors.New("billing collaborator down")
	}}
	panicking := ReporterFunc{ReporterName: "panicking", Fn: func(ctx context.Context, ev models.UsageEvent) error {
		calls.Add(1)
		panic("boom")
	}}
	rec := NewRecorder(NewTracker(nil, BudgetLimits{}), time.Second, failing, panicking)

	assert.NotPanics(t, func() {
		rec.Record(UsageInput{Provider: models.ProviderXAI, Model: "grok-2-vision-1212"})
		rec.Wait()
	})
	assert.Equal(t, int32(2), calls.Load())
}

func TestRecorder_ReporterContextIsBounded(t *testing.T) {
	var deadline atomic.Bool
	rep := ReporterFunc{ReporterName: "blocking", Fn: func(ctx context.Context, ev models.UsageEvent) error {
		<-ctx.Done()
		deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}}
	rec := NewRecorder(NewTracker(nil, BudgetLimits{}), 20*time.Millisecond, rep)
	rec.Record(UsageInput{Model: "gpt-4o"})
	rec.Wait()
	assert.True(t, deadline.Load())
}

func TestRecorder_BudgetAlertCallback(t *testing.T) {
	tr := NewTracker(nil, BudgetLimits{DailyLimitUSD: decimal.RequireFromString("0.001")})
	rec := NewRecorder(tr, time.Second)

	var got atomic.Bool
	rec.OnBudgetAlert(func(a BudgetAlerts) { got.Store(a.DailyExceeded) })

	rec.Record(UsageInput{Provider: models.ProviderOpenAI, Model: "gpt-4o", InputTokens: 1000, OutputTokens: 1000})
	rec.Wait()
	assert.True(t, got.Load())
}
