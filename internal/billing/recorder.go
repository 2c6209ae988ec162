package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/utils"
)

const defaultReportTimeout = 10 * time.Second

// Reporter forwards usage events to an external collaborator (database, Redis counters, metrics).
type Reporter interface {
	Name() string
	Report(ctx context.Context, event models.UsageEvent) error
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc struct {
	ReporterName string
	Fn           func(ctx context.Context, event models.UsageEvent) error
}

func (f ReporterFunc) Name() string { return f.ReporterName }

func (f ReporterFunc) Report(ctx context.Context, event models.UsageEvent) error {
	return f.Fn(ctx, event)
}

// Recorder records usage in the tracker and fans events out to reporters without
// making the caller wait. Reporter failures and panics are only logged.
type Recorder struct {
	tracker   *Tracker
	reporters []Reporter
	timeout   time.Duration
	logger    *utils.Logger
	wg        sync.WaitGroup
	onAlert   func(BudgetAlerts)
}

// NewRecorder creates a recorder. timeout bounds each detached reporter call.
func NewRecorder(tracker *Tracker, timeout time.Duration, reporters ...Reporter) *Recorder {
	if timeout <= 0 {
		timeout = defaultReportTimeout
	}
	return &Recorder{
		tracker:   tracker,
		reporters: reporters,
		timeout:   timeout,
		logger:    utils.NewLogger("usage-recorder"),
	}
}

// OnBudgetAlert registers a callback invoked, detached, when a recorded event raises an alert.
func (r *Recorder) OnBudgetAlert(fn func(BudgetAlerts)) {
	r.onAlert = fn
}

// Tracker returns the underlying tracker.
func (r *Recorder) Tracker() *Tracker { return r.tracker }

// Record appends the event synchronously and dispatches reporting in the background.
func (r *Recorder) Record(in UsageInput) models.UsageEvent {
	ev := r.tracker.RecordUsage(in)
	r.dispatch(ev)
	return ev
}

// dispatch spawns one detached task per reporter plus the budget check. Returns nothing on purpose:
// the caller's result never depends on reporting.
func (r *Recorder) dispatch(ev models.UsageEvent) {
	for _, rep := range r.reporters {
		r.goDetached(rep.Name(), func(ctx context.Context) error {
			return rep.Report(ctx, ev)
		})
	}

	r.goDetached("budget-check", func(ctx context.Context) error {
		alerts := r.tracker.CheckBudgetAlerts()
		if !alerts.Any() {
			return nil
		}
		r.logger.Warn("Budget alert",
			"monthly_spend", alerts.MonthlySpend.String(),
			"daily_spend", alerts.DailySpend.String(),
			"monthly_exceeded", alerts.MonthlyExceeded,
			"daily_exceeded", alerts.DailyExceeded,
			"monthly_warning", alerts.MonthlyWarning,
			"daily_warning", alerts.DailyWarning,
		)
		if r.onAlert != nil {
			r.onAlert(alerts)
		}
		return nil
	})
}

func (r *Recorder) goDetached(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("Usage reporter panicked", "reporter", name, "panic", fmt.Sprint(p))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.logger.Warn("Usage reporting failed", "reporter", name, "error", err)
		}
	}()
}

// Wait blocks until every dispatched task has finished. For shutdown and tests only.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
