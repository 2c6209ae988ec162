package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/queue"
	"trailblazer_ai/internal/utils"
)

// SpendUpdate is one increment of a spend counter
type SpendUpdate struct {
	Scope     string          `json:"scope"`
	CostUSD   decimal.Decimal `json:"cost_usd"`
	Timestamp time.Time       `json:"timestamp"`
}

// SpendWorker applies spend updates to a SpendService asynchronously
type SpendWorker struct {
	queue   queue.Queue
	dlq     queue.DeadLetterQueue
	service SpendService
	config  *queue.Config
	logger  *utils.Logger

	cancel      context.CancelFunc
	stoppedChan chan struct{}
	stopOnce    sync.Once
}

// NewSpendWorker creates a new spend worker
func NewSpendWorker(q queue.Queue, dlq queue.DeadLetterQueue, service SpendService, config *queue.Config) *SpendWorker {
	if config == nil {
		config = queue.DefaultConfig("spend")
	}

	return &SpendWorker{
		queue:       q,
		dlq:         dlq,
		service:     service,
		config:      config,
		logger:      utils.NewLogger("spend-worker"),
		stoppedChan: make(chan struct{}),
	}
}

// Name identifies the worker as a usage reporter
func (w *SpendWorker) Name() string { return "spend-counters" }

// Report enqueues the global update and, when the event has a user, the per-user update
func (w *SpendWorker) Report(ctx context.Context, event models.UsageEvent) error {
	if event.Cost.IsZero() {
		return nil
	}
	scopes := []string{GlobalScope}
	if event.UserID != "" {
		scopes = append(scopes, UserScope(event.UserID))
	}
	for _, scope := range scopes {
		update := &SpendUpdate{Scope: scope, CostUSD: event.Cost, Timestamp: event.Timestamp}
		if err := w.queue.Enqueue(ctx, update); err != nil {
			return eris.Wrapf(err, "failed to enqueue spend update for %s", scope)
		}
	}
	return nil
}

// Start starts the worker goroutine
func (w *SpendWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Stop stops the worker, then applies whatever is still queued
func (w *SpendWorker) Stop() error {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.stoppedChan
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for ctx.Err() == nil {
			items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, 10*time.Millisecond)
			if err != nil || len(items) == 0 {
				return
			}
			w.processItems(ctx, items)
		}
	})
	return nil
}

func (w *SpendWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Spend worker stopping")
			return
		default:
		}

		items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				w.logger.Warn("Spend queue closed")
				return
			}
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("Failed to dequeue spend updates", "error", err)
			sleep(ctx, time.Second)
			continue
		}

		w.processItems(context.WithoutCancel(ctx), items)
	}
}

// processItems folds updates per counter before writing, so a batch costs one call per scope and day
func (w *SpendWorker) processItems(ctx context.Context, items []any) {
	if len(items) == 0 {
		return
	}

	type counter struct {
		scope string
		day   string
	}
	merged := make(map[counter]*SpendUpdate)
	var order []counter

	for _, item := range items {
		update, err := queue.Decode[SpendUpdate](item)
		if err != nil {
			w.logger.Error("Failed to decode spend update", "error", err)
			continue
		}
		key := counter{scope: update.Scope, day: update.Timestamp.UTC().Format("2006-01-02")}
		if m, ok := merged[key]; ok {
			m.CostUSD = m.CostUSD.Add(update.CostUSD)
			continue
		}
		u := update
		merged[key] = &u
		order = append(order, key)
	}

	w.logger.Debug("Processing spend batch", "count", len(items), "counters", len(order))
	for _, key := range order {
		if err := w.processUpdate(ctx, merged[key]); err != nil {
			w.logger.Error("Failed to apply spend update", "scope", key.scope, "error", err)
		}
	}
}

// processUpdate applies one update with exponential backoff, then moves it to the DLQ
func (w *SpendWorker) processUpdate(ctx context.Context, update *SpendUpdate) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying spend update", "attempt", attempt, "backoff", backoff)
			sleep(ctx, backoff)
		}

		if err := w.service.AddSpend(ctx, update.Scope, update.CostUSD, update.Timestamp); err != nil {
			lastErr = err
			if !utils.IsRecoverableError(err) {
				break
			}
			continue
		}
		return nil
	}

	if w.dlq != nil {
		if err := w.dlq.Add(ctx, update, queue.ErrMaxRetriesExceeded); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Spend update moved to DLQ", "scope", update.Scope, "error", lastErr)
		}
	}

	return eris.Wrap(lastErr, "max retries exceeded")
}

// GetQueueLength returns the current queue length
func (w *SpendWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *SpendWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, eris.New("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
