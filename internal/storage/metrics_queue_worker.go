package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/queue"
	"trailblazer_ai/internal/utils"
)

// MetricsWriter is the persistence side of the metrics worker
type MetricsWriter interface {
	Create(ctx context.Context, rec *models.MetricsRecord) error
	BatchInsert(ctx context.Context, recs []*models.MetricsRecord) error
}

// MetricsQueueWorker persists usage events asynchronously so the request path never waits on the database
type MetricsQueueWorker struct {
	queue  queue.Queue
	dlq    queue.DeadLetterQueue
	writer MetricsWriter
	config *queue.Config
	logger *utils.Logger

	cancel      context.CancelFunc
	stoppedChan chan struct{}
	stopOnce    sync.Once
}

// NewMetricsQueueWorker creates a new metrics queue worker
func NewMetricsQueueWorker(q queue.Queue, dlq queue.DeadLetterQueue, writer MetricsWriter, config *queue.Config) *MetricsQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("metrics")
	}

	return &MetricsQueueWorker{
		queue:       q,
		dlq:         dlq,
		writer:      writer,
		config:      config,
		logger:      utils.NewLogger("metrics-worker"),
		stoppedChan: make(chan struct{}),
	}
}

// Name identifies the worker as a usage reporter
func (w *MetricsQueueWorker) Name() string { return "metrics-db" }

// Report enqueues the persisted form of a usage event
func (w *MetricsQueueWorker) Report(ctx context.Context, event models.UsageEvent) error {
	return w.queue.Enqueue(ctx, models.NewMetricsRecord(event))
}

// Start starts the worker goroutine
func (w *MetricsQueueWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Stop stops the worker, then flushes whatever is still queued
func (w *MetricsQueueWorker) Stop() error {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.stoppedChan
		}
		w.drain()
	})
	return nil
}

func (w *MetricsQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Metrics worker stopping")
			return
		default:
			if !w.processBatch(ctx) {
				return
			}
		}
	}
}

// drain empties the queue with a short, detached deadline
func (w *MetricsQueueWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for ctx.Err() == nil {
		items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, 10*time.Millisecond)
		if err != nil || len(items) == 0 {
			return
		}
		w.persist(ctx, items)
	}
}

// processBatch handles one batch; false means the queue is gone
func (w *MetricsQueueWorker) processBatch(ctx context.Context) bool {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			w.logger.Warn("Metrics queue closed")
			return false
		}
		if ctx.Err() != nil {
			return true
		}
		w.logger.Error("Failed to dequeue metrics records", "error", err)
		sleep(ctx, time.Second)
		return true
	}

	w.persist(ctx, items)
	return true
}

func (w *MetricsQueueWorker) persist(ctx context.Context, items []any) {
	if len(items) == 0 {
		return
	}

	records := make([]*models.MetricsRecord, 0, len(items))
	for _, item := range items {
		rec, err := queue.Decode[models.MetricsRecord](item)
		if err != nil {
			w.logger.Error("Failed to decode metrics record", "error", err)
			continue
		}
		records = append(records, &rec)
	}
	if len(records) == 0 {
		return
	}

	// Detached so a stop mid-batch does not lose the batch
	writeCtx := context.WithoutCancel(ctx)

	if err := w.writer.BatchInsert(writeCtx, records); err != nil {
		w.logger.Warn("Batch insert failed, falling back to individual inserts", "count", len(records), "error", err)
		for _, rec := range records {
			if err := w.processItem(writeCtx, rec); err != nil {
				w.logger.Error("Failed to persist metrics record", "id", rec.ID, "error", err)
			}
		}
		return
	}

	w.logger.Debug("Persisted metrics batch", "count", len(records))
}

// processItem inserts one record with exponential backoff, then moves it to the DLQ
func (w *MetricsQueueWorker) processItem(ctx context.Context, rec *models.MetricsRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			sleep(ctx, w.config.RetryBackoff*time.Duration(1<<uint(attempt-1)))
		}

		if err := w.writer.Create(ctx, rec); err != nil {
			lastErr = err
			w.logger.Debug("Metrics insert failed", "attempt", attempt, "error", err)
			if !utils.IsRecoverableError(err) {
				break
			}
			continue
		}
		return nil
	}

	if w.dlq != nil {
		if err := w.dlq.Add(ctx, rec, queue.ErrMaxRetriesExceeded); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Metrics record moved to DLQ", "id", rec.ID, "error", lastErr)
		}
	}

	return eris.Wrap(lastErr, "max retries exceeded")
}

// GetQueueLength returns the current queue length
func (w *MetricsQueueWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *MetricsQueueWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, eris.New("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed record
func (w *MetricsQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return eris.New("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return eris.Wrap(err, "failed to list dead letter items")
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return eris.Wrap(err, "failed to re-enqueue item")
		}
		return eris.Wrap(w.dlq.Remove(ctx, id), "failed to remove from DLQ")
	}

	return queue.ErrItemNotFound
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
