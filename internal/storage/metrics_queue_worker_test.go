package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/queue"
	"trailblazer_ai/internal/utils"
)

// fakeMetricsWriter simulates database operations for testing
type fakeMetricsWriter struct {
	mu          sync.Mutex
	records     []*models.MetricsRecord
	failBatch   bool
	createFails int
	creates     int
	permanent   bool
}

func (f *fakeMetricsWriter) Create(ctx context.Context, rec *models.MetricsRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.permanent {
		return utils.Permanent(errors.New("record rejected"))
	}
	if f.createFails != 0 {
		if f.createFails > 0 {
			f.createFails--
		}
		return errors.New("simulated database error")
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeMetricsWriter) BatchInsert(ctx context.Context, recs []*models.MetricsRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBatch {
		return errors.New("simulated batch failure")
	}
	f.records = append(f.records, recs...)
	return nil
}

func (f *fakeMetricsWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func usageEvent(model string) models.UsageEvent {
	return models.UsageEvent{
		ID:           uuid.New(),
		Provider:     models.ProviderAnthropic,
		Model:        model,
		InputTokens:  500,
		OutputTokens: 100,
		Cost:         decimal.RequireFromString("0.003"),
		Timestamp:    time.Now().UTC(),
		UseCase:      models.UseCaseTrailAnalysis,
		Success:      true,
	}
}

func testQueueConfig() *queue.Config {
	cfg := queue.DefaultConfig("metrics-test")
	cfg.BatchSize = 10
	cfg.BatchTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestMetricsQueueWorker_PersistsBatches(t *testing.T) {
	cfg := testQueueConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	writer := &fakeMetricsWriter{}
	w := NewMetricsQueueWorker(q, queue.NewMemoryDeadLetterQueue(), writer, cfg)
	w.Start(context.Background())

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, w.Report(ctx, usageEvent("claude-sonnet-4")))
	}

	assert.Eventually(t, func() bool { return writer.count() == 25 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())
}

func TestMetricsQueueWorker_StopDrainsQueue(t *testing.T) {
	cfg := testQueueConfig()
	cfg.BatchTimeout = time.Hour
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	writer := &fakeMetricsWriter{}
	w := NewMetricsQueueWorker(q, nil, writer, cfg)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Report(ctx, usageEvent("gpt-4o")))
	}
	w.Start(ctx)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "stop is idempotent")

	assert.Equal(t, 5, writer.count())
}

func TestMetricsQueueWorker_FallbackAndDeadLetter(t *testing.T) {
	cfg := testQueueConfig()
	ctx := context.Background()

	t.Run("individual inserts recover a failed batch", func(t *testing.T) {
		q := queue.NewMemoryQueue(cfg)
		defer q.Close()
		writer := &fakeMetricsWriter{failBatch: true, createFails: 1}
		dlq := queue.NewMemoryDeadLetterQueue()
		w := NewMetricsQueueWorker(q, dlq, writer, cfg)

		w.persist(ctx, []any{models.NewMetricsRecord(usageEvent("a")), models.NewMetricsRecord(usageEvent("b"))})

		assert.Equal(t, 2, writer.count())
		items, err := dlq.List(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("exhausted retries land in the DLQ and can be retried", func(t *testing.T) {
		q := queue.NewMemoryQueue(cfg)
		defer q.Close()
		writer := &fakeMetricsWriter{failBatch: true, createFails: -1}
		dlq := queue.NewMemoryDeadLetterQueue()
		w := NewMetricsQueueWorker(q, dlq, writer, cfg)

		w.persist(ctx, []any{models.NewMetricsRecord(usageEvent("a"))})
		assert.Equal(t, cfg.MaxRetries+1, writer.creates)

		items, err := w.GetDeadLetterItems(ctx, 10)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, queue.ErrMaxRetriesExceeded.Error(), items[0].Error)

		require.NoError(t, w.RetryDeadLetterItem(ctx, items[0].ID))
		n, err := w.GetQueueLength(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.ErrorIs(t, w.RetryDeadLetterItem(ctx, items[0].ID), queue.ErrItemNotFound)
	})

	t.Run("permanent errors skip the remaining retries", func(t *testing.T) {
		q := queue.NewMemoryQueue(cfg)
		defer q.Close()
		writer := &fakeMetricsWriter{failBatch: true, permanent: true}
		dlq := queue.NewMemoryDeadLetterQueue()
		w := NewMetricsQueueWorker(q, dlq, writer, cfg)

		w.persist(ctx, []any{models.NewMetricsRecord(usageEvent("a"))})
		assert.Equal(t, 1, writer.creates)

		items, err := dlq.List(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("undecodable items are skipped", func(t *testing.T) {
		q := queue.NewMemoryQueue(cfg)
		defer q.Close()
		writer := &fakeMetricsWriter{}
		w := NewMetricsQueueWorker(q, nil, writer, cfg)

		w.persist(ctx, []any{[]byte("{broken"), models.NewMetricsRecord(usageEvent("ok"))})
		assert.Equal(t, 1, writer.count())
	})
}

func TestMetricsQueueWorker_SQLiteEndToEnd(t *testing.T) {
	db := newTestDB(t)
	cfg := testQueueConfig()
	q := queue.NewMemoryQueue(cfg)
	defer q.Close()
	w := NewMetricsQueueWorker(q, queue.NewMemoryDeadLetterQueue(), db.NewMetricsRepository(), cfg)
	w.Start(context.Background())

	ev := usageEvent("claude-sonnet-4")
	require.NoError(t, w.Report(context.Background(), ev))
	require.NoError(t, w.Stop())

	recs, err := db.NewMetricsRepository().ListSince(context.Background(), ev.Timestamp.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ev.ID, recs[0].ID)
	assert.True(t, ev.Cost.Equal(recs[0].CostUSD))
}
