package logging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"trailblazer_ai/internal/config"
	"trailblazer_ai/internal/queue"
	"trailblazer_ai/internal/utils"
)

// S3SinkConfig configures batching for the S3 sink.
type S3SinkConfig struct {
	Enabled       bool
	BufferSize    int
	FlushSize     int
	FlushInterval time.Duration
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	S3Endpoint    string
	PodName       string
}

// SinkConfigFrom maps the audit section of the service configuration.
func SinkConfigFrom(cfg config.AuditConfig) S3SinkConfig {
	return S3SinkConfig{
		Enabled:       cfg.Enabled,
		BufferSize:    cfg.BufferSize,
		FlushSize:     cfg.FlushSize,
		FlushInterval: cfg.FlushInterval,
		S3Bucket:      cfg.S3Bucket,
		S3Region:      cfg.S3Region,
		S3Prefix:      cfg.S3Prefix,
		S3Endpoint:    cfg.S3Endpoint,
		PodName:       cfg.PodName,
	}
}

func (c S3SinkConfig) withDefaults() S3SinkConfig {
	if c.FlushSize <= 0 {
		c.FlushSize = 500
	}
	if c.BufferSize < c.FlushSize {
		c.BufferSize = c.FlushSize * 10
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Minute
	}
	return c
}

// S3Sink buffers audit records in a queue and flushes them to S3 when a
// batch fills up or the flush interval passes. Enqueue never blocks.
type S3Sink struct {
	queue         queue.Queue
	writer        BatchWriter
	flushSize     int
	flushInterval time.Duration
	logger        *utils.Logger

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewS3Sink creates the S3 writer and starts the flush loop. q may be nil,
// in which case an in-memory queue sized from the config is used.
func NewS3Sink(ctx context.Context, cfg S3SinkConfig, q queue.Queue) (*S3Sink, error) {
	cfg = cfg.withDefaults()
	writer, err := NewS3Writer(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix, cfg.PodName, cfg.S3Endpoint)
	if err != nil {
		return nil, err
	}
	return NewSinkWithWriter(cfg, q, writer), nil
}

// NewSinkWithWriter starts a sink on an arbitrary batch writer.
func NewSinkWithWriter(cfg S3SinkConfig, q queue.Queue, writer BatchWriter) *S3Sink {
	cfg = cfg.withDefaults()
	if q == nil {
		q = queue.NewMemoryQueue(&queue.Config{
			QueueName:    "audit",
			BatchSize:    cfg.BufferSize / 10,
			BatchTimeout: cfg.FlushInterval,
		})
	}
	s := &S3Sink{
		queue:         q,
		writer:        writer,
		flushSize:     cfg.FlushSize,
		flushInterval: cfg.FlushInterval,
		logger:        utils.NewLogger("audit-sink"),
		stopChan:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(context.Background())
	return s
}

// Enqueue hands a record to the buffer. A full buffer drops the record.
func (s *S3Sink) Enqueue(rec *AuditRecord) error {
	if rec == nil {
		return nil
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return queue.ErrQueueClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.queue.Enqueue(ctx, rec); err != nil {
		s.logger.Warn("Dropping audit record", "request_id", rec.RequestID, "error", err)
		return eris.Wrap(err, "audit buffer full")
	}
	return nil
}

// Shutdown stops the loop and flushes everything still buffered.
func (s *S3Sink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopChan)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return s.queue.Close()
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "audit sink shutdown timed out")
	}
}

func (s *S3Sink) run(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]*AuditRecord, 0, s.flushSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			batch = s.collect(ctx, batch, 10*time.Millisecond, true)
			s.flush(ctx, batch)
			return
		case <-ticker.C:
			batch = s.flush(ctx, batch)
		default:
			batch = s.collect(ctx, batch, 100*time.Millisecond, false)
			if len(batch) >= s.flushSize {
				batch = s.flush(ctx, batch)
			}
		}
	}
}

// collect pulls from the queue; with all set it keeps going until the queue is empty.
func (s *S3Sink) collect(ctx context.Context, batch []*AuditRecord, wait time.Duration, all bool) []*AuditRecord {
	for {
		want := s.flushSize - len(batch)
		if want <= 0 {
			if !all {
				return batch
			}
			batch = s.flush(ctx, batch)
			want = s.flushSize
		}
		items, err := s.queue.DequeueWithTimeout(ctx, want, wait)
		if err != nil {
			if !errors.Is(err, queue.ErrQueueClosed) {
				s.logger.Error("Failed to read audit buffer", "error", err)
			}
			return batch
		}
		for _, item := range items {
			rec, err := queue.Decode[*AuditRecord](item)
			if err != nil {
				s.logger.Warn("Skipping undecodable audit record", "error", err)
				continue
			}
			batch = append(batch, rec)
		}
		if !all || len(items) == 0 {
			return batch
		}
	}
}

// flush writes the batch and returns an empty one. Failed batches are logged and dropped.
func (s *S3Sink) flush(ctx context.Context, batch []*AuditRecord) []*AuditRecord {
	if len(batch) == 0 {
		return batch
	}
	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := s.writer.WriteBatch(writeCtx, batch); err != nil {
		s.logger.Error("Failed to flush audit batch", "count", len(batch), "error", err)
	}
	return make([]*AuditRecord, 0, s.flushSize)
}
