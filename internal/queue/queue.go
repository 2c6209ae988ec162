package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Package queue decouples the request path from slow sinks. Two backends:
//
// 1. Memory Queue (in-memory, channel-based):
//    - No persistence, data lost on restart
//    - Used for single-instance and local deployments
//
// 2. Redis Queue (Redis List-based):
//    - Persistent across restarts
//    - Shared by every replica of the analysis service
//
// Flow:
//
//	┌──────────────┐
//	│ usage        │  (one UsageEvent per provider call)
//	│ recorder     │
//	└──────┬───────┘
//	       ├─────────────────────────┐
//	       ▼                         ▼
//	┌──────────────┐         ┌──────────────┐
//	│ metrics      │         │ spend        │
//	│ queue        │         │ queue        │
//	└──────┬───────┘         └──────┬───────┘
//	       ▼                         ▼
//	┌──────────────┐         ┌──────────────┐
//	│ metrics      │         │ spend        │
//	│ worker       │         │ worker       │
//	└──────┬───────┘         └──────┬───────┘
//	       ├─────────┐               ├─────────┐
//	       ▼         ▼               ▼         ▼
//	  ┌────────┐ ┌─────┐       ┌─────────┐ ┌─────┐
//	  │   DB   │ │ DLQ │       │  Redis  │ │ DLQ │
//	  └────────┘ └─────┘       │ counters│ └─────┘
//	                           └─────────┘

// Queue defines the interface for message queuing
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item any) error

	// Dequeue retrieves items from the queue (up to maxItems)
	// Blocks until at least one item is available or context is cancelled
	Dequeue(ctx context.Context, maxItems int) ([]any, error)

	// DequeueWithTimeout retrieves items with a timeout
	// Returns items if available before timeout, empty slice otherwise
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]any, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// DeadLetterQueue defines the interface for handling failed items
type DeadLetterQueue interface {
	// Add adds a failed item to the dead letter queue with error info
	Add(ctx context.Context, item any, err error) error

	// List retrieves items from the dead letter queue
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove removes an item from the dead letter queue
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem represents an item in the dead letter queue
type DeadLetterItem struct {
	ID        string
	Item      any
	Error     string
	Timestamp time.Time
	Retries   int
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// QueueName is the name/key for the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
	}
}

// New returns a Redis backed queue and DLQ when client is set, in-memory ones otherwise.
// The Redis client is shared and is not closed by the queues.
func New(config *Config, client *redis.Client) (Queue, DeadLetterQueue) {
	if config == nil {
		config = DefaultConfig("default")
	}
	if client != nil {
		return NewRedisQueue(client, config), NewRedisDeadLetterQueue(client, config)
	}
	return NewMemoryQueue(config), NewMemoryDeadLetterQueue()
}

// Decode converts a dequeued item into T. Memory queues hand back the value
// that was enqueued; Redis queues hand back json.RawMessage.
func Decode[T any](item any) (T, error) {
	var out T
	switch v := item.(type) {
	case T:
		return v, nil
	case *T:
		if v == nil {
			return out, eris.New("nil item")
		}
		return *v, nil
	case json.RawMessage:
		err := json.Unmarshal(v, &out)
		return out, eris.Wrap(err, "failed to decode queue item")
	case []byte:
		err := json.Unmarshal(v, &out)
		return out, eris.Wrap(err, "failed to decode queue item")
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return out, eris.Wrap(err, "failed to marshal queue item")
		}
		err = json.Unmarshal(data, &out)
		return out, eris.Wrap(err, "failed to decode queue item")
	}
}
