// Package queue buffers work that must not block the request path: usage
// records on their way to the database and chat log records on their way to
// a log sink. Two backends share one interface:
//
//   - MemoryQueue: a buffered channel, lost on restart, no dependencies
//   - RedisQueue: a Redis list, survives restarts and can be drained by
//     several gateway replicas
//
// Workers dequeue in batches, retry with exponential backoff and park items
// they cannot store in a DeadLetterQueue.
package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue defines the interface for message queuing
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item any) error

	// Dequeue blocks until at least one item is available and returns up to maxItems
	Dequeue(ctx context.Context, maxItems int) ([]any, error)

	// DequeueWithTimeout returns an empty slice when nothing arrives before the timeout
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]any, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	Close() error
}

// DeadLetterQueue holds items that exhausted their retries
type DeadLetterQueue interface {
	Add(ctx context.Context, item any, err error) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem represents an item in the dead letter queue
type DeadLetterItem struct {
	ID        string    `json:"id"`
	Item      any       `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
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

	// KeyPrefix namespaces Redis keys
	KeyPrefix string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
		KeyPrefix:    "tutor",
	}
}

// New returns a Redis-backed queue pair when client is non-nil and an
// in-memory pair otherwise.
func New(client *redis.Client, config *Config) (Queue, DeadLetterQueue) {
	if config == nil {
		config = DefaultConfig("default")
	}
	if client == nil {
		return NewMemoryQueue(config), NewMemoryDeadLetterQueue()
	}
	return NewRedisQueue(client, config), NewRedisDeadLetterQueue(client, config)
}
