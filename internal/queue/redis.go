package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue using a Redis list. Items are stored as JSON
// and come back as json.RawMessage.
type RedisQueue struct {
	client *redis.Client
	config *Config
	qKey   string
}

// NewRedisQueue creates a queue on a shared client. Close does not close the client.
func NewRedisQueue(client *redis.Client, config *Config) *RedisQueue {
	if config == nil {
		config = DefaultConfig("redis")
	}

	return &RedisQueue{
		client: client,
		config: config,
		qKey:   redisKey(config, "queue"),
	}
}

func redisKey(config *Config, kind string) string {
	if config.KeyPrefix == "" {
		return fmt.Sprintf("%s:%s", kind, config.QueueName)
	}
	return fmt.Sprintf("%s:%s:%s", config.KeyPrefix, kind, config.QueueName)
}

// Enqueue adds an item to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, item any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}

	return nil
}

// Dequeue retrieves items from the queue
func (q *RedisQueue) Dequeue(ctx context.Context, maxItems int) ([]any, error) {
	return q.dequeue(ctx, maxItems, 0)
}

// DequeueWithTimeout retrieves items with a timeout
func (q *RedisQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]any, error) {
	return q.dequeue(ctx, maxItems, timeout)
}

func (q *RedisQueue) dequeue(ctx context.Context, maxItems int, timeout time.Duration) ([]any, error) {
	// result[0] is the key, result[1] is the value
	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if errors.Is(err, redis.Nil) {
		return []any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	items := []any{json.RawMessage(result[1])}
	if maxItems <= 1 {
		return items, nil
	}

	rest, err := q.client.LPopCount(ctx, q.qKey, maxItems-1).Result()
	if err != nil {
		// Return what we have so far
		return items, nil
	}
	for _, r := range rest {
		items = append(items, json.RawMessage(r))
	}

	return items, nil
}

// Length returns the current queue length
func (q *RedisQueue) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

func (q *RedisQueue) Close() error {
	return nil
}

// RedisDeadLetterQueue implements DeadLetterQueue using a Redis hash keyed by item ID
type RedisDeadLetterQueue struct {
	client *redis.Client
	dlKey  string
}

// NewRedisDeadLetterQueue creates a dead letter queue on a shared client
func NewRedisDeadLetterQueue(client *redis.Client, config *Config) *RedisDeadLetterQueue {
	if config == nil {
		config = DefaultConfig("redis")
	}

	return &RedisDeadLetterQueue{
		client: client,
		dlKey:  redisKey(config, "dlq"),
	}
}

// Add adds a failed item to the dead letter queue
func (q *RedisDeadLetterQueue) Add(ctx context.Context, item any, err error) error {
	dlItem := newDeadLetterItem(item, err)

	data, marshalErr := json.Marshal(dlItem)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", marshalErr)
	}

	if err := q.client.HSet(ctx, q.dlKey, dlItem.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}

	return nil
}

// List returns up to maxItems entries, oldest first
func (q *RedisDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem, 0, len(results))
	for _, data := range results {
		var dlItem DeadLetterItem
		if err := json.Unmarshal([]byte(data), &dlItem); err != nil {
			continue // Skip malformed items
		}
		items = append(items, dlItem)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}

	return items, nil
}

// Remove removes an item from the dead letter queue
func (q *RedisDeadLetterQueue) Remove(ctx context.Context, id string) error {
	n, err := q.client.HDel(ctx, q.dlKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (q *RedisDeadLetterQueue) Close() error {
	return nil
}
