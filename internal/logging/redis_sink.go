package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisLogKey = "tutor:chatlog"

// RedisBufferSink keeps the most recent chat log records in a capped Redis
// list, newest first.
type RedisBufferSink struct {
	client  *redis.Client
	key     string
	maxLen  int64
	timeout time.Duration
}

// NewRedisBufferSink creates a sink that keeps at most maxLen records.
func NewRedisBufferSink(client *redis.Client, maxLen int64) *RedisBufferSink {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &RedisBufferSink{
		client:  client,
		key:     defaultRedisLogKey,
		maxLen:  maxLen,
		timeout: 2 * time.Second,
	}
}

// Enqueue pushes rec and trims the list in one round trip.
func (s *RedisBufferSink) Enqueue(rec *ChatLogRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to buffer log record: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first. Malformed entries are skipped.
func (s *RedisBufferSink) Recent(ctx context.Context, n int64) ([]*ChatLogRecord, error) {
	if n <= 0 || n > s.maxLen {
		n = s.maxLen
	}

	raw, err := s.client.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log records: %w", err)
	}

	records := make([]*ChatLogRecord, 0, len(raw))
	for _, item := range raw {
		var rec ChatLogRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *RedisBufferSink) Shutdown(ctx context.Context) error {
	return nil
}
