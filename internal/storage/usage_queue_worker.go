package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tutor_gateway/internal/models"
	"tutor_gateway/internal/queue"
	"tutor_gateway/internal/utils"
)

// UsageQueueWorker drains usage records from a queue into usage_records in batches
type UsageQueueWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	repo        *UsageRepository
	db          *DB
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewUsageQueueWorker creates a new usage queue worker
func NewUsageQueueWorker(q queue.Queue, dlq queue.DeadLetterQueue, db *DB, config *queue.Config) *UsageQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}

	return &UsageQueueWorker{
		queue:       q,
		dlq:         dlq,
		repo:        NewUsageRepository(db),
		db:          db,
		config:      config,
		logger:      utils.NewLogger("usage-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *UsageQueueWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop drains what is already queued and stops the worker
func (w *UsageQueueWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Enqueue adds a usage record to the queue
func (w *UsageQueueWorker) Enqueue(ctx context.Context, record *models.UsageRecord) error {
	return w.queue.Enqueue(ctx, record)
}

func (w *UsageQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.drain(context.Background())
			w.logger.Info("Usage worker stopped")
			return
		case <-ctx.Done():
			w.logger.Info("Usage worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// drain flushes whatever is left in the queue before shutdown.
func (w *UsageQueueWorker) drain(ctx context.Context) {
	for {
		n, err := w.queue.Length(ctx)
		if err != nil || n == 0 {
			return
		}
		if !w.processBatch(ctx) {
			return
		}
	}
}

// processBatch handles up to one batch and reports whether anything was dequeued.
func (w *UsageQueueWorker) processBatch(ctx context.Context) bool {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to dequeue usage records", "error", err)
			time.Sleep(time.Second)
		}
		return false
	}
	if len(items) == 0 {
		return false
	}

	w.logger.Debug("Processing usage batch", "count", len(items))

	records := make([]*models.UsageRecord, 0, len(items))
	for _, item := range items {
		var record models.UsageRecord
		if err := unmarshalUsageItem(item, &record); err != nil {
			w.logger.Error("Failed to unmarshal usage record", "error", err)
			continue
		}
		records = append(records, &record)
	}
	if len(records) == 0 {
		return true
	}

	if err := w.insertBatch(ctx, records); err != nil {
		w.logger.Error("Failed to insert batch, falling back to individual inserts", "error", err)
		for _, record := range records {
			if err := w.processItem(ctx, record); err != nil {
				w.logger.Error("Failed to process usage record", "error", err)
			}
		}
	}
	return true
}

// insertBatch inserts multiple usage records in a single transaction
func (w *UsageQueueWorker) insertBatch(ctx context.Context, records []*models.UsageRecord) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		if err := w.repo.create(ctx, tx, record); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.logger.Debug("Inserted batch successfully", "count", len(records))
	return nil
}

// processItem inserts a single usage record with retries, moving it to the
// dead letter queue when retries run out
func (w *UsageQueueWorker) processItem(ctx context.Context, record *models.UsageRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying usage record", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		if err := w.repo.Create(ctx, record); err != nil {
			lastErr = err
			w.logger.Error("Failed to insert usage record", "attempt", attempt, "error", err)
			continue
		}

		w.logger.Debug("Usage record inserted", "request_id", record.RequestID)
		return nil
	}

	if w.dlq != nil {
		if err := w.dlq.Add(ctx, record, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Usage record moved to DLQ", "request_id", record.RequestID, "error", lastErr)
		}
	}

	return fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
}

func unmarshalUsageItem(item any, record *models.UsageRecord) error {
	switch v := item.(type) {
	case *models.UsageRecord:
		*record = *v
		return nil
	case models.UsageRecord:
		*record = v
		return nil
	case []byte:
		return json.Unmarshal(v, record)
	case json.RawMessage:
		return json.Unmarshal(v, record)
	case string:
		return json.Unmarshal([]byte(v), record)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		return json.Unmarshal(data, record)
	}
}

// GetQueueLength returns the current queue length
func (w *UsageQueueWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *UsageQueueWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}
