package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tutor_gateway/internal/models"
)

const usageColumns = `id, request_id, provider_id, provider_type, protocol, client_kind, model_name,
		       endpoint, stream, prompt_tokens, completion_tokens, response_time_ms,
		       status_code, error_message, metadata, created_at`

// UsageRepository handles usage record database operations
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Create creates a new usage record
func (r *UsageRepository) Create(ctx context.Context, record *models.UsageRecord) error {
	return r.create(ctx, r.db.conn, record)
}

func (r *UsageRepository) create(ctx context.Context, exec sqlx.ExecerContext, record *models.UsageRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.RequestID == uuid.Nil {
		record.RequestID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := r.db.rebind(`
		INSERT INTO usage_records (` + usageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := exec.ExecContext(ctx, query,
		record.ID, record.RequestID, record.ProviderID, record.ProviderType, record.Protocol,
		record.ClientKind, record.ModelName, record.Endpoint, record.Stream,
		record.PromptTokens, record.CompletionTokens, record.ResponseTimeMS,
		record.StatusCode, record.ErrorMessage, record.Metadata, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create usage record: %w", err)
	}
	return nil
}

// GetByRequestID retrieves the usage record of one request
func (r *UsageRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.UsageRecord, error) {
	var record models.UsageRecord
	query := r.db.rebind(`SELECT ` + usageColumns + ` FROM usage_records WHERE request_id = ?`)

	if err := r.db.conn.GetContext(ctx, &record, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUsageRecordNotFound
		}
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}
	return &record, nil
}

// ListByProvider returns a provider's usage records in a time range, newest first
func (r *UsageRepository) ListByProvider(ctx context.Context, providerID string, startTime, endTime time.Time, limit, offset int) ([]*models.UsageRecord, error) {
	query := r.db.rebind(`SELECT ` + usageColumns + ` FROM usage_records
		WHERE provider_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`)

	records := []*models.UsageRecord{}
	if err := r.db.conn.SelectContext(ctx, &records, query, providerID, startTime.UTC(), endTime.UTC(), limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}

// SummaryByProvider aggregates usage per provider since a point in time
func (r *UsageRepository) SummaryByProvider(ctx context.Context, since time.Time) ([]*models.UsageSummary, error) {
	query := r.db.rebind(`
		SELECT provider_id,
		       COUNT(*) AS requests,
		       COALESCE(SUM(CASE WHEN status_code >= 400 OR status_code = 0 THEN 1 ELSE 0 END), 0) AS failures,
		       COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
		       COALESCE(SUM(completion_tokens), 0) AS completion_tokens
		FROM usage_records
		WHERE created_at >= ?
		GROUP BY provider_id
		ORDER BY provider_id
	`)

	summaries := []*models.UsageSummary{}
	if err := r.db.conn.SelectContext(ctx, &summaries, query, since.UTC()); err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return summaries, nil
}
