package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is the audit entry written for every completed chat call.
type UsageRecord struct {
	ID               uuid.UUID `db:"id" json:"id"`
	RequestID        uuid.UUID `db:"request_id" json:"requestId"`
	ProviderID       string    `db:"provider_id" json:"providerId"`
	ProviderType     string    `db:"provider_type" json:"providerType"`
	Protocol         string    `db:"protocol" json:"protocol"`
	ClientKind       string    `db:"client_kind" json:"clientKind"`
	ModelName        string    `db:"model_name" json:"modelName"`
	Endpoint         string    `db:"endpoint" json:"endpoint"`
	Stream           bool      `db:"stream" json:"stream"`
	PromptTokens     int       `db:"prompt_tokens" json:"promptTokens"`
	CompletionTokens int       `db:"completion_tokens" json:"completionTokens"`
	ResponseTimeMS   int       `db:"response_time_ms" json:"responseTimeMs"`
	StatusCode       int       `db:"status_code" json:"statusCode"`
	ErrorMessage     string    `db:"error_message" json:"errorMessage,omitempty"`
	Metadata         JSONB     `db:"metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// UsageSummary aggregates usage for one provider.
type UsageSummary struct {
	ProviderID       string `db:"provider_id" json:"providerId"`
	Requests         int    `db:"requests" json:"requests"`
	Failures         int    `db:"failures" json:"failures"`
	PromptTokens     int    `db:"prompt_tokens" json:"promptTokens"`
	CompletionTokens int    `db:"completion_tokens" json:"completionTokens"`
}
