package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ModelKind says what a managed model is used for.
type ModelKind string

const (
	ModelKindChat      ModelKind = "chat"
	ModelKindEmbedding ModelKind = "embedding"
)

// ManagedModel is a model offered by a provider and toggled by the user.
type ManagedModel struct {
	ID          string    `db:"id" json:"id"`
	ProviderID  string    `db:"provider_id" json:"providerId"`
	Name        string    `db:"name" json:"name"`
	Kind        ModelKind `db:"kind" json:"kind"`
	Temperature float64   `db:"temperature" json:"temperature"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// NewModelID returns a fresh managed model identifier.
func NewModelID() string {
	return "model-" + uuid.NewString()
}

// Validate checks the fields a caller must supply.
func (m *ManagedModel) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("model name is required")
	}
	if m.Kind != ModelKindChat && m.Kind != ModelKindEmbedding {
		return fmt.Errorf("invalid model kind: %q", m.Kind)
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

type modelTemplate struct {
	name        string
	kind        ModelKind
	temperature float64
	description string
}

var modelTemplates = map[ProviderType][]modelTemplate{
	ProviderTypeAnthropic: {
		{"claude-sonnet-4-20250514", ModelKindChat, 0.4, "Everyday conversation and complex reasoning"},
		{"text-embedding-3-small", ModelKindEmbedding, 0, "Knowledge base vector retrieval"},
	},
	ProviderTypeOpenAI: {
		{"gpt-4o", ModelKindChat, 0.4, "General purpose chat model"},
		{"text-embedding-3-small", ModelKindEmbedding, 0, "General purpose embedding model"},
	},
	ProviderTypeDeepSeek: {
		{"deepseek-chat", ModelKindChat, 0.5, "Stable on Chinese-language tasks"},
	},
	ProviderTypeGoogle: {
		{"gemini-2.5-flash", ModelKindChat, 0.4, "Cost-effective general model"},
	},
	ProviderTypeYi: {
		{"yi-lightning", ModelKindChat, 0.5, "Low-latency chat model"},
	},
}

// ModelTemplates returns the disabled starter models for a provider of type
// t. Custom providers have none.
func ModelTemplates(providerID string, t ProviderType) []*ManagedModel {
	tmpls := modelTemplates[t]
	now := time.Now().UTC()

	out := make([]*ManagedModel, 0, len(tmpls))
	for _, tmpl := range tmpls {
		out = append(out, &ManagedModel{
			ID:          NewModelID(),
			ProviderID:  providerID,
			Name:        tmpl.name,
			Kind:        tmpl.kind,
			Temperature: tmpl.temperature,
			Description: tmpl.description,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return out
}

// DefaultChatModel returns the first chat model template for t, or "".
func DefaultChatModel(t ProviderType) string {
	for _, tmpl := range modelTemplates[t] {
		if tmpl.kind == ModelKindChat {
			return tmpl.name
		}
	}
	return ""
}
