package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProviderType enumerates supported vendor types.
type ProviderType string

const (
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeGoogle    ProviderType = "google"
	ProviderTypeDeepSeek  ProviderType = "deepseek"
	ProviderTypeYi        ProviderType = "yi"
	ProviderTypeCustom    ProviderType = "custom"
)

// IsValid reports whether t is one of the known vendor types.
func (t ProviderType) IsValid() bool {
	switch t {
	case ProviderTypeOpenAI, ProviderTypeAnthropic, ProviderTypeGoogle,
		ProviderTypeDeepSeek, ProviderTypeYi, ProviderTypeCustom:
		return true
	}
	return false
}

// Protocol is the wire protocol family used to talk to a provider.
type Protocol string

const (
	ProtocolOpenAICompatible  Protocol = "openai-compatible"
	ProtocolAnthropicMessages Protocol = "anthropic-messages"
	ProtocolGoogleGenAI       Protocol = "google-genai"
	ProtocolCustomHTTP        Protocol = "custom-http"
)

// IsValid reports whether p is one of the known protocol families.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolOpenAICompatible, ProtocolAnthropicMessages, ProtocolGoogleGenAI, ProtocolCustomHTTP:
		return true
	}
	return false
}

// AuthScheme selects how the secret key is attached to outgoing requests.
type AuthScheme string

const (
	AuthSchemeBearer       AuthScheme = "bearer"
	AuthSchemeXAPIKey      AuthScheme = "x-api-key"
	AuthSchemeCustomHeader AuthScheme = "custom-header"
)

// IsValid reports whether s is one of the known auth schemes.
func (s AuthScheme) IsValid() bool {
	switch s {
	case AuthSchemeBearer, AuthSchemeXAPIKey, AuthSchemeCustomHeader:
		return true
	}
	return false
}

// ProviderStatus is the result of the last connection test.
type ProviderStatus string

const (
	ProviderStatusUntested  ProviderStatus = "untested"
	ProviderStatusConnected ProviderStatus = "connected"
	ProviderStatusFailed    ProviderStatus = "failed"
)

// Provider represents a configured LLM vendor endpoint.
//
// APIKey only holds plaintext in memory; repositories persist
// EncryptedAPIKey instead.
type Provider struct {
	ID               string         `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	Type             ProviderType   `db:"provider_type" json:"type"`
	Protocol         Protocol       `db:"protocol" json:"protocol"`
	BaseURL          string         `db:"base_url" json:"baseUrl"`
	ChatPath         string         `db:"chat_path" json:"chatPath,omitempty"`
	EmbeddingPath    string         `db:"embedding_path" json:"embeddingPath,omitempty"`
	AuthScheme       AuthScheme     `db:"auth_scheme" json:"authScheme"`
	CustomHeaderName string         `db:"custom_header_name" json:"customHeaderName,omitempty"`
	APIKey           string         `db:"-" json:"apiKey,omitempty"`
	EncryptedAPIKey  string         `db:"encrypted_api_key" json:"-"`
	Enabled          bool           `db:"enabled" json:"enabled"`
	Status           ProviderStatus `db:"status" json:"status"`
	LatencyMs        *int64         `db:"latency_ms" json:"latencyMs,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

// NewProviderID returns a fresh provider identifier.
func NewProviderID() string {
	return "provider-" + uuid.NewString()
}

// Normalize returns a copy of p with every optional field that drives
// request building resolved to a concrete value. It is applied once when a
// provider is loaded or accepted from a caller.
func (p Provider) Normalize() Provider {
	if !p.Protocol.IsValid() {
		p.Protocol = ProtocolOpenAICompatible
	}
	if !p.AuthScheme.IsValid() {
		p.AuthScheme = AuthSchemeBearer
	}
	if p.Status == "" {
		p.Status = ProviderStatusUntested
	}
	p.BaseURL = strings.TrimSpace(p.BaseURL)
	p.ChatPath = strings.TrimSpace(p.ChatPath)
	p.EmbeddingPath = strings.TrimSpace(p.EmbeddingPath)
	p.CustomHeaderName = strings.TrimSpace(p.CustomHeaderName)
	return p
}

// Validate checks the fields a caller must supply when creating or editing a provider.
func (p *Provider) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("invalid provider type: %q", p.Type)
	}
	if p.Protocol != "" && !p.Protocol.IsValid() {
		return fmt.Errorf("invalid protocol: %q", p.Protocol)
	}
	if p.AuthScheme != "" && !p.AuthScheme.IsValid() {
		return fmt.Errorf("invalid auth scheme: %q", p.AuthScheme)
	}
	u, err := url.Parse(strings.TrimSpace(p.BaseURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("base url must be an absolute http(s) URL: %q", p.BaseURL)
	}
	return nil
}

// ProviderDefaults are the values seeded into a provider of a given type when
// it is first created.
type ProviderDefaults struct {
	Name             string
	Protocol         Protocol
	BaseURL          string
	ChatPath         string
	EmbeddingPath    string
	AuthScheme       AuthScheme
	CustomHeaderName string
}

// DefaultsFor returns the creation defaults for a vendor type. Unknown types
// get the OpenAI defaults.
func DefaultsFor(t ProviderType) ProviderDefaults {
	switch t {
	case ProviderTypeAnthropic:
		return ProviderDefaults{
			Name:             "Anthropic",
			Protocol:         ProtocolAnthropicMessages,
			BaseURL:          "https://api.anthropic.com",
			ChatPath:         "/v1/messages",
			EmbeddingPath:    "/v1/embeddings",
			AuthScheme:       AuthSchemeXAPIKey,
			CustomHeaderName: "x-api-key",
		}
	case ProviderTypeGoogle:
		return ProviderDefaults{
			Name:             "Google",
			Protocol:         ProtocolGoogleGenAI,
			BaseURL:          "https://generativelanguage.googleapis.com/v1beta",
			ChatPath:         "/models/{model}:generateContent",
			EmbeddingPath:    "/models/text-embedding-004:embedContent",
			AuthScheme:       AuthSchemeCustomHeader,
			CustomHeaderName: "x-goog-api-key",
		}
	case ProviderTypeDeepSeek:
		return ProviderDefaults{
			Name:             "DeepSeek",
			Protocol:         ProtocolOpenAICompatible,
			BaseURL:          "https://api.deepseek.com/v1",
			ChatPath:         "/chat/completions",
			EmbeddingPath:    "/embeddings",
			AuthScheme:       AuthSchemeBearer,
			CustomHeaderName: "Authorization",
		}
	case ProviderTypeYi:
		return ProviderDefaults{
			Name:             "Yi",
			Protocol:         ProtocolOpenAICompatible,
			BaseURL:          "https://api.lingyiwanwu.com/v1",
			ChatPath:         "/chat/completions",
			EmbeddingPath:    "/embeddings",
			AuthScheme:       AuthSchemeBearer,
			CustomHeaderName: "Authorization",
		}
	case ProviderTypeCustom:
		return ProviderDefaults{
			Name:             "Custom",
			Protocol:         ProtocolCustomHTTP,
			BaseURL:          "https://api.custom-llm.com/v1",
			ChatPath:         "/chat",
			EmbeddingPath:    "/embedding",
			AuthScheme:       AuthSchemeCustomHeader,
			CustomHeaderName: "X-API-Key",
		}
	default:
		return ProviderDefaults{
			Name:             "OpenAI",
			Protocol:         ProtocolOpenAICompatible,
			BaseURL:          "https://api.openai.com/v1",
			ChatPath:         "/chat/completions",
			EmbeddingPath:    "/embeddings",
			AuthScheme:       AuthSchemeBearer,
			CustomHeaderName: "Authorization",
		}
	}
}

// NewProvider builds an enabled, untested provider of type t seeded with the
// type's defaults.
func NewProvider(t ProviderType, apiKey string) *Provider {
	d := DefaultsFor(t)
	now := time.Now().UTC()
	return &Provider{
		ID:               NewProviderID(),
		Name:             d.Name,
		Type:             t,
		Protocol:         d.Protocol,
		BaseURL:          d.BaseURL,
		ChatPath:         d.ChatPath,
		EmbeddingPath:    d.EmbeddingPath,
		AuthScheme:       d.AuthScheme,
		CustomHeaderName: d.CustomHeaderName,
		APIKey:           apiKey,
		Enabled:          true,
		Status:           ProviderStatusUntested,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ApplyDefaults fills empty routing fields of p from its type's defaults.
func (p *Provider) ApplyDefaults() {
	d := DefaultsFor(p.Type)
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.Protocol == "" {
		p.Protocol = d.Protocol
	}
	if p.BaseURL == "" {
		p.BaseURL = d.BaseURL
	}
	if p.ChatPath == "" {
		p.ChatPath = d.ChatPath
	}
	if p.EmbeddingPath == "" {
		p.EmbeddingPath = d.EmbeddingPath
	}
	if p.AuthScheme == "" {
		p.AuthScheme = d.AuthScheme
	}
	if p.CustomHeaderName == "" {
		p.CustomHeaderName = d.CustomHeaderName
	}
}

// ProviderTemplates returns the providers offered on a fresh install.
func ProviderTemplates() []*Provider {
	types := []struct {
		id string
		t  ProviderType
	}{
		{"provider-anthropic", ProviderTypeAnthropic},
		{"provider-openai", ProviderTypeOpenAI},
		{"provider-custom", ProviderTypeCustom},
	}

	templates := make([]*Provider, 0, len(types))
	for _, tt := range types {
		p := NewProvider(tt.t, "")
		p.ID = tt.id
		templates = append(templates, p)
	}
	return templates
}
