package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tutor_gateway/internal/models"
)

// ProviderSeed is one provider entry of a seed file. Empty fields take the
// defaults for Type. APIKey may reference environment variables, e.g.
// "${OPENAI_API_KEY}".
type ProviderSeed struct {
	ID               string      `yaml:"id"`
	Name             string      `yaml:"name"`
	Type             string      `yaml:"type"`
	Protocol         string      `yaml:"protocol"`
	BaseURL          string      `yaml:"base_url"`
	ChatPath         string      `yaml:"chat_path"`
	EmbeddingPath    string      `yaml:"embedding_path"`
	AuthScheme       string      `yaml:"auth_scheme"`
	CustomHeaderName string      `yaml:"custom_header_name"`
	APIKey           string      `yaml:"api_key"`
	Enabled          *bool       `yaml:"enabled"`
	Models           []ModelSeed `yaml:"models"`
}

// ModelSeed is a managed model listed under a provider seed.
type ModelSeed struct {
	Name        string  `yaml:"name"`
	Kind        string  `yaml:"kind"`
	Temperature float64 `yaml:"temperature"`
	Enabled     bool    `yaml:"enabled"`
	Description string  `yaml:"description"`
}

type seedFile struct {
	Providers []ProviderSeed `yaml:"providers"`
}

// LoadProviderSeeds reads and validates a YAML seed file.
func LoadProviderSeeds(path string) ([]ProviderSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseProviderSeeds(data)
}

// ParseProviderSeeds decodes seed YAML. Unknown keys are rejected.
func ParseProviderSeeds(data []byte) ([]ProviderSeed, error) {
	var file seedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, seed := range file.Providers {
		if seed.Type == "" {
			return nil, fmt.Errorf("provider seed %d: type is required", i)
		}
		if !models.ProviderType(seed.Type).IsValid() {
			return nil, fmt.Errorf("provider seed %d: unknown type %q", i, seed.Type)
		}
		p := seed.Provider()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("provider seed %d: %w", i, err)
		}
	}
	return file.Providers, nil
}

// Provider builds the provider record described by the seed.
func (s ProviderSeed) Provider() *models.Provider {
	p := &models.Provider{
		ID:               s.ID,
		Name:             s.Name,
		Type:             models.ProviderType(s.Type),
		Protocol:         models.Protocol(s.Protocol),
		BaseURL:          s.BaseURL,
		ChatPath:         s.ChatPath,
		EmbeddingPath:    s.EmbeddingPath,
		AuthScheme:       models.AuthScheme(s.AuthScheme),
		CustomHeaderName: s.CustomHeaderName,
		APIKey:           os.ExpandEnv(s.APIKey),
		Enabled:          true,
	}
	if s.Enabled != nil {
		p.Enabled = *s.Enabled
	}
	p.ApplyDefaults()
	if p.ID == "" {
		p.ID = "provider-" + string(p.Type)
	}
	return p
}

// ManagedModels builds the model records listed under the seed.
func (s ProviderSeed) ManagedModels(providerID string) []*models.ManagedModel {
	out := make([]*models.ManagedModel, 0, len(s.Models))
	for _, m := range s.Models {
		kind := models.ModelKind(m.Kind)
		if kind == "" {
			kind = models.ModelKindChat
		}
		out = append(out, &models.ManagedModel{
			ProviderID:  providerID,
			Name:        m.Name,
			Kind:        kind,
			Temperature: m.Temperature,
			Enabled:     m.Enabled,
			Description: m.Description,
		})
	}
	return out
}
