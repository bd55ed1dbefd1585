package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelTemplates(t *testing.T) {
	tests := []struct {
		providerType ProviderType
		names        []string
	}{
		{ProviderTypeAnthropic, []string{"claude-sonnet-4-20250514", "text-embedding-3-small"}},
		{ProviderTypeOpenAI, []string{"gpt-4o", "text-embedding-3-small"}},
		{ProviderTypeDeepSeek, []string{"deepseek-chat"}},
		{ProviderTypeGoogle, []string{"gemini-2.5-flash"}},
		{ProviderTypeYi, []string{"yi-lightning"}},
		{ProviderTypeCustom, []string{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.providerType), func(t *testing.T) {
			models := ModelTemplates("provider-x", tt.providerType)
			names := make([]string, 0, len(models))
			for _, m := range models {
				names = append(names, m.Name)
				assert.Equal(t, "provider-x", m.ProviderID)
				assert.False(t, m.Enabled)
				assert.NoError(t, m.Validate())
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestDefaultChatModel(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", DefaultChatModel(ProviderTypeGoogle))
	assert.Equal(t, "gpt-4o", DefaultChatModel(ProviderTypeOpenAI))
	assert.Equal(t, "", DefaultChatModel(ProviderTypeCustom))
}

func TestManagedModel_Validate(t *testing.T) {
	tests := []struct {
		name    string
		model   ManagedModel
		wantErr bool
	}{
		{"valid chat", ManagedModel{Name: "gpt-4o", Kind: ModelKindChat, Temperature: 0.4}, false},
		{"valid embedding", ManagedModel{Name: "emb", Kind: ModelKindEmbedding}, false},
		{"missing name", ManagedModel{Kind: ModelKindChat}, true},
		{"bad kind", ManagedModel{Name: "x", Kind: "vision"}, true},
		{"temperature too high", ManagedModel{Name: "x", Kind: ModelKindChat, Temperature: 2.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.model.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
