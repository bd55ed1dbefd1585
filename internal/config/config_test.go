package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor_gateway/internal/models"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_DRIVER", "DATABASE_URL", "ENCRYPTION_KEY", "ENCRYPTION_PASSPHRASE",
		"GOOGLE_SYSTEM_POLICY", "REDIS_ADDRESS", "HTTP_PORT", "PROVIDER_RELOAD_INTERVAL",
		"REQUEST_LOGGER_FILE_PATH_TEMPLATE", "USAGE_QUEUE_BATCH_SIZE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, defaultSQLiteURL, cfg.Database.URL)
	assert.False(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Encryption.UsesDevKey())
	assert.Equal(t, "drop", cfg.Provider.GoogleSystemPolicy)
	assert.Equal(t, 5*time.Minute, cfg.Provider.ReloadInterval)
	assert.Empty(t, cfg.RequestLogger.FilePathTemplate)
	assert.Equal(t, 100, cfg.UsageQueue.BatchSize)

	key, err := cfg.Encryption.KeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("PROVIDER_RELOAD_INTERVAL", "30s")
	t.Setenv("USAGE_QUEUE_BATCH_SIZE", "not-a-number")
	t.Setenv("ENCRYPTION_PASSPHRASE", "correct horse")
	t.Setenv("GOOGLE_SYSTEM_POLICY", "instruction")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Provider.ReloadInterval)
	assert.Equal(t, 100, cfg.UsageQueue.BatchSize, "invalid values fall back to the default")
	assert.Empty(t, cfg.Encryption.Key)
	assert.Equal(t, "correct horse", cfg.Encryption.Passphrase)
	assert.False(t, cfg.Encryption.UsesDevKey())
	assert.Equal(t, "instruction", cfg.Provider.GoogleSystemPolicy)
}

func TestLoadEncryptionKeyFormats(t *testing.T) {
	tests := []struct {
		name string
		key  string
		hex  bool
	}{
		{"hex", strings.Repeat("ab", 32), true},
		{"base64 aes-256", base64.StdEncoding.EncodeToString(make([]byte, 32)), false},
		{"base64 aes-128", base64.StdEncoding.EncodeToString(make([]byte, 16)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ENCRYPTION_KEY", tt.key)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.key, cfg.Encryption.Key)
			assert.Equal(t, tt.hex, cfg.Encryption.IsHexKey())
			assert.False(t, cfg.Encryption.UsesDevKey())
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"postgres without url", map[string]string{"DATABASE_DRIVER": "postgres"}},
		{"short key", map[string]string{"ENCRYPTION_KEY": "abcd"}},
		{"not base64", map[string]string{"ENCRYPTION_KEY": "not a key!"}},
		{"non-hex key", map[string]string{"ENCRYPTION_KEY": "zz23456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"}},
		{"bad google policy", map[string]string{"GOOGLE_SYSTEM_POLICY": "merge"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://tutor@localhost/tutor?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://tutor@localhost/tutor?sslmode=disable", cfg.Database.URL)
}

const seedYAML = `
providers:
  - type: openai
    api_key: ${TUTOR_TEST_OPENAI_KEY}
    models:
      - name: gpt-4o
        temperature: 0.4
        enabled: true
  - id: local-llm
    type: custom
    name: Local
    protocol: openai-compatible
    base_url: http://localhost:11434/v1
    chat_path: /chat/completions
    auth_scheme: custom-header
    custom_header_name: X-Local-Key
    enabled: false
    models:
      - name: nomic-embed-text
        kind: embedding
`

func TestLoadProviderSeeds(t *testing.T) {
	t.Setenv("TUTOR_TEST_OPENAI_KEY", "sk-seeded")
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seeds, err := LoadProviderSeeds(path)
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	openai := seeds[0].Provider()
	assert.Equal(t, "provider-openai", openai.ID)
	assert.Equal(t, "sk-seeded", openai.APIKey)
	assert.Equal(t, models.ProtocolOpenAICompatible, openai.Protocol)
	assert.Equal(t, models.AuthSchemeBearer, openai.AuthScheme)
	assert.True(t, openai.Enabled)

	ms := seeds[0].ManagedModels(openai.ID)
	require.Len(t, ms, 1)
	assert.Equal(t, models.ModelKindChat, ms[0].Kind)
	assert.Equal(t, openai.ID, ms[0].ProviderID)

	local := seeds[1].Provider()
	assert.Equal(t, "local-llm", local.ID)
	assert.Equal(t, "Local", local.Name)
	assert.False(t, local.Enabled)
	assert.Equal(t, "X-Local-Key", local.CustomHeaderName)
	assert.Equal(t, models.ModelKindEmbedding, seeds[1].ManagedModels(local.ID)[0].Kind)
}

func TestParseProviderSeedsErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing type", "providers:\n  - name: x\n"},
		{"unknown type", "providers:\n  - type: mistral\n"},
		{"unknown field", "providers:\n  - type: openai\n    region: eu\n"},
		{"relative base url", "providers:\n  - type: custom\n    base_url: /v1\n"},
		{"bad auth scheme", "providers:\n  - type: openai\n    auth_scheme: basic\n"},
		{"bad protocol", "providers:\n  - type: openai\n    protocol: grpc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProviderSeeds([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}

	_, err := LoadProviderSeeds(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
