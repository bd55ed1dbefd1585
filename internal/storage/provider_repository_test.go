package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor_gateway/internal/models"
)

func TestProviderRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewProviderRepository(db, newTestEncryption(t))
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeAnthropic, "sk-ant-secret")
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, models.ProtocolAnthropicMessages, got.Protocol)
	assert.Equal(t, models.AuthSchemeXAPIKey, got.AuthScheme)
	assert.Equal(t, "sk-ant-secret", got.APIKey)
	assert.Equal(t, models.ProviderStatusUntested, got.Status)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LatencyMs)

	byName, err := repo.GetByName(ctx, "Anthropic")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)
}

func TestProviderRepository_KeyEncryptedAtRest(t *testing.T) {
	db := newTestDB(t)
	repo := NewProviderRepository(db, newTestEncryption(t))
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeOpenAI, "sk-plain")
	require.NoError(t, repo.Create(ctx, p))

	var stored string
	require.NoError(t, db.Conn().GetContext(ctx, &stored,
		db.rebind("SELECT encrypted_api_key FROM providers WHERE id = ?"), p.ID))
	assert.NotEmpty(t, stored)
	assert.NotContains(t, stored, "sk-plain")

	// A different key cannot read it back
	other := NewProviderRepository(db, newTestEncryption(t))
	_, err := other.GetByID(ctx, p.ID)
	assert.Error(t, err)
}

func TestProviderRepository_NotFound(t *testing.T) {
	repo := NewProviderRepository(newTestDB(t), newTestEncryption(t))
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrProviderNotFound)

	err = repo.Update(ctx, &models.Provider{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, ErrProviderNotFound)

	err = repo.UpdateStatus(ctx, "missing", models.ProviderStatusFailed, nil)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "missing"), ErrProviderNotFound)
}

func TestProviderRepository_UpdateKeepsKeyWhenEmpty(t *testing.T) {
	repo := NewProviderRepository(newTestDB(t), newTestEncryption(t))
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeDeepSeek, "sk-original")
	require.NoError(t, repo.Create(ctx, p))

	p.APIKey = ""
	p.BaseURL = "https://proxy.example.com/v1"
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-original", got.APIKey)
	assert.Equal(t, "https://proxy.example.com/v1", got.BaseURL)

	p.APIKey = "sk-rotated"
	require.NoError(t, repo.Update(ctx, p))
	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-rotated", got.APIKey)
}

func TestProviderRepository_UpdateStatus(t *testing.T) {
	repo := NewProviderRepository(newTestDB(t), newTestEncryption(t))
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeGoogle, "key")
	require.NoError(t, repo.Create(ctx, p))

	latency := int64(123)
	require.NoError(t, repo.UpdateStatus(ctx, p.ID, models.ProviderStatusConnected, &latency))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderStatusConnected, got.Status)
	require.NotNil(t, got.LatencyMs)
	assert.Equal(t, int64(123), *got.LatencyMs)
}

func TestProviderRepository_ListEnabledAndFilters(t *testing.T) {
	repo := NewProviderRepository(newTestDB(t), newTestEncryption(t))
	ctx := context.Background()

	for _, tt := range []models.ProviderType{models.ProviderTypeOpenAI, models.ProviderTypeYi, models.ProviderTypeGoogle} {
		require.NoError(t, repo.Create(ctx, models.NewProvider(tt, "k")))
	}
	disabled := models.NewProvider(models.ProviderTypeCustom, "k")
	disabled.Enabled = false
	require.NoError(t, repo.Create(ctx, disabled))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	enabled, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 3)
	for _, p := range enabled {
		assert.NotEqual(t, disabled.ID, p.ID)
	}

	res, err := repo.ListWithFilters(ctx, ProviderListFilters{Search: "GOOG"})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalCount)
	assert.Equal(t, models.ProviderTypeGoogle, res.Providers[0].Type)

	yes := true
	res, err = repo.ListWithFilters(ctx, ProviderListFilters{EnabledOnly: &yes, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalCount)
	assert.Len(t, res.Providers, 2)

	res, err = repo.ListWithFilters(ctx, ProviderListFilters{Type: models.ProviderTypeYi})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)
}

func TestProviderRepository_DeleteCascadesModels(t *testing.T) {
	db := newTestDB(t)
	repo := NewProviderRepository(db, newTestEncryption(t))
	modelRepo := NewManagedModelRepository(db)
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeOpenAI, "k")
	require.NoError(t, repo.Create(ctx, p))
	_, err := modelRepo.SeedTemplates(ctx, p)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, p.ID))

	list, err := modelRepo.ListByProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
