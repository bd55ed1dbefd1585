package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor_gateway/internal/models"
)

func TestManagedModelRepository_SeedAndList(t *testing.T) {
	db := newTestDB(t)
	providers := NewProviderRepository(db, newTestEncryption(t))
	repo := NewManagedModelRepository(db)
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeAnthropic, "k")
	require.NoError(t, providers.Create(ctx, p))

	seeded, err := repo.SeedTemplates(ctx, p)
	require.NoError(t, err)
	require.Len(t, seeded, 2)

	list, err := repo.ListByProvider(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	names := []string{list[0].Name, list[1].Name}
	assert.ElementsMatch(t, []string{"claude-sonnet-4-20250514", "text-embedding-3-small"}, names)
	for _, m := range list {
		assert.False(t, m.Enabled)
	}
}

func TestManagedModelRepository_FirstEnabledChat(t *testing.T) {
	db := newTestDB(t)
	providers := NewProviderRepository(db, newTestEncryption(t))
	repo := NewManagedModelRepository(db)
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeOpenAI, "k")
	require.NoError(t, providers.Create(ctx, p))
	seeded, err := repo.SeedTemplates(ctx, p)
	require.NoError(t, err)

	_, err = repo.FirstEnabledChat(ctx, p.ID)
	assert.ErrorIs(t, err, ErrManagedModelNotFound)

	for _, m := range seeded {
		m.Enabled = true
		require.NoError(t, repo.Update(ctx, m))
	}

	m, err := repo.FirstEnabledChat(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", m.Name)
	assert.Equal(t, models.ModelKindChat, m.Kind)
}

func TestManagedModelRepository_CRUD(t *testing.T) {
	db := newTestDB(t)
	providers := NewProviderRepository(db, newTestEncryption(t))
	repo := NewManagedModelRepository(db)
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeCustom, "k")
	require.NoError(t, providers.Create(ctx, p))

	m := &models.ManagedModel{ProviderID: p.ID, Name: "local-llama", Kind: models.ModelKindChat, Temperature: 0.7}
	require.NoError(t, repo.Create(ctx, m))
	assert.NotEmpty(t, m.ID)

	m.Description = "runs on the laptop"
	m.Enabled = true
	require.NoError(t, repo.Update(ctx, m))

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "runs on the laptop", got.Description)
	assert.True(t, got.Enabled)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)

	require.NoError(t, repo.Delete(ctx, m.ID))
	_, err = repo.GetByID(ctx, m.ID)
	assert.ErrorIs(t, err, ErrManagedModelNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, m.ID), ErrManagedModelNotFound)
}

func TestManagedModelRepository_ReplaceForProvider(t *testing.T) {
	db := newTestDB(t)
	providers := NewProviderRepository(db, newTestEncryption(t))
	repo := NewManagedModelRepository(db)
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeYi, "k")
	require.NoError(t, providers.Create(ctx, p))
	_, err := repo.SeedTemplates(ctx, p)
	require.NoError(t, err)

	replacement := []*models.ManagedModel{
		{Name: "yi-large", Kind: models.ModelKindChat, Enabled: true},
	}
	require.NoError(t, repo.ReplaceForProvider(ctx, p.ID, replacement))

	list, err := repo.ListByProvider(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "yi-large", list[0].Name)
	assert.Equal(t, p.ID, list[0].ProviderID)
}
