package httpapi

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor_gateway/internal/auth"
	"tutor_gateway/internal/models"
	"tutor_gateway/internal/providers"
	"tutor_gateway/internal/utils"
)

func TestAdminProviders_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.token(auth.RoleViewer)

	tests := []struct {
		method, path, token string
		want                int
	}{
		{http.MethodGet, "/admin/providers", "", http.StatusUnauthorized},
		{http.MethodGet, "/admin/providers", "garbage", http.StatusUnauthorized},
		{http.MethodGet, "/admin/providers", viewer, http.StatusOK},
		{http.MethodPost, "/admin/providers", viewer, http.StatusForbidden},
		{http.MethodDelete, "/admin/providers/" + testProviderID, viewer, http.StatusForbidden},
		{http.MethodPut, "/admin/providers/" + testProviderID + "/models", viewer, http.StatusForbidden},
		{http.MethodPost, "/admin/providers/" + testProviderID + "/test", viewer, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := env.do(tt.method, tt.path, nil, tt.token)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAdminProviders_ListHidesKeys(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/admin/providers", nil, env.token(auth.RoleViewer))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk-test")

	page := decode[ProviderListResponse](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, testProviderID, page.Items[0].ID)
	assert.True(t, page.Items[0].HasAPIKey)
	assert.Equal(t, utils.Fingerprint("sk-test"), page.Items[0].KeyFingerprint)
}

func TestAdminProviders_ListFilters(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(auth.RoleAdmin)

	for _, body := range []map[string]any{
		{"type": "anthropic", "name": "Claude Work", "apiKey": "a"},
		{"type": "deepseek", "name": "DeepSeek", "apiKey": "d", "enabled": false},
		{"type": "openai", "name": "OpenAI Backup", "baseUrl": "https://backup.example/v1", "apiKey": "o"},
	} {
		rec := env.do(http.MethodPost, "/admin/providers", body, admin)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	tests := []struct {
		query string
		names []string
		total int
	}{
		{"", []string{"Claude Work", "DeepSeek", "OpenAI Backup", "Test OpenAI"}, 4},
		{"?type=openai", []string{"OpenAI Backup", "Test OpenAI"}, 2},
		{"?search=BACKUP.example", []string{"OpenAI Backup"}, 1},
		{"?enabled=false", []string{"DeepSeek"}, 1},
		{"?enabled=true&type=anthropic", []string{"Claude Work"}, 1},
		{"?page_size=2", []string{"Claude Work", "DeepSeek"}, 4},
		{"?page_size=2&page=2", []string{"OpenAI Backup", "Test OpenAI"}, 4},
		{"?page_size=500", []string{"Claude Work", "DeepSeek", "OpenAI Backup", "Test OpenAI"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/admin/providers"+tt.query, nil, admin)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			page := decode[ProviderListResponse](t, rec)
			names := make([]string, 0, len(page.Items))
			for _, p := range page.Items {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.names, names)
			assert.Equal(t, tt.total, page.TotalCount)
		})
	}

	for _, q := range []string{"?type=mistral", "?enabled=maybe"} {
		rec := env.do(http.MethodGet, "/admin/providers"+q, nil, admin)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestAdminProviders_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(auth.RoleAdmin)

	// Create with defaults for the type
	rec := env.do(http.MethodPost, "/admin/providers", map[string]any{
		"type":   "deepseek",
		"apiKey": "sk-deep",
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ProviderResponse](t, rec)
	assert.Equal(t, "DeepSeek", created.Name)
	assert.Equal(t, models.ProtocolOpenAICompatible, created.Protocol)
	assert.Equal(t, "https://api.deepseek.com/v1", created.BaseURL)
	assert.True(t, created.HasAPIKey)
	assert.Empty(t, created.APIKey)

	// The registry sees it right away
	p, err := env.deps.Registry.GetProvider(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-deep", p.APIKey)

	// Detail includes the seeded templates
	rec = env.do(http.MethodGet, "/admin/providers/"+created.ID, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[ProviderDetailResponse](t, rec)
	assert.Len(t, detail.Models, len(models.ModelTemplates(created.ID, models.ProviderTypeDeepSeek)))

	// Update keeps the key when none is sent
	rec = env.do(http.MethodPut, "/admin/providers/"+created.ID, map[string]any{
		"name":    "DeepSeek (school)",
		"enabled": false,
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[ProviderResponse](t, rec)
	assert.Equal(t, "DeepSeek (school)", updated.Name)
	assert.False(t, updated.Enabled)
	assert.True(t, updated.HasAPIKey)

	stored, err := env.deps.Providers.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-deep", stored.APIKey)

	// Disabled providers drop out of the registry
	_, err = env.deps.Registry.GetProvider(context.Background(), created.ID)
	assert.ErrorIs(t, err, providers.ErrUnknownProvider)

	// Delete
	rec = env.do(http.MethodDelete, "/admin/providers/"+created.ID, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodGet, "/admin/providers/"+created.ID, nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(http.MethodDelete, "/admin/providers/"+created.ID, nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminProviders_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(auth.RoleAdmin)

	tests := []struct {
		name string
		body any
	}{
		{"invalid json", "{"},
		{"unknown type", map[string]any{"type": "mistral"}},
		{"bad protocol", map[string]any{"type": "custom", "protocol": "grpc"}},
		{"bad base url", map[string]any{"type": "custom", "baseUrl": "ftp://example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/admin/providers", tt.body, admin)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := env.do(http.MethodPut, "/admin/providers/provider-missing", map[string]any{"name": "x"}, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminProviders_Models(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(auth.RoleAdmin)
	path := "/admin/providers/" + testProviderID + "/models"

	rec := env.do(http.MethodGet, path, nil, env.token(auth.RoleViewer))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]*models.ManagedModel](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "gpt-test", list[0].Name)

	rec = env.do(http.MethodPut, path, []map[string]any{
		{"name": "gpt-4o", "enabled": true, "temperature": 0.3},
		{"name": "text-embedding-3-small", "kind": "embedding", "enabled": true},
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := env.deps.Models.ListByProvider(context.Background(), testProviderID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// The new first chat model becomes the default for chat calls
	first, err := env.deps.Models.FirstEnabledChat(context.Background(), testProviderID)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", first.Name)

	bad := []struct {
		name string
		body any
	}{
		{"bad kind", []map[string]any{{"name": "x", "kind": "audio"}}},
		{"bad temperature", []map[string]any{{"name": "x", "temperature": 3}}},
		{"duplicate", []map[string]any{{"name": "x"}, {"name": "x"}}},
		{"not a list", map[string]any{"name": "x"}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPut, path, tt.body, admin)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec = env.do(http.MethodGet, "/admin/providers/provider-missing/models", nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminProviders_TestConnection(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(auth.RoleAdmin)
	path := "/admin/providers/" + testProviderID + "/test"

	rec := env.do(http.MethodPost, path, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[providers.ConnectionResult](t, rec)
	assert.Equal(t, models.ProviderStatusConnected, result.Status)

	stored, err := env.deps.Providers.GetByID(context.Background(), testProviderID)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderStatusConnected, stored.Status)
	require.NotNil(t, stored.LatencyMs)

	env.reply = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}
	rec = env.do(http.MethodPost, path, `{"model":"gpt-4o"}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	result = decode[providers.ConnectionResult](t, rec)
	assert.Equal(t, models.ProviderStatusFailed, result.Status)
	assert.True(t, strings.Contains(result.Error, "401"))

	stored, err = env.deps.Providers.GetByID(context.Background(), testProviderID)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderStatusFailed, stored.Status)

	// Connection tests never reach the usage pipeline
	assert.Empty(t, env.usage.all())
}
