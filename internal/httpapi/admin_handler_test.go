package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor_gateway/internal/auth"
	"tutor_gateway/internal/logging"
	"tutor_gateway/internal/models"
	"tutor_gateway/internal/providers"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.Equal(t, providers.LoadedFromDatabase, resp.ProvidersFrom)
	assert.Equal(t, 1, resp.Providers)

	env.deps.HealthChecks["redis"] = func(ctx context.Context) error { return errors.New("connection refused") }
	rec = env.do(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp = decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"])
}

func TestUsageSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i, status := range []int{200, 200, 502} {
		require.NoError(t, env.deps.Usage.Create(ctx, &models.UsageRecord{
			ID:               uuid.New(),
			RequestID:        uuid.New(),
			ProviderID:       testProviderID,
			ModelName:        "gpt-test",
			PromptTokens:     10 + i,
			CompletionTokens: 5,
			StatusCode:       status,
			CreatedAt:        time.Now().UTC(),
		}))
	}

	viewer := env.token(auth.RoleViewer)
	rec := env.do(http.MethodGet, "/admin/usage?since=1h", nil, viewer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summaries := decode[[]models.UsageSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].Requests)
	assert.Equal(t, 1, summaries[0].Failures)
	assert.Equal(t, 33, summaries[0].PromptTokens)

	rec = env.do(http.MethodGet, "/admin/usage?since=yesterday", nil, viewer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentLogs(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.token(auth.RoleViewer)

	rec := env.do(http.MethodGet, "/admin/logs/recent", nil, viewer)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	buffer := logging.NewRedisBufferSink(client, 100)
	env.deps.ChatLog = logging.MultiSink{env.logs, buffer}
	env.deps.RecentLogs = buffer

	for i := 0; i < 3; i++ {
		rec := env.do(http.MethodPost, "/v1/chat", userChat(nil), "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = env.do(http.MethodGet, "/admin/logs/recent?n=2", nil, viewer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	records := decode[[]*logging.ChatLogRecord](t, rec)
	require.Len(t, records, 2)
	assert.Equal(t, testProviderID, records[0].ProviderID)
	assert.NotContains(t, rec.Body.String(), "sk-test")

	rec = env.do(http.MethodGet, "/admin/logs/recent?n=-1", nil, viewer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistryReload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/admin/registry/reload", nil, env.token(auth.RoleViewer))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/admin/registry/reload", nil, env.token(auth.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, body["providers"])
	assert.Equal(t, providers.LoadedFromDatabase, body["loadedFrom"])
}
