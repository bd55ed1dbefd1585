package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tutor_gateway/internal/auth"
	"tutor_gateway/internal/config"
	"tutor_gateway/internal/logging"
	"tutor_gateway/internal/models"
	"tutor_gateway/internal/providers"
	"tutor_gateway/internal/storage"
)

const testProviderID = "provider-test"

type recordingUsage struct {
	mu      sync.Mutex
	records []*models.UsageRecord
}

func (u *recordingUsage) Enqueue(ctx context.Context, record *models.UsageRecord) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records = append(u.records, record)
	return nil
}

func (u *recordingUsage) all() []*models.UsageRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*models.UsageRecord(nil), u.records...)
}

type recordingSink struct {
	mu      sync.Mutex
	records []*logging.ChatLogRecord
}

func (s *recordingSink) Enqueue(rec *logging.ChatLogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Shutdown(ctx context.Context) error {
	return nil
}

func (s *recordingSink) all() []*logging.ChatLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*logging.ChatLogRecord(nil), s.records...)
}

// testEnv is a gateway wired to an in-memory database and a fake vendor.
type testEnv struct {
	t       *testing.T
	cfg     *config.Config
	deps    *Dependencies
	handler http.Handler
	vendor  *httptest.Server
	reply   http.HandlerFunc
	usage   *recordingUsage
	logs    *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		t:     t,
		cfg:   &config.Config{JWTSecret: []byte("httpapi-test-secret")},
		usage: &recordingUsage{},
		logs:  &recordingSink{},
	}
	env.vendor = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.reply(w, r)
	}))
	t.Cleanup(env.vendor.Close)
	env.reply = openAIReply("Hello there", 7, 3)

	dbCfg := storage.DefaultDBConfig()
	dbCfg.URL = fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := storage.NewDB(ctx, dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	key, err := storage.GenerateKey(32)
	require.NoError(t, err)
	enc, err := storage.NewEncryptionFromBase64(key)
	require.NoError(t, err)

	repo := storage.NewProviderRepository(db, enc)
	modelRepo := storage.NewManagedModelRepository(db)

	p := models.NewProvider(models.ProviderTypeOpenAI, "sk-test")
	p.ID = testProviderID
	p.Name = "Test OpenAI"
	p.BaseURL = env.vendor.URL + "/v1"
	_, err = storage.SeedProvider(ctx, repo, modelRepo, p, []*models.ManagedModel{
		{Name: "gpt-test", Kind: models.ModelKindChat, Temperature: 0.4, Enabled: true},
	})
	require.NoError(t, err)

	registry, err := providers.NewRegistry(ctx, providers.RegistryConfig{Source: repo})
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	env.deps = &Dependencies{
		Providers:      repo,
		Models:         modelRepo,
		Usage:          storage.NewUsageRepository(db),
		Registry:       registry,
		Dispatcher:     providers.NewDispatcher(providers.WithHTTPClient(env.vendor.Client())),
		UsageRecorder:  env.usage,
		ChatLog:        env.logs,
		HealthChecks:   map[string]HealthCheck{"database": db.Health},
		RequestTimeout: 5 * time.Second,
	}
	env.handler = NewHandler(env.deps, env.cfg)
	return env
}

func (e *testEnv) token(roles ...auth.Role) string {
	e.t.Helper()
	token, _, err := auth.GenerateAdminJWT("tester", roles, time.Hour, e.cfg)
	require.NoError(e.t, err)
	return token
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(e.t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func openAIReply(content string, prompt, completion int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
			"usage":   map[string]any{"prompt_tokens": prompt, "completion_tokens": completion},
		})
	}
}
