package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"tutor_gateway/internal/auth"
	"tutor_gateway/internal/config"
	"tutor_gateway/internal/logging"
	"tutor_gateway/internal/middleware"
	"tutor_gateway/internal/models"
	"tutor_gateway/internal/providers"
	"tutor_gateway/internal/queue"
	"tutor_gateway/internal/storage"
	"tutor_gateway/internal/utils"
)

// UsageRecorder accepts usage records for asynchronous persistence.
type UsageRecorder interface {
	Enqueue(ctx context.Context, record *models.UsageRecord) error
}

// RecentLogSource returns the most recent chat log records, newest first.
type RecentLogSource interface {
	Recent(ctx context.Context, n int64) ([]*logging.ChatLogRecord, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Providers  *storage.ProviderRepository
	Models     *storage.ManagedModelRepository
	Usage      *storage.UsageRepository
	Registry   *providers.Registry
	Dispatcher *providers.Dispatcher

	UsageRecorder UsageRecorder
	ChatLog       logging.Sink
	RecentLogs    RecentLogSource // nil without Redis
	HealthChecks  map[string]HealthCheck

	// RequestTimeout bounds non-streaming chat calls
	RequestTimeout time.Duration

	logger  *utils.Logger
	closers []func(context.Context) error
}

// NewRouter connects every backing service from cfg, starts the background
// workers and returns the HTTP handler.
func NewRouter(ctx context.Context, cfg *config.Config) (http.Handler, *Dependencies, error) {
	deps := &Dependencies{
		RequestTimeout: cfg.Provider.RequestTimeout,
		HealthChecks:   make(map[string]HealthCheck),
		logger:         utils.NewLogger("httpapi"),
	}
	fail := func(err error) (http.Handler, *Dependencies, error) {
		_ = deps.Shutdown(context.Background())
		return nil, nil, err
	}

	db, err := storage.NewDB(ctx, storage.DBConfig{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize database: %w", err))
	}
	deps.closers = append(deps.closers, func(context.Context) error { return db.Close() })
	deps.HealthChecks["database"] = db.Health

	encryption, err := NewEncryption(cfg.Encryption)
	if err != nil {
		return fail(err)
	}
	if cfg.Encryption.UsesDevKey() {
		deps.logger.Warn("ENCRYPTION_KEY not set, using the development key")
	}

	var redisClient *storage.RedisClient
	if cfg.Redis.Enabled() {
		redisClient, err = storage.NewRedisClient(ctx, redisConfig(cfg.Redis))
		if err != nil {
			return fail(fmt.Errorf("failed to initialize Redis: %w", err))
		}
		deps.HealthChecks["redis"] = redisClient.Health
	}

	deps.Providers = storage.NewProviderRepository(db, encryption)
	deps.Models = storage.NewManagedModelRepository(db)
	deps.Usage = storage.NewUsageRepository(db)

	if cfg.Provider.SeedFile != "" {
		if err := applySeedFile(ctx, cfg.Provider.SeedFile, deps.Providers, deps.Models); err != nil {
			return fail(err)
		}
	}
	if err := updateProviderCredentialsFromEnv(ctx, deps.Providers); err != nil {
		return fail(fmt.Errorf("failed to update provider credentials: %w", err))
	}

	registryCfg := providers.RegistryConfig{
		Source:         deps.Providers,
		ReloadInterval: cfg.Provider.ReloadInterval,
		CacheSize:      cfg.Provider.CacheSize,
	}
	if redisClient != nil {
		registryCfg.Mirror = storage.NewProviderMirror(redisClient, encryption, cfg.Provider.MirrorTTL)
	}
	deps.Registry, err = providers.NewRegistry(ctx, registryCfg)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize provider registry: %w", err))
	}
	deps.Registry.Start(context.Background())
	deps.closers = append(deps.closers, func(context.Context) error { return deps.Registry.Close() })

	deps.Dispatcher = providers.NewDispatcher(
		providers.WithHTTPClient(providers.NewStreamingHTTPClient()),
		providers.WithAdapter(providers.Adapter{
			GoogleSystemPolicy: providers.ParseGoogleSystemPolicy(cfg.Provider.GoogleSystemPolicy),
		}),
	)

	// Usage queue: Redis-backed when Redis is configured
	var rc *redis.Client
	if redisClient != nil {
		rc = redisClient.Client()
	}
	usageQueueCfg := queue.DefaultConfig("usage")
	usageQueueCfg.BatchSize = cfg.UsageQueue.BatchSize
	usageQueueCfg.BatchTimeout = cfg.UsageQueue.BatchTimeout
	usageQueueCfg.MaxRetries = cfg.UsageQueue.MaxRetries
	usageQueueCfg.RetryBackoff = cfg.UsageQueue.RetryBackoff
	usageQueue, usageDLQ := queue.New(rc, usageQueueCfg)

	usageWorker := storage.NewUsageQueueWorker(usageQueue, usageDLQ, db, usageQueueCfg)
	usageWorker.Start(context.Background())
	deps.UsageRecorder = usageWorker
	deps.closers = append(deps.closers, func(context.Context) error {
		err := usageWorker.Stop()
		return errors.Join(err, usageQueue.Close())
	})

	// Chat log sinks
	var sinks logging.MultiSink
	if cfg.RequestLogger.FilePathTemplate != "" {
		requestLogger, err := logging.NewRequestLogger(logging.RequestLoggerConfig{
			FileTemplate:  cfg.RequestLogger.FilePathTemplate,
			MaxSize:       cfg.RequestLogger.MaxSize,
			MaxFiles:      cfg.RequestLogger.MaxFiles,
			BufferSize:    cfg.RequestLogger.BufferSize,
			FlushInterval: cfg.RequestLogger.FlushInterval,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to initialize request logger: %w", err))
		}
		sinks = append(sinks, requestLogger)
	}
	if rc != nil {
		buffer := logging.NewRedisBufferSink(rc, cfg.Redis.ChatLogSize)
		sinks = append(sinks, buffer)
		deps.RecentLogs = buffer
	}
	if len(sinks) == 0 {
		deps.ChatLog = logging.NewNoopSink()
	} else {
		deps.ChatLog = sinks
	}
	deps.closers = append(deps.closers, deps.ChatLog.Shutdown)

	// Redis closes after every user of it
	if redisClient != nil {
		deps.closers = append(deps.closers, func(context.Context) error { return redisClient.Close() })
	}

	return NewHandler(deps, cfg), deps, nil
}

// NewEncryption builds the API key cipher from a hex or base64 key, or from
// a passphrase.
func NewEncryption(cfg config.EncryptionConfig) (*storage.Encryption, error) {
	var (
		enc *storage.Encryption
		err error
	)
	switch {
	case cfg.Key == "":
		enc, err = storage.NewEncryptionFromPassphrase(cfg.Passphrase, cfg.Salt)
	case cfg.IsHexKey():
		var key []byte
		if key, err = cfg.KeyBytes(); err == nil {
			enc, err = storage.NewEncryption(key)
		}
	default:
		enc, err = storage.NewEncryptionFromBase64(cfg.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	return enc, nil
}

// redisConfig overlays the configured Redis settings on the storage defaults.
func redisConfig(cfg config.RedisConfig) storage.RedisConfig {
	rc := storage.DefaultRedisConfig()
	rc.Address = cfg.Address
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	if cfg.PoolSize > 0 {
		rc.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		rc.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		rc.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		rc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		rc.WriteTimeout = cfg.WriteTimeout
	}
	return rc
}

// Shutdown stops workers and closes connections in reverse order of creation.
func (d *Dependencies) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func applySeedFile(ctx context.Context, path string, repo *storage.ProviderRepository, modelRepo *storage.ManagedModelRepository) error {
	seeds, err := config.LoadProviderSeeds(path)
	if err != nil {
		return err
	}
	logger := utils.NewLogger("seed")
	for _, seed := range seeds {
		p := seed.Provider()
		created, err := storage.SeedProvider(ctx, repo, modelRepo, p, seed.ManagedModels(p.ID))
		if err != nil {
			return fmt.Errorf("failed to seed provider %s: %w", p.ID, err)
		}
		logger.Info("Provider seeded", "provider", p.ID, "created", created)
	}
	return nil
}

// providerKeyEnv maps environment variables to the vendor type whose
// providers receive the key when they have none stored.
var providerKeyEnv = map[string]models.ProviderType{
	"OPENAI_API_KEY":    models.ProviderTypeOpenAI,
	"ANTHROPIC_API_KEY": models.ProviderTypeAnthropic,
	"GOOGLE_API_KEY":    models.ProviderTypeGoogle,
	"DEEPSEEK_API_KEY":  models.ProviderTypeDeepSeek,
	"YI_API_KEY":        models.ProviderTypeYi,
}

// updateProviderCredentialsFromEnv fills in missing provider keys from the environment
func updateProviderCredentialsFromEnv(ctx context.Context, repo *storage.ProviderRepository) error {
	byType := make(map[models.ProviderType]string)
	for envVar, t := range providerKeyEnv {
		if key := os.Getenv(envVar); key != "" {
			byType[t] = key
		}
	}
	if len(byType) == 0 {
		return nil
	}

	list, err := repo.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range list {
		key, ok := byType[p.Type]
		if !ok || p.APIKey != "" {
			continue
		}
		p.APIKey = key
		if err := repo.Update(ctx, p); err != nil {
			return fmt.Errorf("failed to update provider %s: %w", p.ID, err)
		}
	}
	return nil
}

// NewHandler registers all routes on a fresh mux.
func NewHandler(deps *Dependencies, cfg *config.Config) http.Handler {
	if deps.logger == nil {
		deps.logger = utils.NewLogger("httpapi")
	}
	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)
	return middleware.RequestID(mux)
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config) {
	mux.HandleFunc("POST /v1/chat", deps.handleChat)
	mux.HandleFunc("POST /v1/chat/stream", deps.handleChatStream)

	// Health check endpoint - public
	mux.HandleFunc("GET /health", deps.handleHealth)

	viewer := middleware.AdminJWTMiddleware(cfg, auth.RoleViewer)
	admin := middleware.AdminJWTMiddleware(cfg, auth.RoleAdmin)

	h := NewAdminProvidersHandler(deps)
	mux.Handle("GET /admin/providers", viewer(http.HandlerFunc(h.List)))
	mux.Handle("POST /admin/providers", admin(http.HandlerFunc(h.Create)))
	mux.Handle("GET /admin/providers/{id}", viewer(http.HandlerFunc(h.GetByID)))
	mux.Handle("PUT /admin/providers/{id}", admin(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /admin/providers/{id}", admin(http.HandlerFunc(h.Delete)))
	mux.Handle("POST /admin/providers/{id}/test", admin(http.HandlerFunc(h.Test)))
	mux.Handle("GET /admin/providers/{id}/models", viewer(http.HandlerFunc(h.ListModels)))
	mux.Handle("PUT /admin/providers/{id}/models", admin(http.HandlerFunc(h.ReplaceModels)))

	mux.Handle("GET /admin/usage", viewer(http.HandlerFunc(deps.handleUsageSummary)))
	mux.Handle("GET /admin/logs/recent", viewer(http.HandlerFunc(deps.handleRecentLogs)))
	mux.Handle("POST /admin/registry/reload", admin(http.HandlerFunc(deps.handleRegistryReload)))
}
