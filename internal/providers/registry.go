package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tutor_gateway/internal/models"
	"tutor_gateway/internal/storage"
	"tutor_gateway/internal/utils"
)

// ErrUnknownProvider is returned for ids that are not loaded or not enabled.
var ErrUnknownProvider = errors.New("unknown or disabled provider")

// ProviderSource lists the providers that may serve chat calls.
type ProviderSource interface {
	ListEnabled(ctx context.Context) ([]*models.Provider, error)
}

// ProviderSnapshotStore keeps a copy of the last good provider list.
type ProviderSnapshotStore interface {
	Save(ctx context.Context, providers []*models.Provider) error
	Load(ctx context.Context) (*storage.ProviderSnapshot, error)
}

// RegistryConfig configures a Registry. Mirror is optional.
type RegistryConfig struct {
	Source         ProviderSource
	Mirror         ProviderSnapshotStore
	ReloadInterval time.Duration
	CacheSize      int
	// MissReloadGap is the minimum time between reloads triggered by lookup
	// misses. Defaults to a tenth of ReloadInterval.
	MissReloadGap time.Duration
}

// Registry source names reported by LoadedFrom.
const (
	LoadedFromDatabase = "database"
	LoadedFromMirror   = "mirror"
)

// Registry holds the enabled providers in memory, refreshing them from the
// source on an interval and falling back to the mirror snapshot when the
// source is unavailable.
type Registry struct {
	source ProviderSource
	mirror ProviderSnapshotStore
	cache  *storage.LRUCache[*models.Provider]
	logger *utils.Logger

	reloadInterval time.Duration
	missReloadGap  time.Duration

	mu             sync.Mutex
	loadedFrom     string
	loadedAt       time.Time
	lastMissReload time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry and performs the first load.
func NewRegistry(ctx context.Context, cfg RegistryConfig) (*Registry, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("provider source is required")
	}
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.MissReloadGap <= 0 {
		cfg.MissReloadGap = cfg.ReloadInterval / 10
	}

	r := &Registry{
		source: cfg.Source,
		mirror: cfg.Mirror,
		// Entries outlive a few missed reloads before they expire.
		cache:          storage.NewLRUCache[*models.Provider](cfg.CacheSize, 3*cfg.ReloadInterval),
		logger:         utils.NewLogger("registry"),
		reloadInterval: cfg.ReloadInterval,
		missReloadGap:  cfg.MissReloadGap,
		stopChan:       make(chan struct{}),
	}

	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the cached providers with a fresh read from the source.
// When the source fails the mirror snapshot is used instead; the error is
// returned only when neither yields a list.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.source.ListEnabled(ctx)
	if err == nil {
		r.replace(list, LoadedFromDatabase)
		if r.mirror != nil {
			if err := r.mirror.Save(ctx, list); err != nil {
				r.logger.Warn("Failed to save provider snapshot", "error", err)
			}
		}
		return nil
	}

	r.logger.Error("Failed to load providers", "error", err)
	if r.mirror == nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}

	snapshot, mirrorErr := r.mirror.Load(ctx)
	if mirrorErr != nil {
		return fmt.Errorf("failed to load providers: %w (snapshot: %w)", err, mirrorErr)
	}

	enabled := make([]*models.Provider, 0, len(snapshot.Providers))
	for _, p := range snapshot.Providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	r.replace(enabled, LoadedFromMirror)
	r.logger.Warn("Serving providers from snapshot", "saved_at", snapshot.SavedAt, "count", len(enabled))
	return nil
}

func (r *Registry) replace(list []*models.Provider, from string) {
	r.cache.Clear()
	for _, p := range list {
		normalized := p.Normalize()
		r.cache.Set(normalized.ID, &normalized)
		r.logger.Debug("Provider loaded",
			"provider", normalized.ID,
			"type", normalized.Type,
			"protocol", normalized.Protocol,
			"key", utils.Fingerprint(normalized.APIKey))
	}
	r.loadedFrom = from
	r.loadedAt = time.Now().UTC()
}

// GetProvider returns a copy of the provider with id. A miss triggers a
// reload before ErrUnknownProvider is returned, at most once per
// MissReloadGap unless Invalidate was called since.
func (r *Registry) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	if p, ok := r.cache.Get(id); ok {
		cp := *p
		return &cp, nil
	}

	if !r.claimMissReload() {
		return nil, ErrUnknownProvider
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	if p, ok := r.cache.Get(id); ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrUnknownProvider
}

// ListProviders returns copies of the loaded providers ordered by name.
func (r *Registry) ListProviders() []*models.Provider {
	values := r.cache.Values()
	out := make([]*models.Provider, 0, len(values))
	for _, p := range values {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) claimMissReload() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastMissReload.IsZero() && time.Since(r.lastMissReload) < r.missReloadGap {
		return false
	}
	r.lastMissReload = time.Now()
	return true
}

// Invalidate drops one provider so the next lookup reloads it.
func (r *Registry) Invalidate(id string) {
	r.cache.Delete(id)
	r.mu.Lock()
	r.lastMissReload = time.Time{}
	r.mu.Unlock()
}

// LoadedFrom reports where the current list came from and when.
func (r *Registry) LoadedFrom() (string, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadedFrom, r.loadedAt
}

// Start reloads the registry every ReloadInterval until ctx ends or Close is called.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.reloadInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := r.Reload(ctx); err != nil {
					r.logger.Error("Provider reload failed", "error", err)
				}
			case <-r.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the reload loop started by Start.
func (r *Registry) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	return nil
}
