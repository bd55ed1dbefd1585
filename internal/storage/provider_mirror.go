package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tutor_gateway/internal/models"
)

const defaultMirrorKey = "tutor:providers:snapshot"

// ProviderSnapshot is the mirrored copy of the enabled provider set.
type ProviderSnapshot struct {
	Providers []*models.Provider `json:"providers"`
	SavedAt   time.Time          `json:"savedAt"`
}

// mirroredProvider keeps the encrypted key in the snapshot; the plaintext
// key is never written to Redis.
type mirroredProvider struct {
	models.Provider
	EncryptedAPIKey string `json:"encryptedApiKey,omitempty"`
}

// ProviderMirror stores a snapshot of the provider set in Redis so the
// registry can keep serving when the database is unavailable.
type ProviderMirror struct {
	client *redis.Client
	enc    *Encryption
	key    string
	ttl    time.Duration
}

// NewProviderMirror creates a mirror. A zero ttl keeps the snapshot forever.
func NewProviderMirror(rc *RedisClient, enc *Encryption, ttl time.Duration) *ProviderMirror {
	return &ProviderMirror{client: rc.Client(), enc: enc, key: defaultMirrorKey, ttl: ttl}
}

// Save replaces the stored snapshot.
func (m *ProviderMirror) Save(ctx context.Context, providers []*models.Provider) error {
	out := struct {
		Providers []mirroredProvider `json:"providers"`
		SavedAt   time.Time          `json:"savedAt"`
	}{SavedAt: time.Now().UTC()}

	for _, p := range providers {
		mp := mirroredProvider{Provider: *p}
		mp.APIKey = ""
		if p.APIKey != "" {
			encrypted, err := m.enc.Encrypt([]byte(p.APIKey))
			if err != nil {
				return fmt.Errorf("failed to encrypt api key: %w", err)
			}
			mp.EncryptedAPIKey = encrypted
		}
		out.Providers = append(out.Providers, mp)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal provider snapshot: %w", err)
	}
	if err := m.client.Set(ctx, m.key, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save provider snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot with keys decrypted.
func (m *ProviderMirror) Load(ctx context.Context) (*ProviderSnapshot, error) {
	data, err := m.client.Get(ctx, m.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load provider snapshot: %w", err)
	}

	var in struct {
		Providers []mirroredProvider `json:"providers"`
		SavedAt   time.Time          `json:"savedAt"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider snapshot: %w", err)
	}

	snapshot := &ProviderSnapshot{SavedAt: in.SavedAt}
	for _, mp := range in.Providers {
		p := mp.Provider
		if mp.EncryptedAPIKey != "" {
			plain, err := m.enc.Decrypt(mp.EncryptedAPIKey)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt api key for provider %s: %w", p.ID, err)
			}
			p.APIKey = string(plain)
		}
		p = p.Normalize()
		snapshot.Providers = append(snapshot.Providers, &p)
	}
	return snapshot, nil
}
