package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor_gateway/internal/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisClientFrom(client)
}

func TestProviderMirror_SaveLoad(t *testing.T) {
	mr, rc := newTestRedis(t)
	mirror := NewProviderMirror(rc, newTestEncryption(t), time.Hour)
	ctx := context.Background()

	p := models.NewProvider(models.ProviderTypeGoogle, "goog-secret")
	require.NoError(t, mirror.Save(ctx, []*models.Provider{p}))

	raw, err := mr.Get(defaultMirrorKey)
	require.NoError(t, err)
	assert.NotContains(t, raw, "goog-secret")

	snapshot, err := mirror.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Providers, 1)
	assert.Equal(t, p.ID, snapshot.Providers[0].ID)
	assert.Equal(t, "goog-secret", snapshot.Providers[0].APIKey)
	assert.Equal(t, models.ProtocolGoogleGenAI, snapshot.Providers[0].Protocol)
	assert.False(t, snapshot.SavedAt.IsZero())

	assert.True(t, mr.TTL(defaultMirrorKey) > 0)
}

func TestProviderMirror_Missing(t *testing.T) {
	_, rc := newTestRedis(t)
	mirror := NewProviderMirror(rc, newTestEncryption(t), 0)

	_, err := mirror.Load(context.Background())
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestRedisClient_Health(t *testing.T) {
	_, rc := newTestRedis(t)
	assert.NoError(t, rc.Health(context.Background()))
}
