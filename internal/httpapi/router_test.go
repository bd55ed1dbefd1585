package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor_gateway/internal/config"
	"tutor_gateway/internal/storage"
)

func TestNewEncryption(t *testing.T) {
	hexKey := strings.Repeat("5a", 32)
	raw, err := hex.DecodeString(hexKey)
	require.NoError(t, err)

	fromHex, err := NewEncryption(config.EncryptionConfig{Key: hexKey})
	require.NoError(t, err)
	fromBase64, err := NewEncryption(config.EncryptionConfig{Key: base64.StdEncoding.EncodeToString(raw)})
	require.NoError(t, err)

	// Both spellings of the same key read each other's ciphertext
	sealed, err := fromHex.Encrypt([]byte("sk-secret"))
	require.NoError(t, err)
	opened, err := fromBase64.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", string(opened))

	generated, err := storage.GenerateKey(16)
	require.NoError(t, err)
	_, err = NewEncryption(config.EncryptionConfig{Key: generated})
	assert.NoError(t, err)

	_, err = NewEncryption(config.EncryptionConfig{Passphrase: "correct horse", Salt: "s"})
	assert.NoError(t, err)

	_, err = NewEncryption(config.EncryptionConfig{Passphrase: "correct horse"})
	assert.Error(t, err, "passphrase without salt")
	_, err = NewEncryption(config.EncryptionConfig{Key: base64.StdEncoding.EncodeToString([]byte("short"))})
	assert.Error(t, err)
}

func TestRedisConfig(t *testing.T) {
	defaults := storage.DefaultRedisConfig()

	rc := redisConfig(config.RedisConfig{Address: "cache:6379", DB: 2, PoolSize: 4})
	assert.Equal(t, "cache:6379", rc.Address)
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, 4, rc.PoolSize)
	assert.Equal(t, defaults.MinIdleConns, rc.MinIdleConns)
	assert.Equal(t, defaults.ReadTimeout, rc.ReadTimeout)
	assert.Equal(t, defaults.ConnMaxLifetime, rc.ConnMaxLifetime)
	assert.Equal(t, defaults.ConnMaxIdleTime, rc.ConnMaxIdleTime)

	rc = redisConfig(config.RedisConfig{Address: "cache:6379", DialTimeout: time.Second})
	assert.Equal(t, time.Second, rc.DialTimeout)
	assert.Equal(t, defaults.PoolSize, rc.PoolSize)
}

func TestNewRouter(t *testing.T) {
	mr := miniredis.RunT(t)
	key, err := storage.GenerateKey(32)
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret: []byte("router-test"),
		Database: config.DatabaseConfig{
			Driver: storage.DriverSQLite,
			URL:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString()),
		},
		Redis:      config.RedisConfig{Address: mr.Addr(), ChatLogSize: 10},
		Encryption: config.EncryptionConfig{Key: key},
		Provider: config.ProviderConfig{
			ReloadInterval: time.Minute,
			RequestTimeout: time.Second,
			CacheSize:      8,
		},
		UsageQueue: config.UsageQueueConfig{BatchSize: 10, BatchTimeout: 10 * time.Millisecond, MaxRetries: 1, RetryBackoff: time.Millisecond},
	}

	handler, deps, err := NewRouter(context.Background(), cfg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Checks["database"])
	assert.Equal(t, "ok", health.Checks["redis"])
	assert.NotNil(t, deps.RecentLogs)

	require.NoError(t, deps.Shutdown(context.Background()))
}
