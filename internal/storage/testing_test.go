package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestDB opens a private in-memory SQLite database with the schema applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := DefaultDBConfig()
	cfg.URL = fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := NewDB(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestEncryption(t *testing.T) *Encryption {
	t.Helper()

	key, err := GenerateKey(32)
	require.NoError(t, err)
	enc, err := NewEncryptionFromBase64(key)
	require.NoError(t, err)
	return enc
}
