package storage

import (
	"context"
	"fmt"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		provider_type      TEXT NOT NULL,
		protocol           TEXT NOT NULL,
		base_url           TEXT NOT NULL,
		chat_path          TEXT NOT NULL DEFAULT '',
		embedding_path     TEXT NOT NULL DEFAULT '',
		auth_scheme        TEXT NOT NULL,
		custom_header_name TEXT NOT NULL DEFAULT '',
		encrypted_api_key  TEXT NOT NULL DEFAULT '',
		enabled            BOOLEAN NOT NULL DEFAULT 1,
		status             TEXT NOT NULL DEFAULT 'untested',
		latency_ms         INTEGER,
		created_at         TIMESTAMP NOT NULL,
		updated_at         TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS managed_models (
		id          TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		temperature REAL NOT NULL DEFAULT 0,
		enabled     BOOLEAN NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_managed_models_provider ON managed_models(provider_id)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id                TEXT PRIMARY KEY,
		request_id        TEXT NOT NULL,
		provider_id       TEXT NOT NULL,
		provider_type     TEXT NOT NULL DEFAULT '',
		protocol          TEXT NOT NULL DEFAULT '',
		client_kind       TEXT NOT NULL DEFAULT '',
		model_name        TEXT NOT NULL,
		endpoint          TEXT NOT NULL DEFAULT '',
		stream            BOOLEAN NOT NULL DEFAULT 0,
		prompt_tokens     INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		response_time_ms  INTEGER NOT NULL DEFAULT 0,
		status_code       INTEGER NOT NULL DEFAULT 0,
		error_message     TEXT NOT NULL DEFAULT '',
		metadata          TEXT,
		created_at        TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_records_provider ON usage_records(provider_id, created_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		provider_type      TEXT NOT NULL,
		protocol           TEXT NOT NULL,
		base_url           TEXT NOT NULL,
		chat_path          TEXT NOT NULL DEFAULT '',
		embedding_path     TEXT NOT NULL DEFAULT '',
		auth_scheme        TEXT NOT NULL,
		custom_header_name TEXT NOT NULL DEFAULT '',
		encrypted_api_key  TEXT NOT NULL DEFAULT '',
		enabled            BOOLEAN NOT NULL DEFAULT TRUE,
		status             TEXT NOT NULL DEFAULT 'untested',
		latency_ms         BIGINT,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS managed_models (
		id          TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		temperature DOUBLE PRECISION NOT NULL DEFAULT 0,
		enabled     BOOLEAN NOT NULL DEFAULT FALSE,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_managed_models_provider ON managed_models(provider_id)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id                UUID PRIMARY KEY,
		request_id        UUID NOT NULL,
		provider_id       TEXT NOT NULL,
		provider_type     TEXT NOT NULL DEFAULT '',
		protocol          TEXT NOT NULL DEFAULT '',
		client_kind       TEXT NOT NULL DEFAULT '',
		model_name        TEXT NOT NULL,
		endpoint          TEXT NOT NULL DEFAULT '',
		stream            BOOLEAN NOT NULL DEFAULT FALSE,
		prompt_tokens     INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		response_time_ms  INTEGER NOT NULL DEFAULT 0,
		status_code       INTEGER NOT NULL DEFAULT 0,
		error_message     TEXT NOT NULL DEFAULT '',
		metadata          JSONB,
		created_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_records_provider ON usage_records(provider_id, created_at)`,
}

// Migrate creates any missing tables and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if db.driver == DriverPostgres {
		stmts = postgresSchema
	}

	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
