package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tutor_gateway/internal/models"
)

const providerColumns = `id, name, provider_type, protocol, base_url, chat_path, embedding_path,
		       auth_scheme, custom_header_name, encrypted_api_key, enabled, status,
		       latency_ms, created_at, updated_at`

// ProviderRepository handles provider database operations. API keys are
// encrypted before they are written and decrypted on read.
type ProviderRepository struct {
	db  *DB
	enc *Encryption
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *DB, enc *Encryption) *ProviderRepository {
	return &ProviderRepository{db: db, enc: enc}
}

// GetByID retrieves a provider by ID
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	var provider models.Provider
	query := r.db.rebind(`SELECT ` + providerColumns + ` FROM providers WHERE id = ?`)

	if err := r.db.conn.GetContext(ctx, &provider, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return r.hydrate(&provider)
}

// GetByName retrieves a provider by display name
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*models.Provider, error) {
	var provider models.Provider
	query := r.db.rebind(`SELECT ` + providerColumns + ` FROM providers WHERE name = ?`)

	if err := r.db.conn.GetContext(ctx, &provider, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return r.hydrate(&provider)
}

// List returns all providers
func (r *ProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	return r.list(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY name, id`)
}

// ListEnabled returns the providers that may serve chat calls
func (r *ProviderRepository) ListEnabled(ctx context.Context) ([]*models.Provider, error) {
	return r.list(ctx, r.db.rebind(`SELECT `+providerColumns+` FROM providers WHERE enabled = ? ORDER BY name, id`), true)
}

func (r *ProviderRepository) list(ctx context.Context, query string, args ...any) ([]*models.Provider, error) {
	var providers []*models.Provider
	if err := r.db.conn.SelectContext(ctx, &providers, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	for _, p := range providers {
		if _, err := r.hydrate(p); err != nil {
			return nil, err
		}
	}
	return providers, nil
}

// ProviderListFilters contains filter parameters for listing providers
type ProviderListFilters struct {
	Search      string
	Type        models.ProviderType
	EnabledOnly *bool
	Page        int
	PageSize    int
}

// ProviderListResult contains paginated provider list results
type ProviderListResult struct {
	Providers  []*models.Provider
	TotalCount int
	Page       int
	PageSize   int
}

// ListWithFilters returns providers with filtering and pagination
func (r *ProviderRepository) ListWithFilters(ctx context.Context, filters ProviderListFilters) (*ProviderListResult, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	var whereClauses []string
	var args []any

	if filters.Search != "" {
		whereClauses = append(whereClauses, "(LOWER(name) LIKE ? OR LOWER(base_url) LIKE ?)")
		pattern := "%" + strings.ToLower(filters.Search) + "%"
		args = append(args, pattern, pattern)
	}
	if filters.Type != "" {
		whereClauses = append(whereClauses, "provider_type = ?")
		args = append(args, string(filters.Type))
	}
	if filters.EnabledOnly != nil {
		whereClauses = append(whereClauses, "enabled = ?")
		args = append(args, *filters.EnabledOnly)
	}

	whereClause := ""
	if len(whereClauses) > 0 {
		whereClause = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	var totalCount int
	countQuery := r.db.rebind("SELECT COUNT(*) FROM providers " + whereClause)
	if err := r.db.conn.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count providers: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	dataQuery := r.db.rebind(fmt.Sprintf(`SELECT %s FROM providers %s ORDER BY name, id LIMIT ? OFFSET ?`,
		providerColumns, whereClause))
	providers, err := r.list(ctx, dataQuery, append(args, filters.PageSize, offset)...)
	if err != nil {
		return nil, err
	}

	return &ProviderListResult{
		Providers:  providers,
		TotalCount: totalCount,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
	}, nil
}

// Create creates a new provider. Missing ID, status and timestamps are filled in.
func (r *ProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	if provider.ID == "" {
		provider.ID = models.NewProviderID()
	}
	if provider.Status == "" {
		provider.Status = models.ProviderStatusUntested
	}
	now := time.Now().UTC()
	provider.CreatedAt = now
	provider.UpdatedAt = now

	encrypted, err := r.encryptKey(provider.APIKey)
	if err != nil {
		return err
	}
	provider.EncryptedAPIKey = encrypted

	query := r.db.rebind(`
		INSERT INTO providers (id, name, provider_type, protocol, base_url, chat_path,
		                       embedding_path, auth_scheme, custom_header_name,
		                       encrypted_api_key, enabled, status, latency_ms,
		                       created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = r.db.conn.ExecContext(ctx, query,
		provider.ID, provider.Name, string(provider.Type), string(provider.Protocol),
		provider.BaseURL, provider.ChatPath, provider.EmbeddingPath,
		string(provider.AuthScheme), provider.CustomHeaderName,
		provider.EncryptedAPIKey, provider.Enabled, string(provider.Status),
		provider.LatencyMs, provider.CreatedAt, provider.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	return nil
}

// Update updates an existing provider. An empty APIKey keeps the stored key.
func (r *ProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	provider.UpdatedAt = time.Now().UTC()

	setKey := ""
	args := []any{
		provider.Name, string(provider.Type), string(provider.Protocol), provider.BaseURL,
		provider.ChatPath, provider.EmbeddingPath, string(provider.AuthScheme),
		provider.CustomHeaderName, provider.Enabled, provider.UpdatedAt,
	}
	if provider.APIKey != "" {
		encrypted, err := r.encryptKey(provider.APIKey)
		if err != nil {
			return err
		}
		provider.EncryptedAPIKey = encrypted
		setKey = ", encrypted_api_key = ?"
		args = append(args, encrypted)
	}
	args = append(args, provider.ID)

	query := r.db.rebind(`
		UPDATE providers
		SET name = ?, provider_type = ?, protocol = ?, base_url = ?, chat_path = ?,
		    embedding_path = ?, auth_scheme = ?, custom_header_name = ?, enabled = ?,
		    updated_at = ?` + setKey + `
		WHERE id = ?
	`)

	result, err := r.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	return expectRow(result, ErrProviderNotFound)
}

// UpdateStatus records the outcome of a connection test
func (r *ProviderRepository) UpdateStatus(ctx context.Context, id string, status models.ProviderStatus, latencyMs *int64) error {
	query := r.db.rebind(`UPDATE providers SET status = ?, latency_ms = ?, updated_at = ? WHERE id = ?`)

	result, err := r.db.conn.ExecContext(ctx, query, string(status), latencyMs, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update provider status: %w", err)
	}
	return expectRow(result, ErrProviderNotFound)
}

// Delete deletes a provider and, through the foreign key, its models
func (r *ProviderRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Explicit child delete for SQLite connections opened without foreign keys.
	if _, err := tx.ExecContext(ctx, r.db.rebind("DELETE FROM managed_models WHERE provider_id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete provider models: %w", err)
	}

	result, err := tx.ExecContext(ctx, r.db.rebind("DELETE FROM providers WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	if err := expectRow(result, ErrProviderNotFound); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *ProviderRepository) encryptKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", nil
	}
	encrypted, err := r.enc.Encrypt([]byte(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt api key: %w", err)
	}
	return encrypted, nil
}

// hydrate decrypts the stored key and applies protocol defaults.
func (r *ProviderRepository) hydrate(p *models.Provider) (*models.Provider, error) {
	if p.EncryptedAPIKey != "" {
		plain, err := r.enc.Decrypt(p.EncryptedAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt api key for provider %s: %w", p.ID, err)
		}
		p.APIKey = string(plain)
	}
	*p = p.Normalize()
	return p, nil
}

func expectRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
