package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"tutor_gateway/internal/models"
)

const modelColumns = `id, provider_id, name, kind, temperature, enabled, description, created_at, updated_at`

// ManagedModelRepository handles the per-provider model list
type ManagedModelRepository struct {
	db *DB
}

// NewManagedModelRepository creates a new managed model repository
func NewManagedModelRepository(db *DB) *ManagedModelRepository {
	return &ManagedModelRepository{db: db}
}

// GetByID retrieves a managed model by ID
func (r *ManagedModelRepository) GetByID(ctx context.Context, id string) (*models.ManagedModel, error) {
	var m models.ManagedModel
	query := r.db.rebind(`SELECT ` + modelColumns + ` FROM managed_models WHERE id = ?`)

	if err := r.db.conn.GetContext(ctx, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrManagedModelNotFound
		}
		return nil, fmt.Errorf("failed to get managed model: %w", err)
	}
	return &m, nil
}

// ListByProvider returns a provider's models in creation order
func (r *ManagedModelRepository) ListByProvider(ctx context.Context, providerID string) ([]*models.ManagedModel, error) {
	query := r.db.rebind(`SELECT ` + modelColumns + ` FROM managed_models WHERE provider_id = ? ORDER BY created_at, name`)

	out := []*models.ManagedModel{}
	if err := r.db.conn.SelectContext(ctx, &out, query, providerID); err != nil {
		return nil, fmt.Errorf("failed to list managed models: %w", err)
	}
	return out, nil
}

// FirstEnabledChat returns the first enabled chat model of a provider
func (r *ManagedModelRepository) FirstEnabledChat(ctx context.Context, providerID string) (*models.ManagedModel, error) {
	var m models.ManagedModel
	query := r.db.rebind(`SELECT ` + modelColumns + ` FROM managed_models
		WHERE provider_id = ? AND kind = ? AND enabled = ?
		ORDER BY created_at, name LIMIT 1`)

	if err := r.db.conn.GetContext(ctx, &m, query, providerID, string(models.ModelKindChat), true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrManagedModelNotFound
		}
		return nil, fmt.Errorf("failed to get managed model: %w", err)
	}
	return &m, nil
}

// Create inserts a managed model
func (r *ManagedModelRepository) Create(ctx context.Context, m *models.ManagedModel) error {
	return r.create(ctx, r.db.conn, m)
}

// Update updates a managed model
func (r *ManagedModelRepository) Update(ctx context.Context, m *models.ManagedModel) error {
	m.UpdatedAt = time.Now().UTC()
	query := r.db.rebind(`
		UPDATE managed_models
		SET name = ?, kind = ?, temperature = ?, enabled = ?, description = ?, updated_at = ?
		WHERE id = ?
	`)

	result, err := r.db.conn.ExecContext(ctx, query,
		m.Name, string(m.Kind), m.Temperature, m.Enabled, m.Description, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update managed model: %w", err)
	}
	return expectRow(result, ErrManagedModelNotFound)
}

// Delete deletes a managed model
func (r *ManagedModelRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.conn.ExecContext(ctx, r.db.rebind("DELETE FROM managed_models WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete managed model: %w", err)
	}
	return expectRow(result, ErrManagedModelNotFound)
}

// ReplaceForProvider swaps a provider's whole model list in one transaction
func (r *ManagedModelRepository) ReplaceForProvider(ctx context.Context, providerID string, list []*models.ManagedModel) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.db.rebind("DELETE FROM managed_models WHERE provider_id = ?"), providerID); err != nil {
		return fmt.Errorf("failed to clear managed models: %w", err)
	}
	for _, m := range list {
		m.ProviderID = providerID
		if err := r.create(ctx, tx, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SeedTemplates inserts the starter models for a provider type
func (r *ManagedModelRepository) SeedTemplates(ctx context.Context, p *models.Provider) ([]*models.ManagedModel, error) {
	list := models.ModelTemplates(p.ID, p.Type)
	if err := r.ReplaceForProvider(ctx, p.ID, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ManagedModelRepository) create(ctx context.Context, exec sqlx.ExecerContext, m *models.ManagedModel) error {
	if m.ID == "" {
		m.ID = models.NewModelID()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := r.db.rebind(`
		INSERT INTO managed_models (` + modelColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := exec.ExecContext(ctx, query,
		m.ID, m.ProviderID, m.Name, string(m.Kind), m.Temperature, m.Enabled,
		m.Description, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create managed model: %w", err)
	}
	return nil
}
