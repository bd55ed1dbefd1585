package storage

import (
	"context"
	"errors"
	"fmt"

	"tutor_gateway/internal/models"
)

// SeedProvider creates p with the given models, or starter templates when
// list is empty. An existing provider keeps its models; only its settings
// are refreshed, and its stored key is kept when p carries none.
func SeedProvider(ctx context.Context, providers *ProviderRepository, managed *ManagedModelRepository, p *models.Provider, list []*models.ManagedModel) (bool, error) {
	existing, err := providers.GetByID(ctx, p.ID)
	switch {
	case err == nil:
		p.Status = existing.Status
		p.LatencyMs = existing.LatencyMs
		if err := providers.Update(ctx, p); err != nil {
			return false, fmt.Errorf("failed to refresh provider %s: %w", p.ID, err)
		}
		return false, nil
	case !errors.Is(err, ErrProviderNotFound):
		return false, err
	}

	if err := providers.Create(ctx, p); err != nil {
		return false, err
	}
	if len(list) == 0 {
		if _, err := managed.SeedTemplates(ctx, p); err != nil {
			return true, fmt.Errorf("failed to seed models for %s: %w", p.ID, err)
		}
		return true, nil
	}
	for _, m := range list {
		if err := m.Validate(); err != nil {
			return true, fmt.Errorf("model %q: %w", m.Name, err)
		}
	}
	if err := managed.ReplaceForProvider(ctx, p.ID, list); err != nil {
		return true, err
	}
	return true, nil
}
