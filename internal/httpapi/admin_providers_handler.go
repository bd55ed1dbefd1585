package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"tutor_gateway/internal/models"
	"tutor_gateway/internal/providers"
	"tutor_gateway/internal/storage"
	"tutor_gateway/internal/utils"
)

// AdminProvidersHandler handles provider management endpoints
type AdminProvidersHandler struct {
	providers  *storage.ProviderRepository
	models     *storage.ManagedModelRepository
	registry   *providers.Registry
	dispatcher *providers.Dispatcher
	logger     *utils.Logger
}

// NewAdminProvidersHandler creates a new admin providers handler
func NewAdminProvidersHandler(deps *Dependencies) *AdminProvidersHandler {
	return &AdminProvidersHandler{
		providers:  deps.Providers,
		models:     deps.Models,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		logger:     utils.NewLogger("admin-providers"),
	}
}

// CreateProviderRequest represents the request to create a new provider.
// Omitted connection fields take the defaults for Type.
type CreateProviderRequest struct {
	Type             string `json:"type"`
	Name             string `json:"name"`
	Protocol         string `json:"protocol"`
	BaseURL          string `json:"baseUrl"`
	ChatPath         string `json:"chatPath"`
	EmbeddingPath    string `json:"embeddingPath"`
	AuthScheme       string `json:"authScheme"`
	CustomHeaderName string `json:"customHeaderName"`
	APIKey           string `json:"apiKey"`
	Enabled          *bool  `json:"enabled,omitempty"`
}

// UpdateProviderRequest represents the request to update a provider
type UpdateProviderRequest struct {
	Name             *string `json:"name,omitempty"`
	Protocol         *string `json:"protocol,omitempty"`
	BaseURL          *string `json:"baseUrl,omitempty"`
	ChatPath         *string `json:"chatPath,omitempty"`
	EmbeddingPath    *string `json:"embeddingPath,omitempty"`
	AuthScheme       *string `json:"authScheme,omitempty"`
	CustomHeaderName *string `json:"customHeaderName,omitempty"`
	APIKey           *string `json:"apiKey,omitempty"`
	Enabled          *bool   `json:"enabled,omitempty"`
}

// ProviderResponse is a provider without its key
type ProviderResponse struct {
	models.Provider
	HasAPIKey      bool   `json:"hasApiKey"`
	KeyFingerprint string `json:"keyFingerprint,omitempty"`
}

// ProviderDetailResponse adds the provider's managed models
type ProviderDetailResponse struct {
	ProviderResponse
	Models []*models.ManagedModel `json:"models"`
}

// TestProviderRequest optionally names the model used for a connection test
type TestProviderRequest struct {
	Model string `json:"model"`
}

func newProviderResponse(p *models.Provider) ProviderResponse {
	resp := ProviderResponse{
		Provider:       *p,
		HasAPIKey:      p.APIKey != "",
		KeyFingerprint: utils.Fingerprint(p.APIKey),
	}
	resp.APIKey = ""
	return resp
}

// Create handles POST /admin/providers
func (h *AdminProvidersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	t := models.ProviderType(req.Type)
	if !t.IsValid() {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider type")
		return
	}

	provider := models.NewProvider(t, req.APIKey)
	provider.ID = ""
	overlay(&provider.Name, req.Name)
	overlay((*string)(&provider.Protocol), req.Protocol)
	overlay(&provider.BaseURL, req.BaseURL)
	overlay(&provider.ChatPath, req.ChatPath)
	overlay(&provider.EmbeddingPath, req.EmbeddingPath)
	overlay((*string)(&provider.AuthScheme), req.AuthScheme)
	overlay(&provider.CustomHeaderName, req.CustomHeaderName)
	if req.Enabled != nil {
		provider.Enabled = *req.Enabled
	}

	if err := provider.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.providers.Create(r.Context(), provider); err != nil {
		h.logger.Error("Failed to create provider", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create provider")
		return
	}

	if _, err := h.models.SeedTemplates(r.Context(), provider); err != nil {
		h.logger.Warn("Failed to seed provider models", "provider", provider.ID, "error", err)
	}

	h.reload(r.Context())
	utils.RespondWithJSON(w, http.StatusCreated, newProviderResponse(provider))
}

// ProviderListResponse is one page of GET /admin/providers.
type ProviderListResponse struct {
	Items      []ProviderResponse `json:"items"`
	TotalCount int                `json:"totalCount"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
}

// List handles GET /admin/providers
//
// Query parameters: search (name or base URL), type, enabled, page, page_size.
func (h *AdminProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filters := storage.ProviderListFilters{
		Search:   query.Get("search"),
		Page:     1,
		PageSize: 20,
	}
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			filters.Page = p
		}
	}
	if pageSizeStr := query.Get("page_size"); pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 && ps <= 100 {
			filters.PageSize = ps
		}
	}
	if t := query.Get("type"); t != "" {
		filters.Type = models.ProviderType(t)
		if !filters.Type.IsValid() {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider type")
			return
		}
	}
	if enabledStr := query.Get("enabled"); enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "enabled must be true or false")
			return
		}
		filters.EnabledOnly = &enabled
	}

	result, err := h.providers.ListWithFilters(r.Context(), filters)
	if err != nil {
		h.logger.Error("Failed to list providers", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list providers")
		return
	}

	responses := make([]ProviderResponse, 0, len(result.Providers))
	for _, p := range result.Providers {
		responses = append(responses, newProviderResponse(p))
	}
	utils.RespondWithJSON(w, http.StatusOK, ProviderListResponse{
		Items:      responses,
		TotalCount: result.TotalCount,
		Page:       result.Page,
		PageSize:   result.PageSize,
	})
}

// GetByID handles GET /admin/providers/{id}
func (h *AdminProvidersHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.lookup(w, r)
	if !ok {
		return
	}

	list, err := h.models.ListByProvider(r.Context(), provider.ID)
	if err != nil {
		h.logger.Error("Failed to list provider models", "provider", provider.ID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list provider models")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ProviderDetailResponse{
		ProviderResponse: newProviderResponse(provider),
		Models:           list,
	})
}

// Update handles PUT /admin/providers/{id}. An empty apiKey clears nothing;
// the stored key is kept.
func (h *AdminProvidersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	provider, ok := h.lookup(w, r)
	if !ok {
		return
	}
	storedKey := provider.APIKey
	provider.APIKey = ""

	set(&provider.Name, req.Name)
	set((*string)(&provider.Protocol), req.Protocol)
	set(&provider.BaseURL, req.BaseURL)
	set(&provider.ChatPath, req.ChatPath)
	set(&provider.EmbeddingPath, req.EmbeddingPath)
	set((*string)(&provider.AuthScheme), req.AuthScheme)
	set(&provider.CustomHeaderName, req.CustomHeaderName)
	set(&provider.APIKey, req.APIKey)
	if req.Enabled != nil {
		provider.Enabled = *req.Enabled
	}

	if err := provider.Validate(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.providers.Update(r.Context(), provider); err != nil {
		h.respondStorageError(w, err, "Failed to update provider")
		return
	}
	if provider.APIKey == "" {
		provider.APIKey = storedKey
	}

	h.registry.Invalidate(provider.ID)
	h.reload(r.Context())
	utils.RespondWithJSON(w, http.StatusOK, newProviderResponse(provider))
}

// Delete handles DELETE /admin/providers/{id}. Its models go with it.
func (h *AdminProvidersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.providers.Delete(r.Context(), id); err != nil {
		h.respondStorageError(w, err, "Failed to delete provider")
		return
	}

	h.registry.Invalidate(id)
	h.reload(r.Context())
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Provider deleted successfully",
	})
}

// Test handles POST /admin/providers/{id}/test. The outcome is stored on
// the provider. A failed connection is still a 200; the result says so.
func (h *AdminProvidersHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req TestProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	provider, ok := h.lookup(w, r)
	if !ok {
		return
	}

	model := req.Model
	if model == "" {
		if m, err := h.models.FirstEnabledChat(r.Context(), provider.ID); err == nil {
			model = m.Name
		} else {
			model = models.DefaultChatModel(provider.Type)
		}
	}

	result := h.dispatcher.TestConnection(r.Context(), *provider, model)
	latency := result.LatencyMs
	if err := h.providers.UpdateStatus(r.Context(), provider.ID, result.Status, &latency); err != nil {
		h.logger.Warn("Failed to store connection result", "provider", provider.ID, "error", err)
	}
	h.registry.Invalidate(provider.ID)

	utils.RespondWithJSON(w, http.StatusOK, result)
}

// ListModels handles GET /admin/providers/{id}/models
func (h *AdminProvidersHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.lookup(w, r)
	if !ok {
		return
	}

	list, err := h.models.ListByProvider(r.Context(), provider.ID)
	if err != nil {
		h.logger.Error("Failed to list provider models", "provider", provider.ID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list provider models")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// ReplaceModels handles PUT /admin/providers/{id}/models with the full new list
func (h *AdminProvidersHandler) ReplaceModels(w http.ResponseWriter, r *http.Request) {
	var list []*models.ManagedModel
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	provider, ok := h.lookup(w, r)
	if !ok {
		return
	}

	seen := make(map[string]bool, len(list))
	for _, m := range list {
		if m.Kind == "" {
			m.Kind = models.ModelKindChat
		}
		if err := m.Validate(); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		key := string(m.Kind) + "/" + m.Name
		if seen[key] {
			utils.RespondWithError(w, http.StatusBadRequest, "Duplicate model: "+m.Name)
			return
		}
		seen[key] = true
		m.ID = ""
	}

	if err := h.models.ReplaceForProvider(r.Context(), provider.ID, list); err != nil {
		h.logger.Error("Failed to replace provider models", "provider", provider.ID, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to replace provider models")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

func (h *AdminProvidersHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.Provider, bool) {
	provider, err := h.providers.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondStorageError(w, err, "Failed to get provider")
		return nil, false
	}
	return provider, true
}

func (h *AdminProvidersHandler) respondStorageError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, storage.ErrProviderNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Provider not found")
		return
	}
	h.logger.Error(msg, "error", err)
	utils.RespondWithError(w, http.StatusInternalServerError, msg)
}

// reload refreshes the registry. A failure is logged, not returned; the
// change is in the database and the next interval picks it up.
func (h *AdminProvidersHandler) reload(ctx context.Context) {
	if err := h.registry.Reload(ctx); err != nil {
		h.logger.Warn("Provider registry reload failed", "error", err)
	}
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
