package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"tutor_gateway/internal/utils"
)

const (
	defaultRecentLogs = 50
	maxRecentLogs     = 1000
)

// HealthResponse reports the state of each dependency and where the
// provider registry was last loaded from.
type HealthResponse struct {
	Status          string            `json:"status"`
	Checks          map[string]string `json:"checks"`
	ProvidersFrom   string            `json:"providersFrom,omitempty"`
	ProvidersLoaded *time.Time        `json:"providersLoadedAt,omitempty"`
	Providers       int               `json:"providers"`
}

// handleHealth serves GET /health: 200 when every check passes, 503 otherwise.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(d.HealthChecks))}

	names := make([]string, 0, len(d.HealthChecks))
	for name := range d.HealthChecks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := d.HealthChecks[name](r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	if d.Registry != nil {
		from, at := d.Registry.LoadedFrom()
		resp.ProvidersFrom = from
		if !at.IsZero() {
			resp.ProvidersLoaded = &at
		}
		resp.Providers = len(d.Registry.ListProviders())
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	utils.RespondWithJSON(w, code, resp)
}

// handleUsageSummary serves GET /admin/usage?since=24h
func (d *Dependencies) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.ParseDuration(s)
		if err != nil || parsed <= 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "since must be a positive duration such as 24h")
			return
		}
		window = parsed
	}

	summaries, err := d.Usage.SummaryByProvider(r.Context(), time.Now().Add(-window))
	if err != nil {
		d.logger.Error("Failed to summarize usage", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to summarize usage")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, summaries)
}

// handleRecentLogs serves GET /admin/logs/recent?n=50 from the Redis chat log buffer
func (d *Dependencies) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	if d.RecentLogs == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Recent logs require Redis")
		return
	}

	n := int64(defaultRecentLogs)
	if s := r.URL.Query().Get("n"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil || parsed <= 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = min(parsed, maxRecentLogs)
	}

	records, err := d.RecentLogs.Recent(r.Context(), n)
	if err != nil {
		d.logger.Error("Failed to read recent logs", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to read recent logs")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, records)
}

// handleRegistryReload serves POST /admin/registry/reload
func (d *Dependencies) handleRegistryReload(w http.ResponseWriter, r *http.Request) {
	err := d.Registry.Reload(r.Context())
	from, at := d.Registry.LoadedFrom()
	body := map[string]any{
		"providers":  len(d.Registry.ListProviders()),
		"loadedFrom": from,
		"loadedAt":   at,
	}
	if err != nil {
		d.logger.Error("Provider registry reload failed", "error", err)
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Reload failed: "+err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, body)
}
