package utils

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

// RespondWithError sends an error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithUpstreamError reports a provider failure as 502 Bad Gateway,
// keeping the provider's status in the body.
func RespondWithUpstreamError(w http.ResponseWriter, upstreamStatus int, message string) {
	RespondWithJSON(w, http.StatusBadGateway, ErrorResponse{Error: message, UpstreamStatus: upstreamStatus})
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}
