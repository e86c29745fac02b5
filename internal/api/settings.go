package api

import (
	"net/http"
	"strings"

	"github.com/ashureev/doubt-solver/internal/completion"
)

type apiKeyRequest struct {
	APIKey string `json:"api_key"`
}

// GetConfig reports whether the service can answer queries.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]bool{
		"has_api_key": completion.HasCredential(r.Context(), h.keys),
	})
}

// SetAPIKey saves the API key used for completions.
func (h *Handler) SetAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		Error(w, http.StatusBadRequest, "api_key cannot be empty")
		return
	}
	if err := h.keys.SetAPIKey(r.Context(), req.APIKey); err != nil {
		h.logger.Error("Failed to save API key", "error", err)
		Error(w, http.StatusInternalServerError, "failed to save api key")
		return
	}
	h.logger.Info("API key updated")
	w.WriteHeader(http.StatusNoContent)
}
