package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sungwon/wa-commerce/internal/ai"
	"github.com/sungwon/wa-commerce/internal/auth"
	"github.com/sungwon/wa-commerce/internal/logger"
)

// ProviderSwitch selects the active AI provider.
type ProviderSwitch interface {
	Active() string
	SetActive(name string) error
	Statuses() []ai.ProviderStatus
}

type providerResponse struct {
	Active    string              `json:"active"`
	Providers []ai.ProviderStatus `json:"providers"`
}

type setProviderRequest struct {
	Name string `json:"name"`
}

// GetProviderHandler handles GET /api/v1/ai/provider.
func GetProviderHandler(gw ProviderSwitch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, providerResponse{Active: gw.Active(), Providers: gw.Statuses()})
	}
}

// SetProviderHandler handles PUT /api/v1/ai/provider.
func SetProviderHandler(gw ProviderSwitch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" {
			respondError(w, http.StatusBadRequest, "name is required")
			return
		}

		if err := gw.SetActive(req.Name); err != nil {
			if errors.Is(err, ai.ErrUnknownProvider) {
				respondError(w, http.StatusBadRequest, "unknown provider")
				return
			}
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		log := logger.FromContext(r.Context())
		log.Info().
			Str("provider", req.Name).
			Str("operator", auth.SubjectFromContext(r.Context())).
			Msg("ai provider switched by operator")
		respondJSON(w, http.StatusOK, providerResponse{Active: gw.Active(), Providers: gw.Statuses()})
	}
}
