package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sungwon/wa-commerce/internal/logger"
	"github.com/sungwon/wa-commerce/internal/queue"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// AccountGetter resolves an account by id.
type AccountGetter interface {
	GetAccount(ctx context.Context, id uuid.UUID) (storage.Account, error)
}

// QueueAdmin inspects and clears per-credential delivery queues.
type QueueAdmin interface {
	Status(credential string) queue.Status
	Clear(credential string) int
}

// DeadLetterLister lists recently dead-lettered messages of a credential.
type DeadLetterLister interface {
	List(ctx context.Context, credential string, limit int) ([]queue.DeadLetter, error)
}

type clearQueueResponse struct {
	Removed int `json:"removed"`
}

// accountFromPath resolves the {id} path parameter to an account, writing
// the error response itself when it cannot.
func accountFromPath(w http.ResponseWriter, r *http.Request, accounts AccountGetter) (storage.Account, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account id")
		return storage.Account{}, false
	}
	account, err := accounts.GetAccount(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "account not found")
		return storage.Account{}, false
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("failed to load account")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return storage.Account{}, false
	}
	return account, true
}

// QueueStatusHandler handles GET /api/v1/accounts/{id}/queue.
func QueueStatusHandler(accounts AccountGetter, q QueueAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts)
		if !ok {
			return
		}
		respondJSON(w, http.StatusOK, q.Status(account.Credential))
	}
}

// ClearQueueHandler handles DELETE /api/v1/accounts/{id}/queue.
func ClearQueueHandler(accounts AccountGetter, q QueueAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts)
		if !ok {
			return
		}
		removed := q.Clear(account.Credential)
		log := logger.FromContext(r.Context())
		log.Info().
			Str("account_id", account.ID.String()).
			Int("removed", removed).
			Msg("queue cleared by operator")
		respondJSON(w, http.StatusOK, clearQueueResponse{Removed: removed})
	}
}

// DeadLettersHandler handles GET /api/v1/accounts/{id}/dead-letters?limit=N.
func DeadLettersHandler(accounts AccountGetter, letters DeadLetterLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromPath(w, r, accounts)
		if !ok {
			return
		}

		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 1000 {
				respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
				return
			}
			limit = n
		}

		list, err := letters.List(r.Context(), account.Credential, limit)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("failed to list dead letters")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
