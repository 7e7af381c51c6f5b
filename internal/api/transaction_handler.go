package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sungwon/wa-commerce/internal/auth"
	"github.com/sungwon/wa-commerce/internal/deposit"
	"github.com/sungwon/wa-commerce/internal/logger"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// DepositReviewer approves or rejects pending deposits.
type DepositReviewer interface {
	Review(ctx context.Context, transactionID uuid.UUID, approve bool) (storage.Transaction, error)
}

type transactionResponse struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	MerchantID  uuid.UUID       `json:"merchant_id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id"`
	Date        string          `json:"transaction_date"`
	ProofKey    string          `json:"proof_key,omitempty"`
	ReviewedAt  *time.Time      `json:"reviewed_at,omitempty"`
}

func toTransactionResponse(tx storage.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		UserID:      tx.UserID,
		MerchantID:  tx.MerchantID,
		Status:      tx.Status,
		Amount:      tx.Amount,
		ReferenceID: tx.ReferenceID,
		Date:        tx.TransactionDate.Format("2006-01-02"),
		ProofKey:    tx.ProofKey,
		ReviewedAt:  tx.ReviewedAt,
	}
}

// ReviewTransactionHandler handles POST /api/v1/transactions/{id}/approve
// and /reject.
func ReviewTransactionHandler(reviewer DepositReviewer, approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid transaction id")
			return
		}

		log := logger.FromContext(r.Context())
		tx, err := reviewer.Review(r.Context(), id, approve)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			respondError(w, http.StatusNotFound, "transaction not found")
			return
		case errors.Is(err, deposit.ErrNotPending):
			respondError(w, http.StatusConflict, "transaction is not pending")
			return
		case err != nil:
			log.Error().Err(err).Str("transaction_id", id.String()).Msg("review failed")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		log.Info().
			Str("transaction_id", id.String()).
			Str("status", tx.Status).
			Str("operator", auth.SubjectFromContext(r.Context())).
			Msg("transaction reviewed")
		respondJSON(w, http.StatusOK, toTransactionResponse(tx))
	}
}
