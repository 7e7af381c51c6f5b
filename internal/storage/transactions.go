package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, merchant_id, account_id, type, status, amount, reference_id,
	transaction_date, transaction_time, source_account, payment_method, proof_key, created_at, reviewed_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.MerchantID, &t.AccountID, &t.Type, &t.Status, &t.Amount,
		&t.ReferenceID, &t.TransactionDate, &t.TransactionTime, &t.SourceAccount, &t.PaymentMethod,
		&t.ProofKey, &t.CreatedAt, &t.ReviewedAt)
	return t, err
}

// CreateTransaction records a pending deposit. A second deposit with the same
// (reference, payer) pair fails with ErrDuplicateTransaction.
func (s *Store) CreateTransaction(ctx context.Context, in NewTransaction) (Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx, `
		INSERT INTO transactions (user_id, merchant_id, account_id, type, status, amount, reference_id,
			transaction_date, transaction_time, source_account, payment_method, proof_key)
		VALUES ($1, $2, $3, 'deposit', 'pending', $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+transactionColumns,
		in.UserID, in.MerchantID, in.AccountID, in.Amount, in.ReferenceID, in.TransactionDate,
		in.TransactionTime, in.SourceAccount, in.PaymentMethod, in.ProofKey))
	if err != nil {
		if isUniqueViolation(err) {
			return Transaction{}, ErrDuplicateTransaction
		}
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// FindTransactionByReference returns the payer's transaction with the given
// reference.
func (s *Store) FindTransactionByReference(ctx context.Context, referenceID string, userID uuid.UUID) (Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE reference_id = $1 AND user_id = $2`, referenceID, userID))
	if err != nil {
		return Transaction{}, notFound(err, "transaction")
	}
	return t, nil
}

// CountTransactionsByReference returns how many transactions of any payer
// carry the reference.
func (s *Store) CountTransactionsByReference(ctx context.Context, referenceID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM transactions WHERE reference_id = $1`, referenceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// GetTransaction returns the transaction with the given id.
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return Transaction{}, notFound(err, "transaction")
	}
	return t, nil
}

// UpdateTransactionStatus moves a transaction from status from to status to.
// It fails with ErrStatusConflict if the transaction is no longer in from.
func (s *Store) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from, to string) (Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx, `
		UPDATE transactions SET status = $3, reviewed_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+transactionColumns, id, from, to))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("update transaction status: %w", err)
	}
	if _, getErr := s.GetTransaction(ctx, id); getErr != nil {
		return Transaction{}, getErr
	}
	return Transaction{}, fmt.Errorf("transaction %s not %s: %w", id, from, ErrStatusConflict)
}

// SumApprovedDeposits returns the total of the user's approved deposits.
func (s *Store) SumApprovedDeposits(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND type = 'deposit' AND status = 'approved'`, userID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum approved deposits: %w", err)
	}
	return sum, nil
}
