package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTransaction is returned when a transaction with the same
	// (reference, payer) pair already exists.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	// ErrInsufficientStock is returned when an order line exceeds the
	// remaining product stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStatusConflict is returned when a status transition is attempted
	// from a status that does not allow it.
	ErrStatusConflict = errors.New("status conflict")
)

const uniqueViolation = "23505"

// Store implements every persistence collaborator of the bot on top of a
// pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by db.
func NewStore(db *DB) *Store {
	return &Store{pool: db.Pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ListActiveAccounts returns all active accounts that carry a credential.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, merchant_id, name, credential, active, created_at
		FROM accounts
		WHERE active AND credential <> ''
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.MerchantID, &a.Name, &a.Credential, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccount returns the account with the given id.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, `
		SELECT id, merchant_id, name, credential, active, created_at
		FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.MerchantID, &a.Name, &a.Credential, &a.Active, &a.CreatedAt)
	if err != nil {
		return Account{}, notFound(err, "account")
	}
	return a, nil
}

// FindUserByPhone returns the registered user with the given phone number.
func (s *Store) FindUserByPhone(ctx context.Context, phone string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, phone, role, parent_id FROM users WHERE phone = $1`, phone).
		Scan(&u.ID, &u.Name, &u.Phone, &u.Role, &u.ParentID)
	if err != nil {
		return User{}, notFound(err, "user")
	}
	return u, nil
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, phone, role, parent_id FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Phone, &u.Role, &u.ParentID)
	if err != nil {
		return User{}, notFound(err, "user")
	}
	return u, nil
}

// UpsertMerchant creates the merchant user with the given phone, or promotes
// and renames the existing one.
func (s *Store) UpsertMerchant(ctx context.Context, name, phone string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, phone, role) VALUES ($1, $2, $3)
		ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
		RETURNING id, name, phone, role, parent_id`, name, phone, RoleMerchant).
		Scan(&u.ID, &u.Name, &u.Phone, &u.Role, &u.ParentID)
	if err != nil {
		return User{}, fmt.Errorf("upsert merchant: %w", err)
	}
	return u, nil
}

// EnsureAccount returns the merchant's account with the given name, creating
// it when missing. A non-empty credential replaces the stored one. The bool
// reports whether the account was created.
func (s *Store) EnsureAccount(ctx context.Context, merchantID uuid.UUID, name, credential string) (Account, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Account{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var a Account
	err = tx.QueryRow(ctx, `
		SELECT id, merchant_id, name, credential, active, created_at
		FROM accounts WHERE merchant_id = $1 AND name = $2
		FOR UPDATE`, merchantID, name).
		Scan(&a.ID, &a.MerchantID, &a.Name, &a.Credential, &a.Active, &a.CreatedAt)
	created := false
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO accounts (merchant_id, name, credential) VALUES ($1, $2, $3)
			RETURNING id, merchant_id, name, credential, active, created_at`, merchantID, name, credential).
			Scan(&a.ID, &a.MerchantID, &a.Name, &a.Credential, &a.Active, &a.CreatedAt)
		if err != nil {
			return Account{}, false, fmt.Errorf("insert account: %w", err)
		}
		created = true
	case err != nil:
		return Account{}, false, fmt.Errorf("query account: %w", err)
	case credential != "" && credential != a.Credential:
		if _, err := tx.Exec(ctx, `UPDATE accounts SET credential = $2 WHERE id = $1`, a.ID, credential); err != nil {
			return Account{}, false, fmt.Errorf("update account credential: %w", err)
		}
		a.Credential = credential
	}

	if err := tx.Commit(ctx); err != nil {
		return Account{}, false, fmt.Errorf("commit: %w", err)
	}
	return a, created, nil
}
