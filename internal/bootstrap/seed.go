// Package bootstrap provides startup-time initialization routines
// such as seeding the first merchant account.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/wa-commerce/internal/inbound"
	"github.com/sungwon/wa-commerce/internal/logger"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// Seeder is the persistence used by SeedMerchant.
type Seeder interface {
	UpsertMerchant(ctx context.Context, name, phone string) (storage.User, error)
	EnsureAccount(ctx context.Context, merchantID uuid.UUID, name, credential string) (storage.Account, bool, error)
}

// Merchant describes the merchant and gateway account to seed.
type Merchant struct {
	Name              string
	Phone             string
	AccountName       string
	AccountCredential string
}

// SeedMerchant ensures the configured merchant user and its gateway account
// exist. It is idempotent and safe on every startup; a changed credential is
// rotated onto the existing account. An empty phone skips seeding.
func SeedMerchant(ctx context.Context, store Seeder, log zerolog.Logger, m Merchant) error {
	phone := inbound.NormalizePhone(m.Phone)
	if phone == "" {
		log.Debug().Msg("no bootstrap merchant configured, skipping seed")
		return nil
	}
	name := m.Name
	if name == "" {
		name = phone
	}

	merchant, err := store.UpsertMerchant(ctx, name, phone)
	if err != nil {
		return fmt.Errorf("seed merchant: %w", err)
	}

	account, created, err := store.EnsureAccount(ctx, merchant.ID, m.AccountName, m.AccountCredential)
	if err != nil {
		return fmt.Errorf("seed account: %w", err)
	}

	event := log.Info()
	if !created {
		event = log.Debug()
	}
	event.
		Str("merchant_id", merchant.ID.String()).
		Str("account_id", account.ID.String()).
		Str("credential", logger.MaskCredential(account.Credential)).
		Bool("created", created).
		Msg("bootstrap merchant account ready")

	if account.Credential == "" {
		log.Warn().
			Str("account_id", account.ID.String()).
			Msg("bootstrap account has no credential and will not be polled")
	}
	return nil
}
