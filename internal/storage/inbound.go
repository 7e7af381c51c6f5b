package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecordInbound persists an inbound message. It reports false when the
// (provider message id, account) pair was already recorded.
func (s *Store) RecordInbound(ctx context.Context, msg InboundMessage) (bool, error) {
	var providerDate any
	if !msg.ProviderDate.IsZero() {
		providerDate = msg.ProviderDate
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO inbound_messages (provider_message_id, account_id, sender, body, media_url, kind, provider_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_message_id, account_id) DO NOTHING
		RETURNING id`,
		msg.ProviderMessageID, msg.AccountID, msg.Sender, msg.Text, msg.MediaURL, msg.Kind, providerDate).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert inbound message: %w", err)
	}
	return true, nil
}

// ListActiveFAQs returns the merchant's active FAQ entries.
func (s *Store) ListActiveFAQs(ctx context.Context, merchantID uuid.UUID) ([]FAQ, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, merchant_id, question, answer, active
		FROM faqs WHERE merchant_id = $1 AND active
		ORDER BY question`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("query faqs: %w", err)
	}
	defer rows.Close()

	var faqs []FAQ
	for rows.Next() {
		var f FAQ
		if err := rows.Scan(&f.ID, &f.MerchantID, &f.Question, &f.Answer, &f.Active); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		faqs = append(faqs, f)
	}
	return faqs, rows.Err()
}
