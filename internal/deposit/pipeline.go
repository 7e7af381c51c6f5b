// Package deposit recognises customer deposit notices, extracts the transfer
// details and records them as pending transactions for merchant review.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sungwon/wa-commerce/internal/ai"
	"github.com/sungwon/wa-commerce/internal/logger"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// ErrNotPending is returned when reviewing a transaction that was already
// approved or rejected.
var ErrNotPending = errors.New("transaction is not pending")

// Result is what the pipeline did with a message.
type Result int

const (
	// NotDeposit means the message is not a deposit notice and should be
	// handled by another flow.
	NotDeposit Result = iota
	// Clarify means some details were found and the customer was asked for
	// the missing ones.
	Clarify
	// Duplicate means the payer already reported this reference.
	Duplicate
	// Recorded means a pending transaction was created.
	Recorded
)

func (r Result) String() string {
	switch r {
	case Clarify:
		return "clarify"
	case Duplicate:
		return "duplicate"
	case Recorded:
		return "recorded"
	default:
		return "not_deposit"
	}
}

// Handled reports whether the message was consumed by the pipeline.
func (r Result) Handled() bool {
	return r != NotDeposit
}

// Assistant is the subset of AI capabilities the pipeline uses.
type Assistant interface {
	ClassifyIsDeposit(ctx context.Context, text string) (bool, error)
	ExtractDepositFields(ctx context.Context, in ai.DepositInput) (ai.DepositFields, error)
}

// TransactionStore persists deposits.
type TransactionStore interface {
	FindTransactionByReference(ctx context.Context, referenceID string, userID uuid.UUID) (storage.Transaction, error)
	CountTransactionsByReference(ctx context.Context, referenceID string) (int, error)
	CreateTransaction(ctx context.Context, in storage.NewTransaction) (storage.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from, to string) (storage.Transaction, error)
	SumApprovedDeposits(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

// Directory resolves users and accounts for notifications.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (storage.User, error)
	GetAccount(ctx context.Context, id uuid.UUID) (storage.Account, error)
}

// MediaDownloader fetches inbound media from the messaging gateway.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, url string) ([]byte, error)
}

// ProofStore keeps receipt images.
type ProofStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Replier enqueues outbound text messages.
type Replier interface {
	SendText(credential, recipient, text string) error
}

// Input is one inbound message offered to the pipeline.
type Input struct {
	Account  storage.Account
	Payer    storage.User
	Phone    string
	Text     string
	MediaURL string
}

// Pipeline reconciles deposit notices.
type Pipeline struct {
	ai           Assistant
	transactions TransactionStore
	directory    Directory
	media        MediaDownloader
	proofs       ProofStore
	replies      Replier
	log          zerolog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(assistant Assistant, transactions TransactionStore, directory Directory,
	media MediaDownloader, proofs ProofStore, replies Replier, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		ai:           assistant,
		transactions: transactions,
		directory:    directory,
		media:        media,
		proofs:       proofs,
		replies:      replies,
		log:          log,
	}
}

// Handle decides whether in is a deposit notice and records it. Text
// messages must pass the keyword gate and a yes/no classification first;
// images always go to extraction.
func (p *Pipeline) Handle(ctx context.Context, in Input) (Result, error) {
	res, err := p.handle(ctx, in)
	if err != nil {
		NoticesTotal.WithLabelValues("error").Inc()
		return NotDeposit, err
	}
	NoticesTotal.WithLabelValues(res.String()).Inc()
	return res, nil
}

func (p *Pipeline) handle(ctx context.Context, in Input) (Result, error) {
	log := p.log.With().
		Str("account_id", in.Account.ID.String()).
		Str("payer", in.Payer.ID.String()).
		Logger()

	extractIn := ai.DepositInput{Text: in.Text}
	if in.MediaURL != "" {
		image, mimeType, err := p.fetchImage(ctx, in.MediaURL)
		if err != nil {
			return NotDeposit, err
		}
		if image == nil {
			log.Debug().Str("mime", mimeType).Msg("inbound media is not an image")
			return NotDeposit, nil
		}
		extractIn.Image = image
		extractIn.MIMEType = mimeType
	} else {
		if CountKeywords(in.Text) < MinKeywords {
			return NotDeposit, nil
		}
		ok, err := p.ai.ClassifyIsDeposit(ctx, in.Text)
		if err != nil {
			log.Warn().Err(err).Msg("deposit classification unavailable, passing message on")
			return NotDeposit, nil
		}
		if !ok {
			return NotDeposit, nil
		}
	}

	fields, err := p.ai.ExtractDepositFields(ctx, extractIn)
	if err != nil {
		return NotDeposit, fmt.Errorf("extract deposit fields: %w", err)
	}
	if fields.Empty() {
		return NotDeposit, nil
	}
	if missing := fields.Missing(); len(missing) > 0 {
		log.Info().Strs("missing", missing).Msg("incomplete deposit notice")
		return Clarify, p.reply(in.Account.Credential, in.Phone, clarifyMessage(missing))
	}

	existing, err := p.transactions.FindTransactionByReference(ctx, fields.ReferenceID, in.Payer.ID)
	switch {
	case err == nil:
		log.Info().Str("transaction_id", existing.ID.String()).Msg("duplicate deposit notice")
		return Duplicate, p.reply(in.Account.Credential, in.Phone, duplicateMessage(fields.ReferenceID))
	case !errors.Is(err, storage.ErrNotFound):
		return NotDeposit, fmt.Errorf("find transaction: %w", err)
	}

	if n, err := p.transactions.CountTransactionsByReference(ctx, fields.ReferenceID); err != nil {
		log.Warn().Err(err).Msg("failed to count transactions by reference")
	} else if n > 0 {
		log.Warn().Int("count", n).Str("reference_id", fields.ReferenceID).
			Msg("deposit reference already reported by another payer")
	}

	merchantID := in.Account.MerchantID
	if in.Payer.ParentID.Valid {
		merchantID = in.Payer.ParentID.UUID
	}

	proofKey := ""
	if extractIn.HasImage() {
		proofKey = p.storeProof(ctx, in.Account.ID, extractIn, log)
	}

	tx, err := p.transactions.CreateTransaction(ctx, storage.NewTransaction{
		UserID:          in.Payer.ID,
		MerchantID:      merchantID,
		AccountID:       in.Account.ID,
		Amount:          fields.Amount.Decimal,
		ReferenceID:     fields.ReferenceID,
		TransactionDate: fields.TransactionDate,
		TransactionTime: fields.TransactionTime,
		SourceAccount:   fields.SourceAccount,
		PaymentMethod:   fields.PaymentMethod,
		ProofKey:        proofKey,
	})
	if errors.Is(err, storage.ErrDuplicateTransaction) {
		log.Info().Msg("duplicate deposit notice caught by insert")
		return Duplicate, p.reply(in.Account.Credential, in.Phone, duplicateMessage(fields.ReferenceID))
	}
	if err != nil {
		return NotDeposit, fmt.Errorf("create transaction: %w", err)
	}

	log.Info().
		Str("transaction_id", tx.ID.String()).
		Str("merchant_id", merchantID.String()).
		Msg("pending deposit recorded")

	if err := p.reply(in.Account.Credential, in.Phone, receiptMessage(tx)); err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.ID.String()).Msg("failed to send deposit receipt")
	}
	p.notifyMerchant(ctx, in, tx, log)
	return Recorded, nil
}

// fetchImage downloads inbound media. It returns a nil image when the bytes
// are not an image.
func (p *Pipeline) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	data, err := p.media.DownloadMedia(ctx, url)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, mtype.String(), nil
	}
	return data, mtype.String(), nil
}

func (p *Pipeline) storeProof(ctx context.Context, accountID uuid.UUID, in ai.DepositInput, log zerolog.Logger) string {
	ext := ".jpg"
	if m := mimetype.Lookup(in.MIMEType); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	key := fmt.Sprintf("proofs/%s/%s%s", accountID, uuid.NewString(), ext)
	if err := p.proofs.Put(ctx, key, in.Image); err != nil {
		log.Warn().Err(err).Msg("failed to store deposit proof")
		return ""
	}
	return key
}

func (p *Pipeline) notifyMerchant(ctx context.Context, in Input, tx storage.Transaction, log zerolog.Logger) {
	merchant, err := p.directory.GetUser(ctx, tx.MerchantID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to resolve merchant for deposit notification")
		return
	}
	if merchant.Phone == "" {
		return
	}
	text := fmt.Sprintf("New deposit from %s (%s): %s, ref %s. Awaiting your approval.",
		in.Payer.Name, in.Phone, formatMoney(tx.Amount), tx.ReferenceID)
	if err := p.replies.SendText(in.Account.Credential, merchant.Phone, text); err != nil {
		log.Warn().Err(err).Msg("failed to notify merchant of deposit")
	}
}

func (p *Pipeline) reply(credential, recipient, text string) error {
	if err := p.replies.SendText(credential, recipient, text); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// Review approves or rejects a pending transaction and notifies the payer
// with their approved balance.
func (p *Pipeline) Review(ctx context.Context, transactionID uuid.UUID, approve bool) (storage.Transaction, error) {
	to := storage.TransactionRejected
	if approve {
		to = storage.TransactionApproved
	}

	tx, err := p.transactions.UpdateTransactionStatus(ctx, transactionID, storage.TransactionPending, to)
	if errors.Is(err, storage.ErrStatusConflict) {
		return storage.Transaction{}, fmt.Errorf("review %s: %w", transactionID, ErrNotPending)
	}
	if err != nil {
		return storage.Transaction{}, fmt.Errorf("review %s: %w", transactionID, err)
	}
	ReviewsTotal.WithLabelValues(to).Inc()

	log := p.log.With().
		Str("transaction_id", tx.ID.String()).
		Str("status", tx.Status).
		Logger()
	log.Info().Msg("deposit reviewed")

	p.notifyReview(ctx, tx, log)
	return tx, nil
}

func (p *Pipeline) notifyReview(ctx context.Context, tx storage.Transaction, log zerolog.Logger) {
	account, err := p.directory.GetAccount(ctx, tx.AccountID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to resolve account for review notification")
		return
	}
	payer, err := p.directory.GetUser(ctx, tx.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to resolve payer for review notification")
		return
	}
	balance, err := p.transactions.SumApprovedDeposits(ctx, tx.UserID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to sum approved deposits")
		return
	}

	if err := p.replies.SendText(account.Credential, payer.Phone, reviewMessage(tx, balance)); err != nil {
		log.Warn().Err(err).
			Str("credential", logger.MaskCredential(account.Credential)).
			Msg("failed to send review notification")
	}
}
