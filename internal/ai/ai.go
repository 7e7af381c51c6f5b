package ai

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownProvider is returned when selecting a provider name that is not
// configured.
var ErrUnknownProvider = errors.New("unknown ai provider")

// Sentiment is the polarity of a yes/no style reply.
type Sentiment int

const (
	SentimentUnknown Sentiment = iota
	SentimentPositive
	SentimentNegative
)

func (s Sentiment) String() string {
	switch s {
	case SentimentPositive:
		return "positive"
	case SentimentNegative:
		return "negative"
	default:
		return "unknown"
	}
}

// DepositInput is the content a deposit extraction runs on. Image is empty
// for text-only notices.
type DepositInput struct {
	Text     string
	Image    []byte
	MIMEType string
}

// HasImage reports whether the input carries image bytes.
func (in DepositInput) HasImage() bool {
	return len(in.Image) > 0
}

// DepositFields is what an extraction found in a deposit notice. Every field
// may be missing: Amount is invalid, TransactionDate is zero, strings empty.
type DepositFields struct {
	Amount          decimal.NullDecimal
	TransactionDate time.Time
	TransactionTime string
	ReferenceID     string
	SourceAccount   string
	PaymentMethod   string
}

// Missing returns the names of the required fields that were not extracted.
func (f DepositFields) Missing() []string {
	var missing []string
	if !f.Amount.Valid || !f.Amount.Decimal.IsPositive() {
		missing = append(missing, "amount")
	}
	if f.ReferenceID == "" {
		missing = append(missing, "reference number")
	}
	if f.TransactionDate.IsZero() {
		missing = append(missing, "transaction date")
	}
	return missing
}

// Complete reports whether amount, reference and date are all present.
func (f DepositFields) Complete() bool {
	return len(f.Missing()) == 0
}

// Empty reports whether nothing at all was extracted.
func (f DepositFields) Empty() bool {
	return !f.Amount.Valid &&
		f.TransactionDate.IsZero() &&
		f.TransactionTime == "" &&
		f.ReferenceID == "" &&
		f.SourceAccount == "" &&
		f.PaymentMethod == ""
}

// Capabilities is the set of AI operations the flows depend on.
type Capabilities interface {
	// GenerateReply produces a free-chat answer to a customer message.
	GenerateReply(ctx context.Context, text string) (string, error)
	// ClassifyIsDeposit is a strict yes/no check for a deposit notice.
	ClassifyIsDeposit(ctx context.Context, text string) (bool, error)
	ExtractDepositFields(ctx context.Context, in DepositInput) (DepositFields, error)
	ClassifyIsProductRequest(ctx context.Context, text string) (bool, error)
	// ExtractProductName returns "" when the message names no product.
	ExtractProductName(ctx context.Context, text string) (string, error)
	// ExtractQuantity returns 0 when no quantity could be read.
	ExtractQuantity(ctx context.Context, text string) (int, error)
	ClassifyPositiveNegative(ctx context.Context, text string) (Sentiment, error)
	// MatchFAQ returns the index of the question that answers text, or -1.
	MatchFAQ(ctx context.Context, text string, questions []string) (int, error)
}

// Provider is one concrete AI backend.
type Provider interface {
	Capabilities
	Name() string
}
