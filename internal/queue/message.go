package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMessage is returned by Enqueue for malformed input.
var ErrInvalidMessage = errors.New("invalid message")

// Kind is the outbound message type.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Payload is the content of an outbound message. Images are referenced by
// their media store key and resolved at send time.
type Payload struct {
	Text     string `json:"text,omitempty"`
	MediaKey string `json:"media_key,omitempty"`
}

// Message is an outbound message owned by one credential's queue.
type Message struct {
	ID         string    `json:"id"`
	Credential string    `json:"-"`
	Recipient  string    `json:"recipient"`
	Payload    Payload   `json:"payload"`
	Kind       Kind      `json:"kind"`
	RetryCount int       `json:"retry_count"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewMessage creates a Message with a generated UUID and the current time.
func NewMessage(credential, recipient string, payload Payload, kind Kind) *Message {
	return &Message{
		ID:         uuid.New().String(),
		Credential: credential,
		Recipient:  recipient,
		Payload:    payload,
		Kind:       kind,
		EnqueuedAt: time.Now(),
	}
}

// Validate reports whether the message can be sent.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Credential) == "" {
		return fmt.Errorf("%w: empty credential", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidMessage)
	}
	switch m.Kind {
	case KindText:
		if strings.TrimSpace(m.Payload.Text) == "" {
			return fmt.Errorf("%w: empty text", ErrInvalidMessage)
		}
	case KindImage:
		if m.Payload.MediaKey == "" {
			return fmt.Errorf("%w: image without media key", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	return nil
}
