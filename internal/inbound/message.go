// Package inbound models received customer messages and classifies them
// before they are routed.
package inbound

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/wa-commerce/internal/gateway"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// Kind is the content class of an inbound message.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Message is a classified inbound message ready for routing.
type Message struct {
	ProviderID string
	AccountID  uuid.UUID
	Sender     string
	// Text is the message body, or the caption for images.
	Text     string
	MediaURL string
	Kind     Kind
	Date     time.Time
}

// IsImage reports whether the message carries media.
func (m Message) IsImage() bool {
	return m.Kind == KindImage
}

// Record converts m into its persisted form.
func (m Message) Record() storage.InboundMessage {
	return storage.InboundMessage{
		ProviderMessageID: m.ProviderID,
		AccountID:         m.AccountID,
		Sender:            m.Sender,
		Text:              m.Text,
		MediaURL:          m.MediaURL,
		Kind:              string(m.Kind),
		ProviderDate:      m.Date,
	}
}

var mediaURLPattern = regexp.MustCompile(`(?i)https?://\S+?\.(?:jpe?g|png|gif|webp)\b(?:\?\S*)?`)

// Classify turns a gateway item into a Message. An item is an image when the
// gateway reports a media URL or the text embeds one; an embedded URL is
// lifted out and the remaining text kept as caption. It reports false for
// items with no content, which must be discarded unrouted.
func Classify(accountID uuid.UUID, item gateway.InboundItem) (Message, bool) {
	msg := Message{
		ProviderID: item.ID,
		AccountID:  accountID,
		Sender:     NormalizePhone(item.Phone),
		Text:       strings.TrimSpace(item.Message),
		MediaURL:   strings.TrimSpace(item.URL),
		Kind:       KindText,
		Date:       item.Date,
	}

	if msg.MediaURL == "" {
		if loc := mediaURLPattern.FindStringIndex(msg.Text); loc != nil {
			msg.MediaURL = msg.Text[loc[0]:loc[1]]
			msg.Text = strings.Join(strings.Fields(msg.Text[:loc[0]]+" "+msg.Text[loc[1]:]), " ")
		}
	}
	if msg.MediaURL != "" {
		msg.Kind = KindImage
	}

	if msg.ProviderID == "" || msg.Sender == "" {
		return Message{}, false
	}
	if msg.Text == "" && msg.MediaURL == "" {
		return Message{}, false
	}
	return msg, true
}

// NormalizePhone strips everything but digits from a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
