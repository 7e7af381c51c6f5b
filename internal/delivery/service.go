// Package delivery is the reply facade the conversation flows use to hand
// outbound messages to the delivery queue.
package delivery

import (
	"github.com/rs/zerolog"

	"github.com/sungwon/wa-commerce/internal/logger"
	"github.com/sungwon/wa-commerce/internal/queue"
)

// Enqueuer accepts outbound messages for asynchronous delivery.
type Enqueuer interface {
	Enqueue(credential, recipient string, payload queue.Payload, kind queue.Kind) (string, error)
}

// Service enqueues replies for background delivery. Sends are fire and
// forget: once enqueued, retries and exhaustion are the queue's concern.
type Service struct {
	enqueuer Enqueuer
	log      zerolog.Logger
}

// NewService creates a Service backed by the given Enqueuer.
func NewService(enqueuer Enqueuer, log zerolog.Logger) *Service {
	return &Service{
		enqueuer: enqueuer,
		log:      log,
	}
}

// SendText enqueues a text reply.
func (s *Service) SendText(credential, recipient, text string) error {
	return s.enqueue(credential, recipient, queue.Payload{Text: text}, queue.KindText)
}

// SendImage enqueues an image reply referencing a media store key.
func (s *Service) SendImage(credential, recipient, mediaKey, caption string) error {
	return s.enqueue(credential, recipient, queue.Payload{Text: caption, MediaKey: mediaKey}, queue.KindImage)
}

func (s *Service) enqueue(credential, recipient string, payload queue.Payload, kind queue.Kind) error {
	id, err := s.enqueuer.Enqueue(credential, recipient, payload, kind)
	if err != nil {
		s.log.Error().Err(err).
			Str("credential", logger.MaskCredential(credential)).
			Str("kind", string(kind)).
			Msg("failed to enqueue reply")
		return err
	}

	s.log.Debug().
		Str("credential", logger.MaskCredential(credential)).
		Str("message_id", id).
		Str("kind", string(kind)).
		Msg("reply enqueued")
	return nil
}
