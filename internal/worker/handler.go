package worker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wa-commerce/internal/gateway"
	"github.com/sungwon/wa-commerce/internal/logger"
	"github.com/sungwon/wa-commerce/internal/mediastore"
	"github.com/sungwon/wa-commerce/internal/queue"
)

// storageRetryBackoff defines the backoff durations for media store reads.
var storageRetryBackoff = []time.Duration{
	200 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
}

// sender is the gateway surface used to deliver messages.
type sender interface {
	SendText(ctx context.Context, credential, recipient, text string) error
	SendImage(ctx context.Context, credential, recipient, caption, filename string, image []byte) error
}

// Handler implements queue.MessageHandler. It resolves image bytes from the
// media store and delivers messages through the gateway.
type Handler struct {
	gateway sender
	store   mediastore.Store
	log     zerolog.Logger
	backoff []time.Duration
}

// NewHandler creates a Handler that delivers queue messages via the gateway.
func NewHandler(gw sender, store mediastore.Store, log zerolog.Logger) *Handler {
	return &Handler{
		gateway: gw,
		store:   store,
		log:     log,
		backoff: storageRetryBackoff,
	}
}

// HandleMessage implements queue.MessageHandler. Failures the gateway
// classifies as permanent, and media that no longer exists, are marked with
// queue.ErrPermanent.
func (h *Handler) HandleMessage(ctx context.Context, msg *queue.Message) error {
	log := h.log.With().
		Str("credential", logger.MaskCredential(msg.Credential)).
		Str("message_id", msg.ID).
		Logger()

	var err error
	switch msg.Kind {
	case queue.KindText:
		err = h.gateway.SendText(ctx, msg.Credential, msg.Recipient, msg.Payload.Text)

	case queue.KindImage:
		var image []byte
		image, err = h.fetchMediaWithRetry(ctx, msg.Payload.MediaKey, log)
		if err != nil {
			if errors.Is(err, mediastore.ErrNotFound) || errors.Is(err, mediastore.ErrInvalidKey) {
				return fmt.Errorf("%w: fetch media %s: %w", queue.ErrPermanent, msg.Payload.MediaKey, err)
			}
			return fmt.Errorf("fetch media %s: %w", msg.Payload.MediaKey, err)
		}
		err = h.gateway.SendImage(ctx, msg.Credential, msg.Recipient, msg.Payload.Text, path.Base(msg.Payload.MediaKey), image)

	default:
		return fmt.Errorf("%w: unknown kind %q", queue.ErrPermanent, msg.Kind)
	}

	if err != nil {
		log.Warn().Err(err).
			Int("retry_count", msg.RetryCount).
			Bool("permanent", gateway.IsPermanent(err)).
			Msg("gateway send failed")
		if gateway.IsPermanent(err) {
			return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
		}
		return fmt.Errorf("gateway send: %w", err)
	}

	log.Debug().Str("kind", string(msg.Kind)).Msg("message delivered")
	return nil
}

// fetchMediaWithRetry reads a blob from the media store, retrying transient
// failures. A missing blob is returned immediately.
func (h *Handler) fetchMediaWithRetry(ctx context.Context, key string, log zerolog.Logger) ([]byte, error) {
	var lastErr error

	for attempt, delay := range h.backoff {
		data, err := h.store.Get(ctx, key)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, mediastore.ErrNotFound) || errors.Is(err, mediastore.ErrInvalidKey) {
			return nil, err
		}
		lastErr = err
		log.Warn().Err(err).
			Str("media_key", key).
			Int("attempt", attempt+1).
			Int("max_attempts", len(h.backoff)).
			Msg("media read failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("all %d media reads failed: %w", len(h.backoff), lastErr)
}
