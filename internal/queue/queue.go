package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sungwon/wa-commerce/internal/logger"
)

// ErrClosed is returned by Enqueue after Shutdown has been called.
var ErrClosed = errors.New("queue closed")

// Status is a snapshot of one credential's queue.
type Status struct {
	Pending    int       `json:"pending"`
	Active     bool      `json:"active"`
	LastSentAt time.Time `json:"last_sent_at,omitzero"`
	Sent       int64     `json:"sent"`
	Retried    int64     `json:"retried"`
	Dropped    int64     `json:"dropped"`
}

// credentialQueue is the FIFO and pacing state of one credential. All fields
// are guarded by Queue.mu.
type credentialQueue struct {
	pending []*Message
	active  bool
	// generation is bumped by Clear so an in-flight failure is not re-queued.
	generation    uint64
	lastAttemptAt time.Time
	lastSentAt    time.Time
	sent          int64
	retried       int64
	dropped       int64
}

// Queue is the per-credential rate-limited outbound queue. Each credential
// gets one worker goroutine, started on first enqueue and retired when its
// queue drains. Sends within a credential are sequential and FIFO; different
// credentials run concurrently.
type Queue struct {
	handler     MessageHandler
	deadLetters DeadLetterSink
	retry       *RetryStrategy
	config      Config
	log         zerolog.Logger

	mu     sync.Mutex
	queues map[string]*credentialQueue
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Queue that sends through handler. deadLetters may be nil.
func New(handler MessageHandler, deadLetters DeadLetterSink, cfg Config, log zerolog.Logger) *Queue {
	if deadLetters == nil {
		deadLetters = NopDeadLetters{}
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		handler:     handler,
		deadLetters: deadLetters,
		retry:       NewRetryStrategy(cfg.MaxRetries),
		config:      cfg,
		log:         log,
		queues:      make(map[string]*credentialQueue),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Enqueue appends a message to the credential's queue and returns its id.
// It never blocks on the network.
func (q *Queue) Enqueue(credential, recipient string, payload Payload, kind Kind) (string, error) {
	msg := NewMessage(credential, recipient, payload, kind)
	if err := msg.Validate(); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrClosed
	}

	cq, ok := q.queues[credential]
	if !ok {
		cq = &credentialQueue{}
		q.queues[credential] = cq
	}
	cq.pending = append(cq.pending, msg)

	MessagesEnqueuedTotal.Inc()
	QueueDepth.WithLabelValues(logger.MaskCredential(credential)).Inc()

	if !cq.active {
		cq.active = true
		q.wg.Add(1)
		go q.run(credential, cq)
	}

	return msg.ID, nil
}

// Status returns a snapshot of the credential's queue. Unknown credentials
// report an empty status.
func (q *Queue) Status(credential string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	cq, ok := q.queues[credential]
	if !ok {
		return Status{}
	}
	return Status{
		Pending:    len(cq.pending),
		Active:     cq.active,
		LastSentAt: cq.lastSentAt,
		Sent:       cq.sent,
		Retried:    cq.retried,
		Dropped:    cq.dropped,
	}
}

// Clear removes every pending message of the credential and returns how many
// were removed. A message already being sent is not withdrawn, but it is not
// re-queued if that attempt fails.
func (q *Queue) Clear(credential string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cq, ok := q.queues[credential]
	if !ok {
		return 0
	}
	n := len(cq.pending)
	clear(cq.pending)
	cq.pending = nil
	cq.generation++

	QueueDepth.WithLabelValues(logger.MaskCredential(credential)).Sub(float64(n))
	q.log.Info().
		Str("credential", logger.MaskCredential(credential)).
		Int("removed", n).
		Msg("queue cleared")
	return n
}

// Shutdown stops accepting messages and waits for workers to drain their
// queues. When ctx expires first, in-flight sends are cancelled and whatever
// is still pending is abandoned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.log.Info().Msg("delivery queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.log.Warn().Int("abandoned", q.pendingTotal()).Msg("delivery queue shutdown timed out")
		return ctx.Err()
	}
}

func (q *Queue) pendingTotal() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, cq := range q.queues {
		n += len(cq.pending)
	}
	return n
}

// run is the worker loop of one credential.
func (q *Queue) run(credential string, cq *credentialQueue) {
	defer q.wg.Done()

	masked := logger.MaskCredential(credential)
	log := q.log.With().Str("credential", masked).Logger()
	depth := QueueDepth.WithLabelValues(masked)

	for {
		q.mu.Lock()
		if len(cq.pending) == 0 || q.ctx.Err() != nil {
			cq.active = false
			q.mu.Unlock()
			return
		}
		msg := cq.pending[0]
		cq.pending[0] = nil
		cq.pending = cq.pending[1:]
		gen := cq.generation
		var wait time.Duration
		if !cq.lastAttemptAt.IsZero() {
			wait = q.config.MinInterval - time.Since(cq.lastAttemptAt)
		}
		q.mu.Unlock()
		depth.Dec()

		if wait > 0 {
			if !q.sleep(wait) {
				q.requeueFront(cq, msg, gen, depth)
				continue
			}
			if q.clearedSince(cq, gen) {
				continue
			}
		}

		err := q.attempt(msg)

		letter := q.settle(cq, msg, gen, err, depth, log)
		if letter != nil {
			q.recordDeadLetter(letter, log)
		}
	}
}

// sleep waits for d or until the queue is force-stopped. It reports whether
// the full duration elapsed.
func (q *Queue) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-q.ctx.Done():
		return false
	}
}

// requeueFront puts back a message that was popped but never attempted.
func (q *Queue) requeueFront(cq *credentialQueue, msg *Message, gen uint64, depth prometheus.Gauge) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cq.generation != gen {
		return
	}
	cq.pending = append([]*Message{msg}, cq.pending...)
	depth.Inc()
}

func (q *Queue) clearedSince(cq *credentialQueue, gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cq.generation != gen
}

func (q *Queue) attempt(msg *Message) error {
	ctx, cancel := context.WithTimeout(q.ctx, q.config.SendTimeout)
	defer cancel()

	start := time.Now()
	err := q.handler.HandleMessage(ctx, msg)
	SendDuration.Observe(time.Since(start).Seconds())
	return err
}

// settle records the outcome of an attempt and decides whether the message
// goes back to the tail. It returns a dead letter when the message is dropped
// for good.
func (q *Queue) settle(cq *credentialQueue, msg *Message, gen uint64, err error, depth prometheus.Gauge, log zerolog.Logger) *DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	cq.lastAttemptAt = now

	if err == nil {
		cq.lastSentAt = now
		cq.sent++
		MessagesProcessedTotal.WithLabelValues("sent").Inc()
		log.Debug().Str("message_id", msg.ID).Str("kind", string(msg.Kind)).Msg("message sent")
		return nil
	}

	msg.RetryCount++

	switch {
	case cq.generation != gen:
		log.Info().Err(err).Str("message_id", msg.ID).Msg("send failed after queue clear, not re-queued")
		return nil

	case q.ctx.Err() != nil:
		// Force-stopped mid-send; leave it pending with the abandoned rest.
		cq.pending = append(cq.pending, msg)
		depth.Inc()
		return nil

	case errors.Is(err, ErrPermanent):
		cq.dropped++
		MessagesProcessedTotal.WithLabelValues("dropped").Inc()
		log.Error().Err(err).
			Str("message_id", msg.ID).
			Int("retry_count", msg.RetryCount).
			Msg("permanent send failure, message dropped")
		return &DeadLetter{Message: msg, Reason: ReasonPermanent, Error: err.Error(), FailedAt: now}

	case q.retry.ShouldRetry(msg.RetryCount):
		cq.pending = append(cq.pending, msg)
		cq.retried++
		depth.Inc()
		MessagesProcessedTotal.WithLabelValues("retried").Inc()
		log.Warn().Err(err).
			Str("message_id", msg.ID).
			Int("retry_count", msg.RetryCount).
			Msg("send failed, re-queued at tail")
		return nil

	default:
		cq.dropped++
		MessagesProcessedTotal.WithLabelValues("dropped").Inc()
		log.Error().Err(err).
			Str("message_id", msg.ID).
			Int("retry_count", msg.RetryCount).
			Msg("retries exhausted, message dropped")
		return &DeadLetter{Message: msg, Reason: ReasonExhausted, Error: err.Error(), FailedAt: now}
	}
}

func (q *Queue) recordDeadLetter(letter *DeadLetter, log zerolog.Logger) {
	DeadLettersTotal.WithLabelValues(letter.Reason).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.deadLetters.Record(ctx, letter); err != nil {
		log.Error().Err(err).Str("message_id", letter.Message.ID).Msg("failed to record dead letter")
	}
}
