package queue

import "context"

// MessageHandler performs a single send attempt for a queued message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *Message) error
}

// DeadLetterSink records messages the queue gave up on.
type DeadLetterSink interface {
	Record(ctx context.Context, letter *DeadLetter) error
}
