package queue

import "time"

// Config holds delivery queue pacing and retry settings.
type Config struct {
	// MinInterval is the minimum gap between the end of one send attempt and
	// the start of the next on the same credential.
	MinInterval time.Duration
	// MaxRetries is the total number of send attempts per message.
	MaxRetries int
	// SendTimeout bounds a single send attempt.
	SendTimeout time.Duration
}

// DefaultConfig returns a Config matching the gateway's limit of three
// messages per second per credential.
func DefaultConfig() Config {
	return Config{
		MinInterval: time.Second / 3,
		MaxRetries:  3,
		SendTimeout: 30 * time.Second,
	}
}
