package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultDeadLetterCap bounds each credential's dead-letter list.
const defaultDeadLetterCap = 1000

// Dead-letter reasons.
const (
	ReasonExhausted = "retries_exhausted"
	ReasonPermanent = "permanent_failure"
)

// DeadLetter is a message the queue gave up on, with failure metadata.
type DeadLetter struct {
	Message  *Message  `json:"message"`
	Reason   string    `json:"reason"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// NopDeadLetters discards dead letters. Used when Redis is not configured.
type NopDeadLetters struct{}

// Record implements DeadLetterSink.
func (NopDeadLetters) Record(context.Context, *DeadLetter) error { return nil }

// redisLister is the subset of the Redis client used for dead letters.
type redisLister interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// RedisDeadLetters keeps the most recent dead letters of each credential in a
// capped Redis list.
type RedisDeadLetters struct {
	client redisLister
	cap    int64
}

// NewRedisDeadLetters creates a RedisDeadLetters keeping up to capacity
// entries per credential. A non-positive capacity uses the default.
func NewRedisDeadLetters(client redisLister, capacity int) *RedisDeadLetters {
	if capacity <= 0 {
		capacity = defaultDeadLetterCap
	}
	return &RedisDeadLetters{client: client, cap: int64(capacity)}
}

// Record implements DeadLetterSink.
func (d *RedisDeadLetters) Record(ctx context.Context, letter *DeadLetter) error {
	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	key := deadLetterKey(letter.Message.Credential)
	if err := d.client.LPush(ctx, key, string(data)).Err(); err != nil {
		return fmt.Errorf("lpush dead letter: %w", err)
	}
	if err := d.client.LTrim(ctx, key, 0, d.cap-1).Err(); err != nil {
		return fmt.Errorf("ltrim dead letters: %w", err)
	}
	return nil
}

// List returns up to limit of the credential's most recent dead letters,
// newest first.
func (d *RedisDeadLetters) List(ctx context.Context, credential string, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := d.client.LRange(ctx, deadLetterKey(credential), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange dead letters: %w", err)
	}

	letters := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			continue
		}
		letters = append(letters, dl)
	}
	return letters, nil
}

// deadLetterKey derives the list key from a credential fingerprint so the
// token itself never lands in Redis.
func deadLetterKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return "dlq:" + hex.EncodeToString(sum[:8])
}
