package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	shardCount = 32

	DefaultTTL           = 600 * time.Second
	DefaultSweepInterval = time.Minute
)

type shard struct {
	mu       sync.Mutex
	sessions map[Key]*Session
}

// Store holds sessions in a lock-sharded map. Sessions idle for longer than
// the TTL are dropped by the sweep and replaced by a fresh idle session on
// lookup.
type Store struct {
	shards [shardCount]*shard
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewStore creates an empty store. A non-positive ttl uses DefaultTTL.
func NewStore(ttl time.Duration, log zerolog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{ttl: ttl, now: time.Now, log: log}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[Key]*Session)}
	}
	return s
}

func (s *Store) shardFor(key Key) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.Phone))
	_, _ = h.Write(key.AccountID[:])
	return s.shards[h.Sum32()%shardCount]
}

// expired must be called with the session's shard locked.
func (s *Store) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.seen) > s.ttl
}

// lookup returns the live session for key, creating one when it is missing
// or expired, and marks it as just used.
func (s *Store) lookup(key Key) *Session {
	sh := s.shardFor(key)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.sessions[key]
	if !ok || s.expired(sess, now) {
		if ok {
			SessionsExpiredTotal.Inc()
		} else {
			ActiveSessions.Inc()
		}
		sess = newSession(key, now)
		sh.sessions[key] = sess
		return sess
	}
	sess.seen = now
	return sess
}

func (s *Store) touch(sess *Session) {
	sh := s.shardFor(sess.Key)
	sh.mu.Lock()
	sess.seen = s.now()
	sh.mu.Unlock()
}

// Do runs fn with exclusive access to the session of key. Messages of one
// customer are therefore handled one at a time.
func (s *Store) Do(key Key, fn func(*Session) error) error {
	sess := s.lookup(key)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.LastInteraction = s.now()
	err := fn(sess)
	s.touch(sess)
	return err
}

// Peek returns the state of key without creating a session. Expired sessions
// report idle.
func (s *Store) Peek(key Key) State {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sess, ok := sh.sessions[key]
	live := ok && !s.expired(sess, s.now())
	sh.mu.Unlock()
	if !live {
		return StateIdle
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.State
}

// Len returns the number of stored sessions, expired ones included until
// the next sweep.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

// Sweep drops sessions idle beyond the TTL and returns how many were
// dropped. Sessions currently held by Do are skipped.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, sess := range sh.sessions {
			if !sess.mu.TryLock() {
				continue
			}
			if s.expired(sess, now) {
				delete(sh.sessions, key)
				removed++
			}
			sess.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		ActiveSessions.Sub(float64(removed))
		SessionsExpiredTotal.Add(float64(removed))
		s.log.Debug().Int("removed", removed).Msg("expired order sessions swept")
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
