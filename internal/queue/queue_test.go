package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type attempt struct {
	text  string
	start time.Time
	end   time.Time
}

// recordingHandler records every attempt and fails according to failFn.
type recordingHandler struct {
	mu       sync.Mutex
	attempts map[string][]attempt
	failFn   func(msg *Message) error
	block    map[string]chan struct{}
	started  chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		attempts: make(map[string][]attempt),
		block:    make(map[string]chan struct{}),
		started:  make(chan string, 64),
	}
}

func (h *recordingHandler) HandleMessage(ctx context.Context, msg *Message) error {
	start := time.Now()
	h.started <- msg.Payload.Text

	h.mu.Lock()
	gate := h.block[msg.Payload.Text]
	h.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	var err error
	if h.failFn != nil {
		err = h.failFn(msg)
	}

	h.mu.Lock()
	h.attempts[msg.Credential] = append(h.attempts[msg.Credential], attempt{text: msg.Payload.Text, start: start, end: time.Now()})
	h.mu.Unlock()
	return err
}

func (h *recordingHandler) get(credential string) []attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]attempt(nil), h.attempts[credential]...)
}

func (h *recordingHandler) texts(credential string) []string {
	var out []string
	for _, a := range h.get(credential) {
		out = append(out, a.text)
	}
	return out
}

type memoryDeadLetters struct {
	mu      sync.Mutex
	letters []*DeadLetter
}

func (m *memoryDeadLetters) Record(_ context.Context, letter *DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = append(m.letters, letter)
	return nil
}

func (m *memoryDeadLetters) all() []*DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*DeadLetter(nil), m.letters...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func testConfig(interval time.Duration) Config {
	return Config{MinInterval: interval, MaxRetries: 3, SendTimeout: time.Second}
}

func TestEnqueue_RejectsMalformedInput(t *testing.T) {
	q := New(newRecordingHandler(), nil, testConfig(time.Millisecond), zerolog.Nop())
	defer q.Shutdown(t.Context())

	tests := []struct {
		name       string
		credential string
		recipient  string
		payload    Payload
		kind       Kind
	}{
		{"empty credential", "", "1", Payload{Text: "x"}, KindText},
		{"empty recipient", "tok", "", Payload{Text: "x"}, KindText},
		{"empty text", "tok", "1", Payload{}, KindText},
		{"image without key", "tok", "1", Payload{Text: "caption"}, KindImage},
		{"unknown kind", "tok", "1", Payload{Text: "x"}, Kind("audio")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := q.Enqueue(tt.credential, tt.recipient, tt.payload, tt.kind)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Enqueue() error = %v, want ErrInvalidMessage", err)
			}
			if id != "" {
				t.Errorf("Enqueue() id = %q, want empty", id)
			}
		})
	}
}

func TestQueue_PacesSendsPerCredential(t *testing.T) {
	const interval = 25 * time.Millisecond
	h := newRecordingHandler()
	q := New(h, nil, testConfig(interval), zerolog.Nop())
	defer q.Shutdown(t.Context())

	for i := range 5 {
		if _, err := q.Enqueue("tok", "628111", Payload{Text: fmt.Sprintf("m%d", i)}, KindText); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return len(h.get("tok")) == 5 })

	got := h.get("tok")
	for i := 1; i < len(got); i++ {
		gap := got[i].start.Sub(got[i-1].end)
		if gap < interval {
			t.Errorf("gap between send %d and %d = %v, want >= %v", i-1, i, gap, interval)
		}
	}
}

func TestQueue_PreservesFIFOOrder(t *testing.T) {
	h := newRecordingHandler()
	q := New(h, nil, testConfig(time.Millisecond), zerolog.Nop())
	defer q.Shutdown(t.Context())

	want := []string{"a", "b", "c", "d", "e", "f"}
	for _, text := range want {
		if _, err := q.Enqueue("tok", "1", Payload{Text: text}, KindText); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return len(h.get("tok")) == len(want) })

	got := h.texts("tok")
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("send order = %v, want %v", got, want)
		}
	}
}

func TestQueue_RetryBudgetThenDeadLetter(t *testing.T) {
	h := newRecordingHandler()
	h.failFn = func(*Message) error { return errors.New("gateway unavailable") }
	dl := &memoryDeadLetters{}
	q := New(h, dl, testConfig(time.Millisecond), zerolog.Nop())
	defer q.Shutdown(t.Context())

	if _, err := q.Enqueue("tok", "1", Payload{Text: "doomed"}, KindText); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(dl.all()) == 1 })

	if n := len(h.get("tok")); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	letter := dl.all()[0]
	if letter.Reason != ReasonExhausted {
		t.Errorf("dead letter reason = %q, want %q", letter.Reason, ReasonExhausted)
	}
	if letter.Message.RetryCount != 3 {
		t.Errorf("dead letter retry count = %d, want 3", letter.Message.RetryCount)
	}

	waitFor(t, time.Second, func() bool { return !q.Status("tok").Active })
	st := q.Status("tok")
	if st.Dropped != 1 || st.Retried != 2 || st.Pending != 0 || st.Sent != 0 {
		t.Errorf("Status() = %+v, want dropped=1 retried=2 pending=0 sent=0", st)
	}
}

func TestQueue_FailedMessageMovesToTail(t *testing.T) {
	h := newRecordingHandler()
	var failedOnce sync.Once
	h.failFn = func(msg *Message) error {
		var err error
		if msg.Payload.Text == "a" {
			failedOnce.Do(func() { err = errors.New("timeout") })
		}
		return err
	}
	q := New(h, nil, testConfig(time.Millisecond), zerolog.Nop())
	defer q.Shutdown(t.Context())

	for _, text := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue("tok", "1", Payload{Text: text}, KindText); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return len(h.get("tok")) == 4 })

	got := h.texts("tok")
	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("attempt order = %v, want %v", got, want)
		}
	}
	if st := q.Status("tok"); st.Sent != 3 || st.Retried != 1 {
		t.Errorf("Status() = %+v, want sent=3 retried=1", st)
	}
}

func TestQueue_PermanentFailureSkipsRetries(t *testing.T) {
	h := newRecordingHandler()
	h.failFn = func(*Message) error {
		return fmt.Errorf("%w: number not registered", ErrPermanent)
	}
	dl := &memoryDeadLetters{}
	q := New(h, dl, testConfig(time.Millisecond), zerolog.Nop())
	defer q.Shutdown(t.Context())

	if _, err := q.Enqueue("tok", "1", Payload{Text: "x"}, KindText); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(dl.all()) == 1 })

	if n := len(h.get("tok")); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
	if dl.all()[0].Reason != ReasonPermanent {
		t.Errorf("reason = %q, want %q", dl.all()[0].Reason, ReasonPermanent)
	}
}

func TestQueue_ClearRemovesPendingAndDropsInFlightFailure(t *testing.T) {
	h := newRecordingHandler()
	gate := make(chan struct{})
	h.block["first"] = gate
	h.failFn = func(*Message) error { return errors.New("transient") }
	dl := &memoryDeadLetters{}
	q := New(h, dl, testConfig(time.Millisecond), zerolog.Nop())
	defer q.Shutdown(t.Context())

	for _, text := range []string{"first", "second", "third"} {
		if _, err := q.Enqueue("tok", "1", Payload{Text: text}, KindText); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	select {
	case <-h.started:
	case <-time.After(time.Second):
		t.Fatal("first send never started")
	}

	if n := q.Clear("tok"); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	close(gate)

	waitFor(t, time.Second, func() bool { return !q.Status("tok").Active })

	if got := h.texts("tok"); len(got) != 1 || got[0] != "first" {
		t.Errorf("attempts = %v, want only the in-flight message", got)
	}
	if st := q.Status("tok"); st.Pending != 0 {
		t.Errorf("Status().Pending = %d, want 0", st.Pending)
	}
	if len(dl.all()) != 0 {
		t.Errorf("expected no dead letters after clear, got %d", len(dl.all()))
	}
}

func TestQueue_ClearUnknownCredential(t *testing.T) {
	q := New(newRecordingHandler(), nil, testConfig(time.Millisecond), zerolog.Nop())
	if n := q.Clear("nobody"); n != 0 {
		t.Errorf("Clear() = %d, want 0", n)
	}
	if st := q.Status("nobody"); st != (Status{}) {
		t.Errorf("Status() = %+v, want zero", st)
	}
}

func TestQueue_CredentialsRunIndependently(t *testing.T) {
	h := newRecordingHandler()
	gate := make(chan struct{})
	h.block["slow"] = gate
	q := New(h, nil, testConfig(time.Millisecond), zerolog.Nop())
	defer func() {
		close(gate)
		q.Shutdown(t.Context())
	}()

	if _, err := q.Enqueue("tok-a", "1", Payload{Text: "slow"}, KindText); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	<-h.started

	for _, text := range []string{"b1", "b2"} {
		if _, err := q.Enqueue("tok-b", "1", Payload{Text: text}, KindText); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	waitFor(t, time.Second, func() bool { return len(h.get("tok-b")) == 2 })

	if len(h.get("tok-a")) != 0 {
		t.Error("blocked credential should not have completed")
	}
}

func TestQueue_WorkerRetiresAndRestarts(t *testing.T) {
	h := newRecordingHandler()
	q := New(h, nil, testConfig(time.Millisecond), zerolog.Nop())
	defer q.Shutdown(t.Context())

	if _, err := q.Enqueue("tok", "1", Payload{Text: "one"}, KindText); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitFor(t, time.Second, func() bool { return q.Status("tok").Sent == 1 && !q.Status("tok").Active })

	if q.Status("tok").LastSentAt.IsZero() {
		t.Error("LastSentAt not recorded")
	}

	if _, err := q.Enqueue("tok", "1", Payload{Text: "two"}, KindText); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitFor(t, time.Second, func() bool { return q.Status("tok").Sent == 2 })
}

func TestQueue_ShutdownDrainsAndRejects(t *testing.T) {
	h := newRecordingHandler()
	q := New(h, nil, testConfig(time.Millisecond), zerolog.Nop())

	for _, text := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue("tok", "1", Payload{Text: text}, KindText); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if n := len(h.get("tok")); n != 3 {
		t.Errorf("attempts after shutdown = %d, want 3", n)
	}
	if _, err := q.Enqueue("tok", "1", Payload{Text: "late"}, KindText); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() after shutdown error = %v, want ErrClosed", err)
	}
}

func TestQueue_ShutdownTimeoutCancelsInFlight(t *testing.T) {
	h := newRecordingHandler()
	h.block["stuck"] = make(chan struct{})
	q := New(h, nil, Config{MinInterval: time.Millisecond, MaxRetries: 3, SendTimeout: time.Minute}, zerolog.Nop())

	if _, err := q.Enqueue("tok", "1", Payload{Text: "stuck"}, KindText); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	<-h.started

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if err := q.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() error = %v, want deadline exceeded", err)
	}
}
