package poller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/wa-commerce/internal/gateway"
	"github.com/sungwon/wa-commerce/internal/inbound"
	"github.com/sungwon/wa-commerce/internal/orchestrator"
	"github.com/sungwon/wa-commerce/internal/storage"
)

type fakeAccounts struct {
	accounts []storage.Account
}

func (f *fakeAccounts) ListActiveAccounts(context.Context) ([]storage.Account, error) {
	return f.accounts, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]*gateway.InboundPage // credential -> pages
	errAt map[string]int                    // credential -> failing page
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string][]*gateway.InboundPage),
		errAt: make(map[string]int),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) FetchInbound(_ context.Context, credential string, page int) (*gateway.InboundPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[credential]++
	if f.errAt[credential] == page {
		return nil, &gateway.Error{StatusCode: 503, Message: "unavailable"}
	}
	pages := f.pages[credential]
	if page > len(pages) {
		return &gateway.InboundPage{Page: page, LastPage: len(pages)}, nil
	}
	return pages[page-1], nil
}

func (f *fakeFetcher) callCount(credential string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[credential]
}

type fakeInboundStore struct {
	mu    sync.Mutex
	rows  map[string]bool
	calls int
}

func (s *fakeInboundStore) RecordInbound(_ context.Context, msg storage.InboundMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	key := msg.AccountID.String() + "/" + msg.ProviderMessageID
	if s.rows[key] {
		return false, nil
	}
	s.rows[key] = true
	return true, nil
}

type fakeHandler struct {
	mu      sync.Mutex
	handled []inbound.Message
	block   chan struct{}
	entered chan struct{}
}

func (h *fakeHandler) HandleInbound(_ context.Context, _ storage.Account, msg inbound.Message) orchestrator.Route {
	if h.entered != nil {
		h.entered <- struct{}{}
	}
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, msg)
	return orchestrator.RouteReply
}

func (h *fakeHandler) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, len(h.handled))
	for i, m := range h.handled {
		ids[i] = m.ProviderID
	}
	return ids
}

type fakeRedisKV struct {
	mu   sync.Mutex
	keys map[string]time.Duration
}

func (f *fakeRedisKV) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedisKV) Set(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func item(id string, minute int) gateway.InboundItem {
	return gateway.InboundItem{ID: id, Phone: "+62 812-000", Message: "hello " + id, Date: t0.Add(time.Duration(minute) * time.Minute)}
}

type testPoller struct {
	*Poller
	account storage.Account
	fetcher *fakeFetcher
	store   *fakeInboundStore
	handler *fakeHandler
}

func newTestPoller(t *testing.T, cfg Config, seen SeenCache) *testPoller {
	t.Helper()
	account := storage.Account{ID: uuid.New(), MerchantID: uuid.New(), Credential: "tok-1"}
	tp := &testPoller{
		account: account,
		fetcher: newFakeFetcher(),
		store:   &fakeInboundStore{rows: make(map[string]bool)},
		handler: &fakeHandler{},
	}
	tp.Poller = New(&fakeAccounts{accounts: []storage.Account{account}}, tp.fetcher, tp.store, seen, tp.handler, cfg, zerolog.Nop())
	return tp
}

func TestTick_ProcessesOldestFirstAcrossPages(t *testing.T) {
	tp := newTestPoller(t, DefaultConfig(), nil)
	tp.fetcher.pages["tok-1"] = []*gateway.InboundPage{
		{Items: []gateway.InboundItem{item("m4", 4), item("m3", 3)}, Page: 1, LastPage: 2},
		{Items: []gateway.InboundItem{item("m2", 2), item("m1", 1)}, Page: 2, LastPage: 2},
	}

	if !tp.Tick(t.Context()) {
		t.Fatal("Tick() = false, want true")
	}

	got := tp.handler.ids()
	want := []string{"m1", "m2", "m3", "m4"}
	if len(got) != len(want) {
		t.Fatalf("handled %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handled[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if tp.handler.handled[0].Sender != "62812000" {
		t.Errorf("Sender = %q, want normalised digits", tp.handler.handled[0].Sender)
	}
}

func TestTick_DeduplicatesAcrossTicks(t *testing.T) {
	tp := newTestPoller(t, DefaultConfig(), nil)
	tp.fetcher.pages["tok-1"] = []*gateway.InboundPage{
		{Items: []gateway.InboundItem{item("m1", 1), item("m2", 2)}, Page: 1, LastPage: 1},
	}

	tp.Tick(t.Context())
	tp.Tick(t.Context())

	if got := len(tp.handler.ids()); got != 2 {
		t.Errorf("handled %d messages, want 2", got)
	}
}

func TestTick_DiscardsEmptyItems(t *testing.T) {
	tp := newTestPoller(t, DefaultConfig(), nil)
	tp.fetcher.pages["tok-1"] = []*gateway.InboundPage{
		{Items: []gateway.InboundItem{{ID: "m1", Phone: "628", Message: "  "}, item("m2", 2)}, Page: 1, LastPage: 1},
	}

	tp.Tick(t.Context())

	if got := tp.handler.ids(); len(got) != 1 || got[0] != "m2" {
		t.Errorf("handled %v, want [m2]", got)
	}
	if tp.store.calls != 1 {
		t.Errorf("RecordInbound calls = %d, want 1", tp.store.calls)
	}
}

func TestTick_StopsAtMaxPages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPages = 2
	tp := newTestPoller(t, cfg, nil)
	tp.fetcher.pages["tok-1"] = []*gateway.InboundPage{
		{Items: []gateway.InboundItem{item("m1", 1)}, Page: 1, LastPage: 3},
		{Items: []gateway.InboundItem{item("m2", 2)}, Page: 2, LastPage: 3},
		{Items: []gateway.InboundItem{item("m3", 3)}, Page: 3, LastPage: 3},
	}

	tp.Tick(t.Context())

	if got := tp.fetcher.callCount("tok-1"); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
	if got := len(tp.handler.ids()); got != 2 {
		t.Errorf("handled %d messages, want 2", got)
	}
}

func TestTick_ProcessesPagesFetchedBeforeError(t *testing.T) {
	tp := newTestPoller(t, DefaultConfig(), nil)
	tp.fetcher.pages["tok-1"] = []*gateway.InboundPage{
		{Items: []gateway.InboundItem{item("m1", 1)}, Page: 1, LastPage: 2},
	}
	tp.fetcher.errAt["tok-1"] = 2

	tp.Tick(t.Context())

	if got := tp.handler.ids(); len(got) != 1 || got[0] != "m1" {
		t.Errorf("handled %v, want [m1]", got)
	}
}

func TestTick_SkipsWhileRunning(t *testing.T) {
	tp := newTestPoller(t, DefaultConfig(), nil)
	tp.fetcher.pages["tok-1"] = []*gateway.InboundPage{
		{Items: []gateway.InboundItem{item("m1", 1)}, Page: 1, LastPage: 1},
	}
	tp.handler.block = make(chan struct{})
	tp.handler.entered = make(chan struct{}, 1)

	done := make(chan bool)
	go func() { done <- tp.Tick(t.Context()) }()
	<-tp.handler.entered

	if tp.Tick(t.Context()) {
		t.Error("second Tick() ran while the first was in flight")
	}

	close(tp.handler.block)
	if !<-done {
		t.Error("first Tick() = false, want true")
	}
	if !tp.Tick(t.Context()) {
		t.Error("Tick() after completion = false, want true")
	}
}

func TestTick_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerFailures = 2
	cfg.BreakerTimeout = time.Hour
	tp := newTestPoller(t, cfg, nil)
	tp.fetcher.errAt["tok-1"] = 1

	for range 4 {
		tp.Tick(t.Context())
	}

	if got := tp.fetcher.callCount("tok-1"); got != 2 {
		t.Errorf("fetch calls = %d, want 2 before the circuit opened", got)
	}
}

func TestTick_SeenCacheShortCircuitsStore(t *testing.T) {
	kv := &fakeRedisKV{keys: make(map[string]time.Duration)}
	tp := newTestPoller(t, DefaultConfig(), NewRedisSeenCache(kv, 0))
	tp.fetcher.pages["tok-1"] = []*gateway.InboundPage{
		{Items: []gateway.InboundItem{item("m1", 1)}, Page: 1, LastPage: 1},
	}

	tp.Tick(t.Context())
	tp.Tick(t.Context())

	if tp.store.calls != 1 {
		t.Errorf("RecordInbound calls = %d, want 1", tp.store.calls)
	}
	key := "inbound:" + tp.account.ID.String() + ":m1"
	if ttl, ok := kv.keys[key]; !ok || ttl != 24*time.Hour {
		t.Errorf("seen key %q ttl = %v (present %v), want 24h", key, ttl, ok)
	}
	if got := len(tp.handler.ids()); got != 1 {
		t.Errorf("handled %d messages, want 1", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	tp := newTestPoller(t, cfg, nil)
	tp.fetcher.pages["tok-1"] = []*gateway.InboundPage{
		{Items: []gateway.InboundItem{item("m1", 1)}, Page: 1, LastPage: 1},
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		tp.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(tp.handler.ids()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no message handled before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

// slowFetcher serves endless pages, each taking delay unless ctx ends first.
type slowFetcher struct {
	delay time.Duration
	mu    sync.Mutex
	pages int
}

func (f *slowFetcher) FetchInbound(ctx context.Context, _ string, page int) (*gateway.InboundPage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}
	f.mu.Lock()
	f.pages++
	f.mu.Unlock()
	return &gateway.InboundPage{
		Items:    []gateway.InboundItem{item(fmt.Sprintf("p%d", page), page)},
		Page:     page,
		LastPage: 5,
	}, nil
}

func TestTick_FetchTimeoutBoundsWholeAccount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FetchTimeout = 100 * time.Millisecond
	cfg.MaxPages = 5
	tp := newTestPoller(t, cfg, nil)
	slow := &slowFetcher{delay: 80 * time.Millisecond}
	tp.Poller.fetcher = slow

	start := time.Now()
	tp.Tick(t.Context())
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Errorf("account fetch took %v, want it bounded by FetchTimeout %v", elapsed, cfg.FetchTimeout)
	}
	if got := tp.handler.ids(); len(got) != 1 || got[0] != "p1" {
		t.Errorf("handled %v, want the page fetched before the deadline [p1]", got)
	}
}
