// Package poller periodically fetches new inbound messages for every active
// merchant account, deduplicates them and hands them to the router.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/wa-commerce/internal/gateway"
	"github.com/sungwon/wa-commerce/internal/inbound"
	"github.com/sungwon/wa-commerce/internal/logger"
	"github.com/sungwon/wa-commerce/internal/orchestrator"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// AccountLister lists the accounts to poll.
type AccountLister interface {
	ListActiveAccounts(ctx context.Context) ([]storage.Account, error)
}

// Fetcher reads one page of received messages from the gateway.
type Fetcher interface {
	FetchInbound(ctx context.Context, credential string, page int) (*gateway.InboundPage, error)
}

// InboundStore persists inbound messages. RecordInbound reports false when
// the message was already stored.
type InboundStore interface {
	RecordInbound(ctx context.Context, msg storage.InboundMessage) (bool, error)
}

// Handler routes a new inbound message.
type Handler interface {
	HandleInbound(ctx context.Context, account storage.Account, msg inbound.Message) orchestrator.Route
}

// Config holds poller settings.
type Config struct {
	Interval       time.Duration
	FetchTimeout   time.Duration
	MaxConcurrency int
	MaxPages       int
	// BreakerFailures is the number of consecutive fetch failures that
	// open an account's circuit for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns the default poller configuration.
func DefaultConfig() Config {
	return Config{
		Interval:        5 * time.Second,
		FetchTimeout:    10 * time.Second,
		MaxConcurrency:  8,
		MaxPages:        5,
		BreakerFailures: 5,
		BreakerTimeout:  60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.MaxPages <= 0 {
		c.MaxPages = def.MaxPages
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = def.BreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = def.BreakerTimeout
	}
	return c
}

// Poller fetches inbound messages on a fixed interval. At most one tick is
// in flight; a tick that fires while the previous one runs is skipped.
type Poller struct {
	accounts AccountLister
	fetcher  Fetcher
	store    InboundStore
	seen     SeenCache
	handler  Handler
	cfg      Config
	log      zerolog.Logger

	running atomic.Bool
	ticks   sync.WaitGroup

	mu       sync.Mutex
	breakers map[uuid.UUID]*gobreaker.CircuitBreaker
}

// New creates a Poller. A nil seen cache disables the fast path.
func New(accounts AccountLister, fetcher Fetcher, store InboundStore, seen SeenCache,
	handler Handler, cfg Config, log zerolog.Logger) *Poller {
	if seen == nil {
		seen = NopSeenCache{}
	}
	return &Poller{
		accounts: accounts,
		fetcher:  fetcher,
		store:    store,
		seen:     seen,
		handler:  handler,
		cfg:      cfg.withDefaults(),
		log:      log,
		breakers: make(map[uuid.UUID]*gobreaker.CircuitBreaker),
	}
}

// Run polls until ctx is cancelled, then waits for the in-flight tick.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().
		Dur("interval", p.cfg.Interval).
		Int("max_concurrency", p.cfg.MaxConcurrency).
		Msg("poller started")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.ticks.Wait()
			p.log.Info().Msg("poller stopped")
			return
		case <-ticker.C:
			if !p.running.CompareAndSwap(false, true) {
				TicksTotal.WithLabelValues("skipped").Inc()
				p.log.Debug().Msg("previous poll still running, skipping tick")
				continue
			}
			p.ticks.Add(1)
			go func() {
				defer p.ticks.Done()
				defer p.running.Store(false)
				p.tick(ctx)
			}()
		}
	}
}

// Tick runs one poll round unless one is already running. It reports
// whether the round ran.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		TicksTotal.WithLabelValues("skipped").Inc()
		return false
	}
	defer p.running.Store(false)
	p.tick(ctx)
	return true
}

func (p *Poller) tick(ctx context.Context) {
	TicksTotal.WithLabelValues("run").Inc()

	accounts, err := p.accounts.ListActiveAccounts(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to list accounts")
		return
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrency)
	for _, account := range accounts {
		g.Go(func() error {
			p.pollAccount(ctx, account)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) pollAccount(ctx context.Context, account storage.Account) {
	log := logger.ForCredential(p.log, account.ID.String(), account.Credential)

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	res, err := p.breaker(account.ID).Execute(func() (interface{}, error) {
		return p.fetchPages(fetchCtx, account)
	})
	cancel()
	items, _ := res.([]gateway.InboundItem)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		FetchTotal.WithLabelValues("open").Inc()
		log.Debug().Msg("account circuit open, skipping fetch")
		return
	case err != nil:
		FetchTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Int("fetched", len(items)).Msg("inbound fetch failed")
	default:
		FetchTotal.WithLabelValues("ok").Inc()
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.Before(items[j].Date)
	})
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		p.process(ctx, account, item, log)
	}
}

// fetchPages collects items from successive pages until the gateway reports
// the last page or MaxPages is reached. ctx bounds the whole account fetch.
// Items of pages fetched before an error are returned with it.
func (p *Poller) fetchPages(ctx context.Context, account storage.Account) ([]gateway.InboundItem, error) {
	var items []gateway.InboundItem
	for page := 1; page <= p.cfg.MaxPages; page++ {
		result, err := p.fetcher.FetchInbound(ctx, account.Credential, page)
		if err != nil {
			return items, fmt.Errorf("fetch page %d: %w", page, err)
		}
		items = append(items, result.Items...)
		if !result.HasMore() {
			break
		}
	}
	return items, nil
}

func (p *Poller) process(ctx context.Context, account storage.Account, item gateway.InboundItem, log zerolog.Logger) {
	msg, ok := inbound.Classify(account.ID, item)
	if !ok {
		MessagesTotal.WithLabelValues("discarded").Inc()
		return
	}

	seen, err := p.seen.Seen(ctx, account.ID, msg.ProviderID)
	if err != nil {
		log.Warn().Err(err).Msg("seen-cache lookup failed")
	}
	if seen {
		MessagesTotal.WithLabelValues("duplicate").Inc()
		return
	}

	inserted, err := p.store.RecordInbound(ctx, msg.Record())
	if err != nil {
		MessagesTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("message_id", msg.ProviderID).Msg("failed to record inbound message")
		return
	}
	if err := p.seen.Mark(ctx, account.ID, msg.ProviderID); err != nil {
		log.Warn().Err(err).Msg("seen-cache update failed")
	}
	if !inserted {
		MessagesTotal.WithLabelValues("duplicate").Inc()
		return
	}

	MessagesTotal.WithLabelValues("new").Inc()
	p.handler.HandleInbound(ctx, account, msg)
}

func (p *Poller) breaker(accountID uuid.UUID) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[accountID]; ok {
		return cb
	}
	failures := p.cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    accountID.String(),
		Timeout: p.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn().
				Str("account_id", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("account fetch circuit changed state")
		},
	})
	p.breakers[accountID] = cb
	return cb
}
