package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProviderStatus is the call health of one configured provider.
type ProviderStatus struct {
	Name                string    `json:"name"`
	Active              bool      `json:"active"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitzero"`
}

type providerHealth struct {
	consecutiveFailures int
	lastError           string
	lastFailureAt       time.Time
}

// Gateway routes every capability call to the active provider. When a call
// fails it switches the active provider to the standby and retries that call
// once. The switch is sticky: there is no automatic failback.
type Gateway struct {
	providers []Provider
	log       zerolog.Logger

	mu     sync.RWMutex
	active int
	health []providerHealth
}

// NewGateway creates a gateway over the given providers with the named one
// active. At least one provider is required.
func NewGateway(providers []Provider, active string, log zerolog.Logger) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, errors.New("ai gateway: no providers configured")
	}
	g := &Gateway{
		providers: providers,
		log:       log,
		health:    make([]providerHealth, len(providers)),
	}
	idx, ok := g.indexOf(active)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, active)
	}
	g.active = idx
	return g, nil
}

func (g *Gateway) indexOf(name string) (int, bool) {
	for i, p := range g.providers {
		if p.Name() == name {
			return i, true
		}
	}
	return 0, false
}

// Active returns the name of the provider calls currently go to.
func (g *Gateway) Active() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.providers[g.active].Name()
}

// SetActive selects the active provider by name.
func (g *Gateway) SetActive(name string) error {
	idx, ok := g.indexOf(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	g.mu.Lock()
	prev := g.providers[g.active].Name()
	g.active = idx
	g.mu.Unlock()

	g.log.Info().Str("from", prev).Str("provider", name).Msg("ai provider selected")
	return nil
}

// Statuses returns a snapshot of every provider's call health.
func (g *Gateway) Statuses() []ProviderStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ProviderStatus, len(g.providers))
	for i, p := range g.providers {
		h := g.health[i]
		out[i] = ProviderStatus{
			Name:                p.Name(),
			Active:              i == g.active,
			ConsecutiveFailures: h.consecutiveFailures,
			LastError:           h.lastError,
			LastFailureAt:       h.lastFailureAt,
		}
	}
	return out
}

// observe updates the call health of provider idx. Callers hold g.mu.
func (g *Gateway) observe(idx int, op string, err error) {
	name := g.providers[idx].Name()
	h := &g.health[idx]
	if err == nil {
		h.consecutiveFailures = 0
		CallsTotal.WithLabelValues(name, op, "success").Inc()
		return
	}
	h.consecutiveFailures++
	h.lastError = err.Error()
	h.lastFailureAt = time.Now()
	CallsTotal.WithLabelValues(name, op, "error").Inc()
}

// settle records a first attempt on provider idx. On failure of the provider
// that is still active it switches to the next one, unless the caller gave
// up. It returns the index the retry should use, or -1 when there is nothing
// to retry on.
func (g *Gateway) settle(ctx context.Context, idx int, op string, err error) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.observe(idx, op, err)
	if err == nil || ctx.Err() != nil || len(g.providers) < 2 {
		return -1
	}
	if g.active == idx {
		from := g.providers[idx].Name()
		g.active = (idx + 1) % len(g.providers)
		to := g.providers[g.active].Name()
		FailoversTotal.WithLabelValues(from, to).Inc()
		g.log.Warn().Err(err).
			Str("operation", op).
			Str("from", from).
			Str("provider", to).
			Msg("ai provider failed, switching active provider")
	}
	if g.active == idx {
		return -1
	}
	return g.active
}

func (g *Gateway) current() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// invoke runs fn against the active provider, failing over once. A failed
// retry does not switch again; the next call will.
func invoke[T any](ctx context.Context, g *Gateway, op string, fn func(Provider) (T, error)) (T, error) {
	idx := g.current()
	res, err := fn(g.providers[idx])
	next := g.settle(ctx, idx, op, err)
	if err == nil {
		return res, nil
	}
	if next < 0 {
		return res, fmt.Errorf("ai %s via %s: %w", op, g.providers[idx].Name(), err)
	}

	res, retryErr := fn(g.providers[next])
	g.mu.Lock()
	g.observe(next, op, retryErr)
	g.mu.Unlock()
	if retryErr != nil {
		return res, fmt.Errorf("ai %s failed on %s and %s: %w",
			op, g.providers[idx].Name(), g.providers[next].Name(), errors.Join(err, retryErr))
	}
	return res, nil
}

func (g *Gateway) GenerateReply(ctx context.Context, text string) (string, error) {
	return invoke(ctx, g, "generate_reply", func(p Provider) (string, error) {
		return p.GenerateReply(ctx, text)
	})
}

func (g *Gateway) ClassifyIsDeposit(ctx context.Context, text string) (bool, error) {
	return invoke(ctx, g, "classify_is_deposit", func(p Provider) (bool, error) {
		return p.ClassifyIsDeposit(ctx, text)
	})
}

func (g *Gateway) ExtractDepositFields(ctx context.Context, in DepositInput) (DepositFields, error) {
	return invoke(ctx, g, "extract_deposit_fields", func(p Provider) (DepositFields, error) {
		return p.ExtractDepositFields(ctx, in)
	})
}

func (g *Gateway) ClassifyIsProductRequest(ctx context.Context, text string) (bool, error) {
	return invoke(ctx, g, "classify_is_product_request", func(p Provider) (bool, error) {
		return p.ClassifyIsProductRequest(ctx, text)
	})
}

func (g *Gateway) ExtractProductName(ctx context.Context, text string) (string, error) {
	return invoke(ctx, g, "extract_product_name", func(p Provider) (string, error) {
		return p.ExtractProductName(ctx, text)
	})
}

func (g *Gateway) ExtractQuantity(ctx context.Context, text string) (int, error) {
	return invoke(ctx, g, "extract_quantity", func(p Provider) (int, error) {
		return p.ExtractQuantity(ctx, text)
	})
}

func (g *Gateway) ClassifyPositiveNegative(ctx context.Context, text string) (Sentiment, error) {
	return invoke(ctx, g, "classify_positive_negative", func(p Provider) (Sentiment, error) {
		return p.ClassifyPositiveNegative(ctx, text)
	})
}

func (g *Gateway) MatchFAQ(ctx context.Context, text string, questions []string) (int, error) {
	return invoke(ctx, g, "match_faq", func(p Provider) (int, error) {
		return p.MatchFAQ(ctx, text, questions)
	})
}
