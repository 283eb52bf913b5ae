// Package llm provides the remote model behind classification and
// normalization: provider adapters, rate limiting, a circuit breaker and a
// tolerant JSON decoder for model output.
package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/formpilot/internal/resilience"
)

// ErrDisabled means no provider is configured.
var ErrDisabled = eris.New("llm: remote model disabled")

// Request is one prompt to the remote model.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int64
}

// Completer returns the model's text reply to a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// GuardOptions tunes Guarded.
type GuardOptions struct {
	RatePerSec       float64
	Burst            int
	Timeout          time.Duration
	BreakerFailures  int
	BreakerResetSecs int
}

// Guarded rate limits a Completer and runs every call through a circuit
// breaker with retries and a per-attempt timeout.
type Guarded struct {
	inner   Completer
	limiter *rate.Limiter
	guard   *resilience.Guard
}

// NewGuarded wraps inner.
func NewGuarded(inner Completer, opts GuardOptions) *Guarded {
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Guarded{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
		guard: resilience.NewGuard(resilience.GuardConfig{
			Name:             "llm:" + inner.Name(),
			Timeout:          opts.Timeout,
			FailureThreshold: opts.BreakerFailures,
			ResetTimeout:     time.Duration(opts.BreakerResetSecs) * time.Second,
		}),
	}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) Complete(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "llm: rate limiter wait")
	}
	start := time.Now()
	out, err := resilience.Call(ctx, g.guard, func(ctx context.Context) (string, error) {
		return g.inner.Complete(ctx, req)
	})
	if err != nil {
		return "", eris.Wrapf(err, "llm: %s", g.inner.Name())
	}
	zap.L().Debug("llm: completion",
		zap.String("provider", g.inner.Name()),
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Int("reply_chars", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// Breaker exposes the circuit breaker for status reporting.
func (g *Guarded) Breaker() *resilience.CircuitBreaker { return g.guard.Breaker() }
