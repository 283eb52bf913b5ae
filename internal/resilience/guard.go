package resilience

import (
	"context"
	"time"
)

// Guard combines a circuit breaker, retries and a per-attempt timeout for
// one remote provider.
type Guard struct {
	name    string
	breaker *CircuitBreaker
	retry   RetryConfig
	timeout time.Duration
}

// GuardConfig configures a Guard.
type GuardConfig struct {
	Name             string
	Timeout          time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
	Retry            RetryConfig
}

// NewGuard builds a Guard. A zero Timeout disables the per-attempt deadline.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Guard{
		name: cfg.Name,
		breaker: NewCircuitBreaker(BreakerConfig{
			Name:             cfg.Name,
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
		}),
		retry:   cfg.Retry,
		timeout: cfg.Timeout,
	}
}

// Breaker exposes the underlying circuit breaker.
func (g *Guard) Breaker() *CircuitBreaker { return g.breaker }

// Call runs fn under the guard.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	return ExecuteVal(ctx, g.breaker, func(ctx context.Context) (T, error) {
		return DoVal(ctx, g.retry, g.name, func(ctx context.Context) (T, error) {
			if g.timeout <= 0 {
				return fn(ctx)
			}
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return fn(callCtx)
		})
	})
}
