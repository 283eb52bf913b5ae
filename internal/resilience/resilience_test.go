package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(_ context.Context) (string, error) { return "", errors.New("boom") }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := ExecuteVal(context.Background(), cb, failing)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		t.Error("should not be called when circuit is open")
		return "", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, failing)
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	v, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Second})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, _ = ExecuteVal(context.Background(), cb, failing)
	}
	now = now.Add(2 * time.Second)
	_, _ = ExecuteVal(context.Background(), cb, failing)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_CancelledCallerDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (string, error) { return "", ctx.Err() })
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1})
	_, _ = ExecuteVal(context.Background(), cb, failing)
	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestDoVal_RetriesTransientOnly(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	var calls int32
	v, err := DoVal(context.Background(), cfg, "test", func(_ context.Context) (int, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return 0, NewTransientError(errors.New("503"), 503)
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(3), calls)

	calls = 0
	_, err = DoVal(context.Background(), cfg, "test", func(_ context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("invalid api key")
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls)
}

func TestDoVal_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}

	var calls int
	_, err := DoVal(ctx, cfg, "test", func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("timeout"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 500), true},
		{"rate limited", errors.New("POST /v1/messages: 429 Too Many Requests"), true},
		{"overloaded", errors.New("overloaded_error"), true},
		{"reset", errors.New("read: connection reset by peer"), true},
		{"auth", errors.New("401 unauthorized"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	assert.True(t, IsTransientHTTPStatus(429))
	assert.True(t, IsTransientHTTPStatus(503))
	assert.False(t, IsTransientHTTPStatus(400))
	assert.False(t, IsTransientHTTPStatus(200))
}

func TestGuard_TimeoutPerAttempt(t *testing.T) {
	g := NewGuard(GuardConfig{
		Name:    "test",
		Timeout: 10 * time.Millisecond,
		Retry:   RetryConfig{MaxAttempts: 1},
	})

	_, err := Call(context.Background(), g, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, CircuitClosed, g.Breaker().State())
}

func TestGuard_Success(t *testing.T) {
	g := NewGuard(GuardConfig{Name: "test"})
	v, err := Call(context.Background(), g, func(_ context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
