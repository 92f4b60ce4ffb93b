package guard

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
)

// RetryConfig bounds how a failed operation is retried.
type RetryConfig struct {
	// MaxAttempts counts the first call.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BackoffFactor multiplies the delay after every failed attempt.
	BackoffFactor float64
	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64
	// RetryIf decides whether an error is worth another attempt.
	// Retryable is used when nil.
	RetryIf func(error) bool
	// OnRetry observes each retry before its delay.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultRetryConfig makes three attempts, 100ms apart and doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2,
		Jitter:         0.1,
		RetryIf:        Retryable,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = def.BackoffFactor
	}
	if c.RetryIf == nil {
		c.RetryIf = Retryable
	}
	return c
}

// Retryable reports whether err may succeed on another attempt: an
// AppError says so itself, cancellation never does and any other error
// is assumed transient.
func Retryable(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Retryable
	}
	return true
}

// Retry calls fn until it succeeds, returns an error RetryIf rejects, or
// MaxAttempts is used up; it then returns fn's last result. Cancelling
// ctx ends the wait between attempts with ctx's error.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := fn()
		if err == nil || attempt >= cfg.MaxAttempts || !cfg.RetryIf(err) {
			return out, err
		}

		delay := cfg.backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// backoff is the delay after the given failed attempt: exponential,
// jittered, capped at MaxBackoff.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 1; i < attempt && d < float64(c.MaxBackoff); i++ {
		d *= c.BackoffFactor
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (2*rand.Float64() - 1)
	}
	return min(time.Duration(d), c.MaxBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
