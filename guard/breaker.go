package guard

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/dag"
	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// ErrCircuitOpen is the cause of every call rejected by an open breaker.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker fails calls to a collaborator fast once it has failed
// MaxFailures times in a row.
type Breaker struct {
	name          string
	maxFailures   int
	cooldown      time.Duration
	halfOpenCalls int
	now           func() time.Time
	log           *logger.Logger

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	probes      int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker. cfg is defaulted.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	cfg.ApplyDefaults()
	cooldown, err := time.ParseDuration(cfg.Cooldown)
	if err != nil || cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		name:          name,
		maxFailures:   cfg.MaxFailures,
		cooldown:      cooldown,
		halfOpenCalls: cfg.HalfOpenCalls,
		now:           time.Now,
		log:           logger.WithComponent("guard"),
	}
}

// WithClock overrides the breaker's clock.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probes < b.halfOpenCalls {
			b.probes++
			return true
		}
	}
	return false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !trips(err) {
		switch b.current() {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.halfOpenCalls {
				b.to(StateClosed)
			}
		}
		return
	}

	b.failures++
	b.lastFailure = b.now()
	switch b.current() {
	case StateClosed:
		if b.failures >= b.maxFailures {
			b.to(StateOpen)
		}
	case StateHalfOpen:
		b.to(StateOpen)
	}
}

// current moves an open breaker to half-open once the cool-down passed.
// Callers hold mu.
func (b *Breaker) current() BreakerState {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.cooldown {
		b.to(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) to(state BreakerState) {
	if b.state == state {
		return
	}
	from := b.state
	b.state = state
	b.successes, b.probes = 0, 0
	if state == StateClosed {
		b.failures = 0
	}
	b.log.Warn("circuit breaker state changed", logger.Fields(
		logger.FieldFunction, b.name,
		"from", from.String(),
		"to", state.String(),
	))
}

// trips reports whether err counts against the collaborator. Caller
// mistakes and cancellation do not; unexpected and retryable errors do.
func trips(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Retryable || appErr.HTTPStatus >= 500
	}
	return true
}

// CircuitBreak guards fn with b. While the breaker is open calls fail
// with SERVICE_UNAVAILABLE wrapping ErrCircuitOpen and fn is not invoked.
func CircuitBreak(service string, fn dag.Func, b *Breaker) dag.Func {
	return func(ctx context.Context, args dag.Args) (any, error) {
		if !b.allow() {
			return nil, errors.ServiceUnavailable(service).WithCause(ErrCircuitOpen)
		}
		out, err := fn(ctx, args)
		b.record(err)
		return out, err
	}
}
