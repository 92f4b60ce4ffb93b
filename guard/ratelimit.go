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

// ErrRateLimitExceeded is the cause of every RATE_LIMITED error.
var ErrRateLimitExceeded = stderrors.New("rate limit exceeded")

// Limiter keeps a sliding window of call times per (service, subject).
type Limiter struct {
	maxCalls int
	window   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	calls map[string][]time.Time
}

// NewLimiter creates a Limiter. cfg is defaulted; an unparsable window
// falls back to one minute.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	cfg.ApplyDefaults()
	window, err := time.ParseDuration(cfg.Window)
	if err != nil || window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		maxCalls: cfg.MaxCalls,
		window:   window,
		now:      time.Now,
		calls:    make(map[string][]time.Time),
	}
}

// WithClock overrides the limiter's clock.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records a call for (service, subject) and reports whether it fits
// in the window. Rejected calls are not recorded.
func (l *Limiter) Allow(service, subject string) bool {
	key := service + "\x00" + subject
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.calls[key]
	i := 0
	for i < len(recent) && !recent[i].After(cutoff) {
		i++
	}
	recent = recent[i:]
	if len(recent) >= l.maxCalls {
		l.calls[key] = recent
		return false
	}
	l.calls[key] = append(recent, now)
	return true
}

// Remaining returns how many calls (service, subject) may still make in
// the current window.
func (l *Limiter) Remaining(service, subject string) int {
	key := service + "\x00" + subject
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.calls[key] {
		if t.After(cutoff) {
			n++
		}
	}
	return l.maxCalls - n
}

type subjectKey struct{}

// WithSubject attaches the rate limit subject (e.g. a user) to ctx.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the subject attached by WithSubject.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// RateLimit guards fn with limiter. An empty subject is taken from the
// call context. Calls over the limit fail with RATE_LIMITED wrapping
// ErrRateLimitExceeded and fn is not invoked.
func RateLimit(service, subject string, fn dag.Func, limiter *Limiter) dag.Func {
	log := logger.WithComponent("guard")
	return func(ctx context.Context, args dag.Args) (any, error) {
		who := subject
		if who == "" {
			who = SubjectFromContext(ctx)
		}
		if who == "" {
			who = "anonymous"
		}
		if !limiter.Allow(service, who) {
			log.Warn("call rate limited", logger.Fields(logger.FieldFunction, service, "subject", who))
			return nil, errors.RateLimited(service, who).WithCause(ErrRateLimitExceeded)
		}
		return fn(ctx, args)
	}
}
