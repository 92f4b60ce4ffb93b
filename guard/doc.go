// Package guard wraps query functions with call guards.
//
//   - RateLimit rejects calls over a sliding window per (service, subject)
//     without invoking the wrapped function.
//   - Memoize caches results by service and canonical arguments and
//     collapses concurrent identical misses into one call.
//   - CircuitBreak fails calls fast after consecutive collaborator
//     failures and probes again after a cool-down.
//   - Retry re-runs operations that fail with retryable errors, with
//     exponential backoff.
//
// Guards compose; Wrap builds the stack a Config names:
//
//	fn = guard.CircuitBreak("roster", fn, guard.NewBreaker("roster", guard.BreakerConfig{}))
//	fn = guard.Memoize("roster", fn, guard.NewMemoryCache(time.Minute, 1000), guard.MemoConfig{})
//	fn = guard.RateLimit("roster", "", fn, guard.NewLimiter(guard.RateLimitConfig{MaxCalls: 2, Window: "60s"}))
package guard
