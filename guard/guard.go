package guard

import (
	"fmt"

	"github.com/ETS-Next-Gen/writing-observer-sub002/dag"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
)

// Wrap applies the guards cfg configures for the function name. The rate
// limit is outermost, so rejected calls never touch the cache. The breaker is
// innermost, so cache hits succeed while it is open.
func Wrap(name string, fn dag.Func, cfg Config, store statestore.Store) (dag.Func, error) {
	if bc, ok := cfg.Breakers[name]; ok {
		bc.ApplyDefaults()
		if err := bc.Validate(); err != nil {
			return nil, fmt.Errorf("breaker %s: %w", name, err)
		}
		fn = CircuitBreak(name, fn, NewBreaker(name, bc))
	}
	if mc, ok := cfg.Memoize[name]; ok {
		cache, err := NewCache(mc, store)
		if err != nil {
			return nil, fmt.Errorf("memoize %s: %w", name, err)
		}
		fn = Memoize(name, fn, cache, mc)
	}
	if rl, ok := cfg.RateLimits[name]; ok {
		rl.ApplyDefaults()
		if err := rl.Validate(); err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", name, err)
		}
		fn = RateLimit(name, "", fn, NewLimiter(rl))
	}
	return fn, nil
}
