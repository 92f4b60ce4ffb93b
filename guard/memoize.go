package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/ETS-Next-Gen/writing-observer-sub002/dag"
	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/observability"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
	"github.com/ETS-Next-Gen/writing-observer-sub002/stream"
)

// Cache stores memoized results.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
}

// MemoryCache is an in-process Cache with a TTL and an entry bound. When
// full, expired entries are dropped first, then the oldest entry.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]memoEntry
}

type memoEntry struct {
	value   any
	expires time.Time
	stored  time.Time
}

// NewMemoryCache creates a MemoryCache. ttl <= 0 keeps entries until
// evicted by the bound.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{ttl: ttl, maxEntries: maxEntries, now: time.Now, entries: make(map[string]memoEntry)}
}

// WithClock overrides the cache's clock.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// Get returns the live entry under key.
func (c *MemoryCache) Get(_ context.Context, key string) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key.
func (c *MemoryCache) Set(_ context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	c.entries[key] = memoEntry{value: value, expires: now.Add(c.ttl), stored: now}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) evict(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if c.ttl > 0 && !now.Before(e.expires) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.stored.Before(oldest) {
			oldestKey, oldest = k, e.stored
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// StoreCache keeps memoized results in the shared state store so every
// instance reuses them. Expiry is left to the store (see the redis
// state_ttl setting).
type StoreCache struct {
	store  statestore.Store
	prefix string
}

// NewStoreCache creates a StoreCache writing keys under "memo,".
func NewStoreCache(store statestore.Store) *StoreCache {
	return &StoreCache{store: store, prefix: "memo,"}
}

// Get reads key from the store.
func (c *StoreCache) Get(ctx context.Context, key string) (any, bool, error) {
	return c.store.Get(ctx, c.prefix+key)
}

// Set writes key to the store.
func (c *StoreCache) Set(ctx context.Context, key string, value any) error {
	return c.store.Set(ctx, c.prefix+key, value)
}

// CacheKey returns service joined with the canonical JSON of args. Map
// keys are sorted by encoding/json, so equal arguments give equal keys.
func CacheKey(service string, args dag.Args) (string, error) {
	data, err := json.Marshal(map[string]any(args))
	if err != nil {
		return "", fmt.Errorf("guard: arguments of %s are not serializable: %w", service, err)
	}
	return service + "," + string(data), nil
}

// Memoize caches fn's results in cache. Concurrent calls with equal
// arguments share one invocation. Lazy results are drained before caching.
// Cache failures fail the call unless cfg.TolerateStoreErrors is set.
func Memoize(service string, fn dag.Func, cache Cache, cfg MemoConfig) dag.Func {
	var group singleflight.Group
	log := logger.WithComponent("guard").WithFields(logger.Fields(logger.FieldFunction, service))

	return func(ctx context.Context, args dag.Args) (any, error) {
		key, err := CacheKey(service, args)
		if err != nil {
			return nil, errors.InvalidInput("args", err.Error())
		}

		ctx, span := observability.StartSpan(ctx, observability.SpanGuardedCall)
		defer span.End()
		span.SetAttributes(attribute.String(observability.AttrFunction, service))

		if v, ok, err := cache.Get(ctx, key); err != nil {
			if !cfg.TolerateStoreErrors {
				return nil, errors.StateStoreUnavailable("memo get", err)
			}
			log.Warn("memo cache unavailable, calling through", logger.ErrorFields("get", err))
		} else if ok {
			span.SetAttributes(attribute.Bool("guard.cache_hit", true))
			return v, nil
		}

		v, err, _ := group.Do(key, func() (any, error) {
			out, err := fn(ctx, args)
			if err != nil {
				return nil, err
			}
			if it, ok := out.(stream.Iterator[any]); ok {
				if out, err = stream.Collect(ctx, it); err != nil {
					return nil, err
				}
			}
			if err := cache.Set(ctx, key, out); err != nil {
				if !cfg.TolerateStoreErrors {
					return nil, errors.StateStoreUnavailable("memo set", err)
				}
				log.Warn("memo cache unavailable, result not cached", logger.ErrorFields("set", err))
			}
			return out, nil
		})
		return v, err
	}
}

// NewCache builds the cache cfg selects. store backs the "store" backend.
func NewCache(cfg MemoConfig, store statestore.Store) (Cache, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == "store" {
		if store == nil {
			return nil, fmt.Errorf("guard: store backend requires a state store")
		}
		return NewStoreCache(store), nil
	}
	return NewMemoryCache(cfg.TTLDuration(), cfg.MaxEntries), nil
}
