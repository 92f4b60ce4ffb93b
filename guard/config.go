package guard

import (
	"fmt"
	"time"
)

// RateLimitConfig configures a sliding window limiter.
type RateLimitConfig struct {
	// MaxCalls is the number of calls allowed per window and subject.
	MaxCalls int `mapstructure:"max_calls"`
	// Window is the window length (e.g. "60s").
	Window string `mapstructure:"window"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *RateLimitConfig) ApplyDefaults() {
	if c.MaxCalls <= 0 {
		c.MaxCalls = 10
	}
	if c.Window == "" {
		c.Window = "60s"
	}
}

// Validate checks the configuration.
func (c *RateLimitConfig) Validate() error {
	if c.MaxCalls <= 0 {
		return fmt.Errorf("guard: max_calls must be > 0, got %d", c.MaxCalls)
	}
	d, err := time.ParseDuration(c.Window)
	if err != nil || d <= 0 {
		return fmt.Errorf("guard: invalid window %q", c.Window)
	}
	return nil
}

// MemoConfig configures memoization of one function.
type MemoConfig struct {
	// Backend is "memory" or "store" (the shared state store).
	Backend string `mapstructure:"backend"`
	// TTL bounds how long a result is reused (e.g. "5m").
	TTL string `mapstructure:"ttl"`
	// MaxEntries bounds the memory backend.
	MaxEntries int `mapstructure:"max_entries"`
	// TolerateStoreErrors calls through when the cache cannot be read or
	// written instead of failing the call.
	TolerateStoreErrors bool `mapstructure:"tolerate_store_errors"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *MemoConfig) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.TTL == "" {
		c.TTL = "5m"
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1000
	}
}

// Validate checks the configuration.
func (c *MemoConfig) Validate() error {
	if c.Backend != "memory" && c.Backend != "store" {
		return fmt.Errorf("guard: backend must be memory or store, got %q", c.Backend)
	}
	if _, err := time.ParseDuration(c.TTL); err != nil {
		return fmt.Errorf("guard: invalid ttl %q: %w", c.TTL, err)
	}
	return nil
}

// TTLDuration returns the parsed TTL.
func (c *MemoConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

// BreakerConfig configures the circuit breaker of one function.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures int `mapstructure:"max_failures"`
	// Cooldown is how long an open breaker rejects calls (e.g. "30s").
	Cooldown string `mapstructure:"cooldown"`
	// HalfOpenCalls is the number of probe calls let through after the
	// cool-down; that many successes close the breaker again.
	HalfOpenCalls int `mapstructure:"half_open_calls"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *BreakerConfig) ApplyDefaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.Cooldown == "" {
		c.Cooldown = "30s"
	}
	if c.HalfOpenCalls <= 0 {
		c.HalfOpenCalls = 1
	}
}

// Validate checks the configuration.
func (c *BreakerConfig) Validate() error {
	d, err := time.ParseDuration(c.Cooldown)
	if err != nil || d <= 0 {
		return fmt.Errorf("guard: invalid cooldown %q", c.Cooldown)
	}
	return nil
}

// Config holds the guards applied to named functions.
type Config struct {
	RateLimits map[string]RateLimitConfig `mapstructure:"rate_limits"`
	Breakers   map[string]BreakerConfig   `mapstructure:"breakers"`
	Memoize    map[string]MemoConfig      `mapstructure:"memoize"`
	Retry      RetrySettings              `mapstructure:"retry"`
}

// ApplyDefaults applies defaults to every entry.
func (c *Config) ApplyDefaults() {
	for name, rl := range c.RateLimits {
		rl.ApplyDefaults()
		c.RateLimits[name] = rl
	}
	for name, b := range c.Breakers {
		b.ApplyDefaults()
		c.Breakers[name] = b
	}
	for name, m := range c.Memoize {
		m.ApplyDefaults()
		c.Memoize[name] = m
	}
	c.Retry.ApplyDefaults()
}

// Validate checks every entry.
func (c *Config) Validate() error {
	for name, rl := range c.RateLimits {
		if err := rl.Validate(); err != nil {
			return fmt.Errorf("rate_limits.%s: %w", name, err)
		}
	}
	for name, b := range c.Breakers {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("breakers.%s: %w", name, err)
		}
	}
	for name, m := range c.Memoize {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("memoize.%s: %w", name, err)
		}
	}
	return c.Retry.Validate()
}

// RetrySettings is the file form of RetryConfig.
type RetrySettings struct {
	MaxAttempts    int    `mapstructure:"max_attempts"`
	InitialBackoff string `mapstructure:"initial_backoff"`
	MaxBackoff     string `mapstructure:"max_backoff"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (s *RetrySettings) ApplyDefaults() {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 3
	}
	if s.InitialBackoff == "" {
		s.InitialBackoff = "100ms"
	}
	if s.MaxBackoff == "" {
		s.MaxBackoff = "5s"
	}
}

// Validate checks the durations.
func (s *RetrySettings) Validate() error {
	if _, err := time.ParseDuration(s.InitialBackoff); err != nil {
		return fmt.Errorf("guard: invalid retry initial_backoff %q: %w", s.InitialBackoff, err)
	}
	if _, err := time.ParseDuration(s.MaxBackoff); err != nil {
		return fmt.Errorf("guard: invalid retry max_backoff %q: %w", s.MaxBackoff, err)
	}
	return nil
}

// RetryConfig converts the settings. Call Validate first.
func (s RetrySettings) RetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = s.MaxAttempts
	cfg.InitialBackoff, _ = time.ParseDuration(s.InitialBackoff)
	cfg.MaxBackoff, _ = time.ParseDuration(s.MaxBackoff)
	return cfg
}
