package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/dag"
	"github.com/ETS-Next-Gen/writing-observer-sub002/guard"
	"github.com/ETS-Next-Gen/writing-observer-sub002/kafka"
	"github.com/ETS-Next-Gen/writing-observer-sub002/observability"
	"github.com/ETS-Next-Gen/writing-observer-sub002/redis"
	"github.com/ETS-Next-Gen/writing-observer-sub002/roster"
	"github.com/ETS-Next-Gen/writing-observer-sub002/version"
)

// AppConfig is the configuration of the observer binary.
type AppConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	StateStore    StateStoreConfig    `yaml:"state_store" mapstructure:"state_store"`
	Redis         redis.Config        `yaml:"redis" mapstructure:"redis"`
	Kafka         kafka.Config        `yaml:"kafka" mapstructure:"kafka"`
	Executor      dag.Config          `yaml:"executor" mapstructure:"executor"`
	Guards        guard.Config        `yaml:"guards" mapstructure:"guards"`
	Roster        roster.Config       `yaml:"roster" mapstructure:"roster"`
	Queries       QueriesConfig       `yaml:"queries" mapstructure:"queries"`
	Reducers      ReducersConfig      `yaml:"reducers" mapstructure:"reducers"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults applies defaults to every section.
func (c *AppConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "observer"
	}
	if c.Version == "" {
		c.Version = version.Get().Short()
	}
	c.ServiceConfig.ApplyDefaults()
	c.StateStore.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Kafka.ApplyDefaults()
	c.Executor.ApplyDefaults()
	c.Guards.ApplyDefaults()
	c.Roster.ApplyDefaults()
	c.Queries.ApplyDefaults()
	c.Reducers.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate validates every section. The redis section must be enabled
// when it backs the state store.
func (c *AppConfig) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"service", c.ServiceConfig.Validate},
		{"state_store", c.StateStore.Validate},
		{"redis", c.Redis.Validate},
		{"kafka", c.Kafka.Validate},
		{"executor", c.Executor.Validate},
		{"guards", c.Guards.Validate},
		{"roster", c.Roster.Validate},
		{"reducers", c.Reducers.Validate},
		{"observability", c.Observability.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	if c.StateStore.Backend == BackendRedis && !c.Redis.Enabled {
		return fmt.Errorf("state_store: backend redis requires redis.enabled")
	}
	return nil
}

// State store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// StateStoreConfig selects where reducer state lives.
type StateStoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
}

// ApplyDefaults defaults to the in-process store.
func (c *StateStoreConfig) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
}

// Validate checks the backend name.
func (c *StateStoreConfig) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis:
		return nil
	default:
		return fmt.Errorf("unknown backend %q (want memory or redis)", c.Backend)
	}
}

// QueriesConfig lists directories of named query documents.
type QueriesConfig struct {
	Dirs []string `yaml:"dirs" mapstructure:"dirs"`
}

// ApplyDefaults sets the default query directory.
func (c *QueriesConfig) ApplyDefaults() {
	if len(c.Dirs) == 0 {
		c.Dirs = []string{"./queries"}
	}
}

// ReducersConfig selects the event context the built-in event counter
// listens to. Reducer IDs are unique, so the counter serves one context.
type ReducersConfig struct {
	EventCountContext string `yaml:"event_count_context" mapstructure:"event_count_context"`
}

// ApplyDefaults counts writing analytics events by default.
func (c *ReducersConfig) ApplyDefaults() {
	if c.EventCountContext == "" {
		c.EventCountContext = "org.mitros.writing_analytics"
	}
}

// Validate rejects context names with whitespace.
func (c *ReducersConfig) Validate() error {
	if strings.TrimSpace(c.EventCountContext) != c.EventCountContext {
		return fmt.Errorf("event_count_context %q has surrounding whitespace", c.EventCountContext)
	}
	return nil
}

// ObservabilityConfig configures OTLP trace and metric export.
type ObservabilityConfig struct {
	Enabled         bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint        string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure        bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate      float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
	MetricsInterval string  `yaml:"metrics_interval" mapstructure:"metrics_interval"`
}

// ApplyDefaults sets a local collector and full sampling.
func (c *ObservabilityConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricsInterval == "" {
		c.MetricsInterval = "15s"
	}
}

// Validate checks the sample rate and interval.
func (c *ObservabilityConfig) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be within [0, 1] (got: %v)", c.SampleRate)
	}
	if _, err := time.ParseDuration(c.MetricsInterval); err != nil {
		return fmt.Errorf("invalid metrics_interval %q: %w", c.MetricsInterval, err)
	}
	return nil
}

// TracerConfig builds the tracer settings for the service.
func (c *AppConfig) TracerConfig() observability.TracerConfig {
	tc := observability.DefaultTracerConfig(c.Name)
	tc.ServiceVersion = c.Version
	tc.Environment = c.Environment
	tc.Endpoint = c.Observability.Endpoint
	tc.Insecure = c.Observability.Insecure
	tc.SampleRate = c.Observability.SampleRate
	return tc
}

// MeterConfig builds the meter settings for the service.
func (c *AppConfig) MeterConfig() observability.MeterConfig {
	mc := observability.DefaultMeterConfig(c.Name)
	mc.ServiceVersion = c.Version
	mc.Environment = c.Environment
	mc.Endpoint = c.Observability.Endpoint
	mc.Insecure = c.Observability.Insecure
	if d, err := time.ParseDuration(c.Observability.MetricsInterval); err == nil {
		mc.Interval = d
	}
	return mc
}
