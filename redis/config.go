package redis

import (
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ETS-Next-Gen/writing-observer-sub002/validation"
)

// Config selects the Redis server holding reducer state and how state
// keys are laid out in it.
type Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// KeyPrefix namespaces state keys as "prefix:key". Several observers
	// may then share one database.
	KeyPrefix string `mapstructure:"key_prefix"`
	// StateTTL expires state after its last write. Zero keeps it forever.
	StateTTL time.Duration `mapstructure:"state_ttl"`
	// ScanCount is the SCAN page size hint used when listing keys.
	ScanCount int64 `mapstructure:"scan_count"`

	Pool PoolConfig `mapstructure:"pool"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	Size        int           `mapstructure:"size"`
	MinIdle     int           `mapstructure:"min_idle"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// ApplyDefaults fills zero fields. Addr stays empty: redis has to be
// pointed at a server explicitly.
func (c *Config) ApplyDefaults() {
	if c.ScanCount <= 0 {
		c.ScanCount = 100
	}
	if c.Pool.Size <= 0 {
		c.Pool.Size = 10
	}
	if c.Pool.MinIdle <= 0 {
		c.Pool.MinIdle = 2
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Validate checks an enabled config.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	v := validation.New()
	v.Required("addr", c.Addr)
	v.Min("db", c.DB, 0)
	v.Min("pool.size", c.Pool.Size, 1)
	v.Check(c.Pool.MinIdle <= c.Pool.Size, "pool.min_idle", "must not exceed pool.size")
	v.Check(c.StateTTL >= 0, "state_ttl", "must not be negative")
	v.Check(c.StateTTL == 0 || c.StateTTL >= time.Second, "state_ttl", "must be at least 1s")
	return v.Err()
}

// options maps the config onto go-redis client options.
func (c *Config) options() *goredis.Options {
	return &goredis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		MaxRetries:      c.MaxRetries,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		PoolSize:        c.Pool.Size,
		MinIdleConns:    c.Pool.MinIdle,
		PoolTimeout:     c.Pool.Timeout,
		ConnMaxIdleTime: c.Pool.MaxIdleTime,
		ConnMaxLifetime: c.Pool.MaxLifetime,
	}
}
