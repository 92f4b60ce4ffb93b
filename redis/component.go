package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ETS-Next-Gen/writing-observer-sub002/component"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// Component owns the Redis connection and the Store built on it.
type Component struct {
	cfg Config
	log *logger.Logger

	mu    sync.Mutex
	rdb   *goredis.Client
	store *Store
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a Redis component for the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: log.WithComponent("redis")}
}

// Store returns the state store, or nil before Start.
func (c *Component) Store() *Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// Name returns the component name.
func (c *Component) Name() string { return "redis" }

// Start connects and verifies the server answers PING.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rdb != nil {
		return nil
	}
	if !c.cfg.Enabled {
		return fmt.Errorf("redis start: redis is disabled")
	}
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("redis start: %w", err)
	}

	rdb := goredis.NewClient(c.cfg.options())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis start ping %s: %w", c.cfg.Addr, err)
	}
	c.rdb = rdb
	c.store = NewStore(rdb, c.cfg)
	c.log.Info("Redis connected", logger.Fields(
		"addr", c.cfg.Addr,
		"db", c.cfg.DB,
		"pool_size", c.cfg.Pool.Size,
	))
	return nil
}

// Stop closes the connection pool.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rdb == nil {
		return nil
	}
	c.log.Info("Redis closing")
	err := c.rdb.Close()
	c.rdb, c.store = nil, nil
	return err
}

// Health pings the server and reports pool usage.
func (c *Component) Health(ctx context.Context) component.Health {
	c.mu.Lock()
	rdb := c.rdb
	c.mu.Unlock()

	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	if rdb == nil {
		h.Status, h.Message = component.StatusUnhealthy, "redis not started"
		return h
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		h.Status, h.Message = component.StatusUnhealthy, fmt.Sprintf("ping failed: %v", err)
		return h
	}
	ps := rdb.PoolStats()
	h.Message = fmt.Sprintf("pool total=%d idle=%d timeouts=%d", ps.TotalConns, ps.IdleConns, ps.Timeouts)
	return h
}

// Describe returns the startup summary line.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Redis",
		Type:    "redis",
		Details: fmt.Sprintf("%s db=%d pool=%d prefix=%q ttl=%s", c.cfg.Addr, c.cfg.DB, c.cfg.Pool.Size, c.cfg.KeyPrefix, c.cfg.StateTTL),
	}
}
