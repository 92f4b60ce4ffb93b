package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ETS-Next-Gen/writing-observer-sub002/component"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// Runner is a long-running loop bound to one topic: an event Consumer or
// an update Forwarder.
type Runner interface {
	Consume(ctx context.Context) error
	Close() error
	Topic() string
	Stats() Stats
}

// Component runs the registered runners and implements component.Component.
type Component struct {
	cfg      Config
	log      *logger.Logger
	runners  []Runner
	cancelFn context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	// dial checks broker reachability; replaced in tests.
	dial func(ctx context.Context, cfg Config) error
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a Kafka component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	return &Component{
		cfg:  cfg,
		log:  log.WithComponent("kafka"),
		dial: dialBroker,
	}
}

// Add registers a runner. Must be called before Start.
func (c *Component) Add(r Runner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runners = append(c.runners, r)
}

// Name returns the component name.
func (c *Component) Name() string { return "kafka" }

// Start runs every runner in its own goroutine until Stop.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	// Runners outlive the start context; only Stop ends them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelFn = cancel

	for _, r := range c.runners {
		c.wg.Add(1)
		go func(r Runner) {
			defer c.wg.Done()
			if err := r.Consume(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error("Runner stopped with error", logger.Fields("topic", r.Topic(), "error", err.Error()))
			}
		}(r)
	}

	c.running = true
	c.log.Info("Kafka component started", logger.Fields("runners", len(c.runners)))
	return nil
}

// Stop cancels the runners, waits for them and closes them.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	c.log.Info("Kafka component stopping")
	if c.cancelFn != nil {
		c.cancelFn()
	}
	c.wg.Wait()

	var errs []error
	for _, r := range c.runners {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.Topic(), err))
		}
	}
	c.running = false
	return errors.Join(errs...)
}

// Health checks broker connectivity by dialling the first broker. A
// reachable cluster reports per-topic traffic as the message.
func (c *Component) Health(ctx context.Context) component.Health {
	c.mu.Lock()
	running := c.running
	cfg := c.cfg
	runners := c.runners
	c.mu.Unlock()

	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	switch {
	case !running:
		h.Status, h.Message = component.StatusUnhealthy, "kafka not started"
	case len(cfg.Brokers) == 0:
		h.Status, h.Message = component.StatusUnhealthy, "no brokers configured"
	default:
		if err := c.dial(ctx, cfg); err != nil {
			h.Status, h.Message = component.StatusDegraded, err.Error()
			break
		}
		stats := make([]Stats, len(runners))
		for i, r := range runners {
			stats[i] = r.Stats()
		}
		h.Message = summarize(stats)
	}
	return h
}

func dialBroker(ctx context.Context, cfg Config) error {
	dialer, err := cfg.Dialer()
	if err != nil {
		return fmt.Errorf("dialer: %w", err)
	}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("broker metadata: %w", err)
	}
	return nil
}

// Describe returns infrastructure summary info for the startup display.
func (c *Component) Describe() component.Description {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]string, 0, len(c.runners))
	for _, r := range c.runners {
		topics = append(topics, r.Topic())
	}
	return component.Description{
		Name:    "Kafka",
		Type:    "kafka",
		Details: fmt.Sprintf("brokers=%v group=%s topics=%v", c.cfg.Brokers, c.cfg.GroupID, topics),
	}
}
