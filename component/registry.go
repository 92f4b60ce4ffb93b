package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// Default per-component bounds.
const (
	DefaultStopTimeout   = 10 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

type entry struct {
	c       Component
	started bool
}

// Registry starts components in registration order and stops them in
// reverse, so a component may depend on anything registered before it.
type Registry struct {
	log           *logger.Logger
	stopTimeout   time.Duration
	healthTimeout time.Duration

	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger. The global logger is used
// otherwise.
func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithTimeouts overrides the per-component stop and health check bounds.
func WithTimeouts(stop, health time.Duration) Option {
	return func(r *Registry) { r.stopTimeout, r.healthTimeout = stop, health }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		stopTimeout:   DefaultStopTimeout,
		healthTimeout: DefaultHealthTimeout,
		byName:        make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.GetGlobalLogger()
	}
	r.log = r.log.WithComponent("components")
	return r
}

// Register appends c. Names are unique.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("component %s already registered", name)
	}
	e := &entry{c: c}
	r.entries = append(r.entries, e)
	r.byName[name] = e
	r.log.Debug("Component registered", logger.Fields(logger.FieldComponent, name))
	return nil
}

// StartAll starts every component not yet started, in registration
// order, so calling it again starts only late registrations. When one
// fails, all started components are stopped before returning.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.started {
			continue
		}
		name := e.c.Name()
		if err := e.c.Start(ctx); err != nil {
			r.log.Error("Component start failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
			return fmt.Errorf("failed to start %s: %w", name, multierr.Append(err, r.stopStarted(ctx)))
		}
		e.started = true

		fields := logger.Fields(logger.FieldComponent, name)
		if d, ok := e.c.(Describable); ok {
			desc := d.Describe()
			fields["type"], fields["details"] = desc.Type, desc.Details
		}
		r.log.Info("Component started", fields)
	}
	return nil
}

// StopAll stops started components in reverse registration order. Each
// Stop gets its own timeout; failures are collected, not fatal.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.stopStarted(ctx); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}
	return nil
}

func (r *Registry) stopStarted(ctx context.Context) error {
	var errs error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !e.started {
			continue
		}
		e.started = false

		name := e.c.Name()
		stopCtx, cancel := context.WithTimeout(ctx, r.stopTimeout)
		err := e.c.Stop(stopCtx)
		cancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
			r.log.Error("Component stop failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
			continue
		}
		r.log.Info("Component stopped", logger.Fields(logger.FieldComponent, name))
	}
	return errs
}

// HealthAll checks every component concurrently, each bounded by the
// health timeout. Results keep registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	comps := r.All()
	out := make([]Health, len(comps))

	var wg sync.WaitGroup
	for i, c := range comps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hctx, cancel := context.WithTimeout(ctx, r.healthTimeout)
			defer cancel()
			out[i] = c.Health(hctx)
			if out[i].Name == "" {
				out[i].Name = c.Name()
			}
		}()
	}
	wg.Wait()
	return out
}

// Unhealthy returns the checks that are not fully healthy.
func (r *Registry) Unhealthy(ctx context.Context) []Health {
	var bad []Health
	for _, h := range r.HealthAll(ctx) {
		if !h.OK() {
			bad = append(bad, h)
		}
	}
	return bad
}

// Get returns the component registered under name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[name]; ok {
		return e.c
	}
	return nil
}

// All returns the components in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Component, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.c
	}
	return out
}
