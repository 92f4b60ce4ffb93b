package reducer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/keys"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/observability"
	"github.com/ETS-Next-Gen/writing-observer-sub002/statestore"
)

// Update is the outcome of one reducer applied to one event.
type Update struct {
	ReducerID   string    `json:"reducer_id"`
	Context     string    `json:"context"`
	InternalKey string    `json:"internal_key"`
	ExternalKey string    `json:"external_key"`
	External    any       `json:"external"`
	Time        time.Time `json:"time"`
}

// Dispatcher routes events to the reducers of their context.
type Dispatcher struct {
	registry *Registry
	store    statestore.Store
	hub      *Hub
	locks    *keyLocks
	log      *logger.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHub publishes every external state update to hub.
func WithHub(hub *Hub) DispatcherOption {
	return func(d *Dispatcher) { d.hub = hub }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics enables dispatch metrics.
func WithMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClock overrides the clock used for events without a time.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a Dispatcher over registry and store.
func NewDispatcher(registry *Registry, store statestore.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		store:    store,
		locks:    newKeyLocks(),
		log:      logger.WithComponent("reducer"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchError reports a dispatch in which some reducers failed. The
// reducers in Committed saved their state and must not see the event again;
// a retry passes Pending to DispatchTo.
type DispatchError struct {
	Err       error
	Committed []Update
	Pending   []string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%v (%d reducers pending)", e.Err, len(e.Pending))
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatch applies every reducer registered for ev.Context. Reducers run
// concurrently; updates of one key are serialized. Each committed update is
// published to the hub at once. The returned updates follow registration
// order. Any store failure fails the dispatch with STATE_STORE_UNAVAILABLE,
// wrapped in a *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) ([]Update, error) {
	return d.DispatchTo(ctx, ev, nil)
}

// DispatchTo is Dispatch restricted to the reducers named in ids. An empty
// ids selects every reducer of the context.
func (d *Dispatcher) DispatchTo(ctx context.Context, ev Event, ids []string) ([]Update, error) {
	reducers := d.registry.ForContext(ev.Context)
	if len(ids) > 0 {
		reducers = slices.DeleteFunc(slices.Clone(reducers), func(r *Reducer) bool {
			return !slices.Contains(ids, r.ID)
		})
	}
	if len(reducers) == 0 {
		d.log.Debug("no reducers for context", logger.Fields(logger.FieldContext, ev.Context))
		return []Update{}, nil
	}
	if ev.Time.IsZero() {
		ev.Time = d.now().UTC()
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanDispatch)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrEventContext, ev.Context))

	updates := make([]Update, len(reducers))
	done := make([]bool, len(reducers))
	var g errgroup.Group
	for i, r := range reducers {
		g.Go(func() error {
			start := time.Now()
			u, err := d.apply(ctx, r, ev)
			status := "ok"
			if err != nil {
				status = "error"
			}
			d.metrics.RecordDispatch(ctx, ev.Context, r.ID, status, time.Since(start))
			if err != nil {
				return err
			}
			updates[i], done[i] = u, true
			if d.hub != nil {
				d.hub.Publish(u)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.SetSpanError(ctx, err)
		appErr := errors.Wrap(err)
		d.metrics.RecordError(ctx, string(appErr.Code), "reducer")
		de := &DispatchError{Err: appErr}
		for i, r := range reducers {
			if done[i] {
				de.Committed = append(de.Committed, updates[i])
			} else {
				de.Pending = append(de.Pending, r.ID)
			}
		}
		return nil, de
	}
	return updates, nil
}

func (d *Dispatcher) apply(ctx context.Context, r *Reducer, ev Event) (Update, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanReducerApply)
	defer span.End()

	dims := ev.Dimensions.Restrict(r.Scope)
	u := Update{
		ReducerID:   r.ID,
		Context:     ev.Context,
		InternalKey: keys.Build(r.ID, r.Scope, dims, keys.Internal),
		ExternalKey: keys.Build(r.ID, r.Scope, dims, keys.External),
		Time:        ev.Time,
	}
	span.SetAttributes(
		attribute.String(observability.AttrReducer, r.ID),
		attribute.String(observability.AttrStateKey, u.InternalKey),
	)
	log := d.log.WithFields(logger.Fields(logger.FieldReducer, r.ID, logger.FieldKey, u.InternalKey))

	unlock, err := d.locks.Lock(ctx, u.InternalKey)
	if err != nil {
		return Update{}, err
	}
	defer unlock()

	state, ok, err := d.store.Get(ctx, u.InternalKey)
	if err != nil {
		log.Error("reading reducer state failed", logger.ErrorFields("get", err))
		return Update{}, unavailable(ctx, "get", err)
	}
	if !ok {
		state = cloneState(r.Default)
	}

	next, external, err := r.Reduce(ctx, ev, state)
	if err != nil {
		log.Warn("reducer failed", logger.ErrorFields("reduce", err))
		return Update{}, errors.Internal(fmt.Errorf("reducer %q: %w", r.ID, err))
	}

	// The internal write commits the event; until it lands, a retry
	// recomputes from the old state and rewrites the same external value.
	if err := d.store.Set(ctx, u.ExternalKey, external); err != nil {
		log.Error("writing external state failed", logger.ErrorFields("set", err))
		return Update{}, unavailable(ctx, "set", err)
	}
	if err := d.store.Set(ctx, u.InternalKey, next); err != nil {
		log.Error("writing reducer state failed", logger.ErrorFields("set", err))
		return Update{}, unavailable(ctx, "set", err)
	}
	u.External = external
	return u, nil
}

func unavailable(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.HasCode(err, errors.ErrCodeStateStoreUnavailable) {
		return err
	}
	return errors.StateStoreUnavailable(op, err)
}

// Locked returns how many keys currently have holders or waiters.
func (d *Dispatcher) Locked() int { return d.locks.Len() }
