package reducer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/keys"
)

// Event is one activity event.
type Event struct {
	// Context names the event source, e.g. "org.mitros.writing_analytics".
	Context    string          `json:"context"`
	Dimensions keys.Dimensions `json:"dimensions"`
	Payload    map[string]any  `json:"payload,omitempty"`
	Time       time.Time       `json:"time"`
}

// ReduceFunc folds ev into internal. It returns the next internal state and
// the external state to expose.
type ReduceFunc func(ctx context.Context, ev Event, internal any) (next, external any, err error)

// Reducer is a registered fold over one event context.
type Reducer struct {
	// ID is the function identity; keys nodes name it to read the
	// external state.
	ID      string
	Context string
	Scope   keys.Scope
	// Default is the internal state before the first event and the value
	// queries see for entities without state.
	Default any
	Reduce  ReduceFunc
}

// Registry maps event contexts to reducers. It is filled at startup and
// frozen before events are dispatched.
type Registry struct {
	mu        sync.RWMutex
	byContext map[string][]*Reducer
	byID      map[string]*Reducer
	frozen    bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byContext: make(map[string][]*Reducer),
		byID:      make(map[string]*Reducer),
	}
}

// Register adds r. IDs are unique across contexts.
func (g *Registry) Register(r Reducer) error {
	switch {
	case r.ID == "":
		return errors.InvalidInput("id", "reducer id is required")
	case r.Context == "":
		return errors.InvalidInput("context", "reducer context is required")
	case r.Reduce == nil:
		return errors.InvalidInput("reduce", "reduce function is required")
	}
	if r.Scope == nil {
		r.Scope = keys.NewScope()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return errors.InvalidInput("id", "reducer registry is frozen")
	}
	if _, exists := g.byID[r.ID]; exists {
		return errors.AlreadyExists("reducer", r.ID)
	}
	g.byID[r.ID] = &r
	g.byContext[r.Context] = append(g.byContext[r.Context], &r)
	return nil
}

// MustRegister is like Register but panics on error.
func (g *Registry) MustRegister(r Reducer) {
	if err := g.Register(r); err != nil {
		panic(err)
	}
}

// Freeze rejects further registrations.
func (g *Registry) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frozen = true
}

// ForContext returns the reducers registered under context in
// registration order.
func (g *Registry) ForContext(context string) []*Reducer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Reducer(nil), g.byContext[context]...)
}

// Get returns the reducer with id.
func (g *Registry) Get(id string) (*Reducer, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.byID[id]
	return r, ok
}

// Default returns a copy of the default state of reducer id.
func (g *Registry) Default(id string) (any, bool) {
	r, ok := g.Get(id)
	if !ok {
		return nil, false
	}
	return cloneState(r.Default), true
}

// IDs returns the sorted reducer IDs.
func (g *Registry) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.byID))
	for id := range g.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contexts returns the sorted event contexts that have reducers.
func (g *Registry) Contexts() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.byContext))
	for c := range g.byContext {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// cloneState copies the top level of object states so reducers may
// update the state they receive.
func cloneState(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}
