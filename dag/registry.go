package dag

import (
	"context"
	"sort"
	"sync"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
)

// Args are the resolved keyword arguments of a call node.
type Args map[string]any

// Func is a collaborator a call node may invoke. It may return a plain
// value or a stream.Iterator[any], which is left unforced.
type Func func(ctx context.Context, args Args) (any, error)

// FunctionRegistry maps function identities to collaborators. It is filled
// at startup and frozen before queries run.
type FunctionRegistry struct {
	mu         sync.RWMutex
	funcs      map[string]Func
	middleware []Middleware
	frozen     bool
}

// NewFunctionRegistry creates an empty registry. Middleware is applied to
// every registered function, the first one outermost.
func NewFunctionRegistry(mw ...Middleware) *FunctionRegistry {
	return &FunctionRegistry{funcs: make(map[string]Func), middleware: mw}
}

// Register adds fn under name.
func (r *FunctionRegistry) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return errors.InvalidInput("function", "name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.InvalidInput("function", "function registry is frozen")
	}
	if _, exists := r.funcs[name]; exists {
		return errors.AlreadyExists("function", name)
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		fn = r.middleware[i](name, fn)
	}
	r.funcs[name] = fn
	return nil
}

// MustRegister is like Register but panics on error. Intended for init-time wiring.
func (r *FunctionRegistry) MustRegister(name string, fn Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Get retrieves a function by name.
func (r *FunctionRegistry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// List returns sorted names of all registered functions.
func (r *FunctionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Freeze rejects further registrations.
func (r *FunctionRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// ReducerCatalog resolves the function identity of a keys node to the
// default value used for absent state.
type ReducerCatalog interface {
	Default(id string) (any, bool)
}
