package query

import (
	"sort"
	"sync"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
)

// Library holds named, compiled documents. It is filled at startup and
// frozen before requests are served; lookups are safe for concurrent use.
type Library struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	frozen bool
}

// NewLibrary creates an empty Library.
func NewLibrary() *Library {
	return &Library{docs: make(map[string]*Document)}
}

// Register compiles doc and stores it under name.
func (l *Library) Register(name string, doc *Document) error {
	if name == "" {
		return errors.InvalidInput("name", "document name is required")
	}
	compiled, err := Compile(doc)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return errors.InvalidInput("name", "query library is frozen")
	}
	if _, exists := l.docs[name]; exists {
		return errors.AlreadyExists("query document", name)
	}
	l.docs[name] = compiled
	return nil
}

// Get returns the compiled document registered under name.
func (l *Library) Get(name string) (*Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.docs[name]
	if !ok {
		return nil, errors.NotFound("query document", name)
	}
	return doc, nil
}

// Names returns sorted names of all registered documents.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.docs))
	for name := range l.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Freeze rejects further registrations.
func (l *Library) Freeze() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = true
}
