package reducer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ETS-Next-Gen/writing-observer-sub002/component"
	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// DefaultSubscriberBuffer is the update buffer of a subscriber.
const DefaultSubscriberBuffer = 256

// Subscriber receives the updates whose external key matches its pattern.
type Subscriber struct {
	id      string
	pattern string
	updates chan Update
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// Pattern returns the glob the subscriber matches external keys with.
func (s *Subscriber) Pattern() string { return s.pattern }

// Updates returns the channel updates are delivered on. It is closed when
// the subscriber is removed or the hub stops.
func (s *Subscriber) Updates() <-chan Update { return s.updates }

// send delivers u without blocking. Returns false if the subscriber is
// too slow.
func (s *Subscriber) send(u Update, log *logger.Logger) bool {
	select {
	case s.updates <- u:
		return true
	default:
		log.Warn("subscriber buffer full, dropping update", logger.Fields(
			"subscriber", s.id,
			logger.FieldKey, u.ExternalKey,
		))
		return false
	}
}

// Hub fans external state updates out to subscribers.
type Hub struct {
	subscribers map[string]*Subscriber
	broadcast   chan Update
	done        chan struct{}
	stopped     bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
	log         *logger.Logger
}

var (
	_ component.Component   = (*Hub)(nil)
	_ component.Describable = (*Hub)(nil)
)

// NewHub creates a hub. Start must be called before updates are delivered.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		broadcast:   make(chan Update, 256),
		done:        make(chan struct{}),
		log:         logger.WithComponent("reducer.hub"),
	}
}

// Subscribe registers a subscriber for external keys matching pattern,
// e.g. "external,event_count,*".
func (h *Hub) Subscribe(id, pattern string, buffer int) (*Subscriber, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, errors.InvalidInput("pattern", err.Error())
	}
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil, errors.InvalidInput("hub", "hub is stopped")
	}
	if _, exists := h.subscribers[id]; exists {
		return nil, errors.AlreadyExists("subscriber", id)
	}
	s := &Subscriber{id: id, pattern: pattern, updates: make(chan Update, buffer)}
	h.subscribers[id] = s
	h.log.Debug("subscriber registered", logger.Fields("subscriber", id, "total", len(h.subscribers)))
	return s, nil
}

// Unsubscribe removes the subscriber with id and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(s.updates)
	}
}

// Publish queues u for delivery. It never blocks: when the hub backlog is
// full the update is dropped.
func (h *Hub) Publish(u Update) {
	select {
	case h.broadcast <- u:
	default:
		h.log.Warn("hub backlog full, dropping update", logger.Fields(logger.FieldKey, u.ExternalKey))
	}
}

// Name returns the component name.
func (h *Hub) Name() string { return "reducer-hub" }

// Start launches the delivery loop.
func (h *Hub) Start(_ context.Context) error {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run()
	}()
	return nil
}

// Stop ends the delivery loop and closes every subscriber. Safe to call
// multiple times.
func (h *Hub) Stop(_ context.Context) error {
	h.mu.Lock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
	}
	h.mu.Unlock()
	h.wg.Wait()
	h.closeAll()
	return nil
}

// Health reports the number of subscribers.
func (h *Hub) Health(_ context.Context) component.Health {
	return component.Health{
		Name:    h.Name(),
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d subscribers", h.SubscriberCount()),
	}
}

// Describe returns infrastructure summary info.
func (h *Hub) Describe() component.Description {
	return component.Description{Name: "Reducer Hub", Type: "hub", Details: "glob subscriptions on external keys"}
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case u := <-h.broadcast:
			h.deliver(u)
		}
	}
}

func (h *Hub) deliver(u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	matched := 0
	for _, s := range h.subscribers {
		ok, err := filepath.Match(s.pattern, u.ExternalKey)
		if err != nil || !ok {
			continue
		}
		if s.send(u, h.log) {
			matched++
		}
	}
	h.log.Debug("update delivered", logger.Fields(logger.FieldKey, u.ExternalKey, "match_count", matched))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subscribers {
		close(s.updates)
		delete(h.subscribers, id)
	}
}
