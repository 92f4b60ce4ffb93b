package dag

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/ETS-Next-Gen/writing-observer-sub002/stream"
)

// State holds the node results of one run. A lazy result with more than one
// consumer is shared: the first take wraps it in a replay buffer and every
// consumer receives its own fork.
type State struct {
	mu        sync.Mutex
	data      map[string]any
	consumers map[string]int
	shared    map[string]*stream.Shared[any]
	streams   []stream.Iterator[any]
}

// NewState creates an empty State. consumers counts, per node, how many
// argument slots and exports will take its result.
func NewState(consumers map[string]int) *State {
	if consumers == nil {
		consumers = make(map[string]int)
	}
	return &State{
		data:      make(map[string]any),
		consumers: consumers,
		shared:    make(map[string]*stream.Shared[any]),
	}
}

// Set stores a node result. Streams are tracked so Close can release them.
func (s *State) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := value.(stream.Iterator[any]); ok {
		it = stream.OnceCloser(it)
		s.streams = append(s.streams, it)
		value = it
	}
	s.data[name] = value
}

// Get returns the raw stored result without sharing it.
func (s *State) Get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[name]
	return v, ok
}

// Take returns name's result for one consumer.
func (s *State) Take(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[name]
	if !ok {
		return nil, false
	}
	it, lazy := v.(stream.Iterator[any])
	if !lazy || s.consumers[name] <= 1 {
		return v, true
	}
	sh, exists := s.shared[name]
	if !exists {
		sh = stream.Share(it)
		s.shared[name] = sh
	}
	return sh.Fork(), true
}

// Close releases every stream created during the run.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, sh := range s.shared {
		err = multierr.Append(err, sh.Close())
	}
	for _, it := range s.streams {
		err = multierr.Append(err, it.Close())
	}
	return err
}
