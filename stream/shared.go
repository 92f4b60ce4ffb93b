package stream

import (
	"context"
	"errors"
	"sync"
)

// Shared materializes a source iterator into an ordered buffer the first
// time it is read, so that any number of forks replay the same sequence
// while the source is pulled exactly once.
type Shared[T any] struct {
	mu     sync.Mutex
	source Iterator[T]
	buf    []T
	done   bool
	err    error
	closed bool
}

// Share wraps source for replay. The caller owns the Shared and must Close it.
func Share[T any](source Iterator[T]) *Shared[T] {
	return &Shared[T]{source: source}
}

// Fork returns a new iterator positioned at the start of the sequence.
func (s *Shared[T]) Fork() Iterator[T] {
	return &forkIter[T]{shared: s}
}

// Buffered returns how many items have been pulled from the source so far.
func (s *Shared[T]) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Close releases the source. Forks keep replaying what was buffered.
func (s *Shared[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.done {
		s.done = true
	}
	return s.source.Close()
}

// at returns item i, pulling from the source when i is past the buffer.
// Pulls are serialized by s.mu so concurrent forks never race the source.
func (s *Shared[T]) at(ctx context.Context, i int) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	for i >= len(s.buf) {
		if s.done {
			return zero, false, s.err
		}
		val, ok, err := s.source.Next(ctx)
		if err != nil {
			// A canceled reader must not poison the sequence for the others.
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return zero, false, err
			}
			s.done, s.err = true, err
			return zero, false, err
		}
		if !ok {
			s.done = true
			return zero, false, nil
		}
		s.buf = append(s.buf, val)
	}
	return s.buf[i], true, nil
}

type forkIter[T any] struct {
	shared *Shared[T]
	pos    int
	closed bool
}

func (it *forkIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if it.closed {
		return zero, false, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	val, ok, err := it.shared.at(ctx, it.pos)
	if ok {
		it.pos++
	}
	return val, ok, err
}

func (it *forkIter[T]) Close() error {
	it.closed = true
	return nil
}
