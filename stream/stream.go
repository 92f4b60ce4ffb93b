package stream

import (
	"context"
	"sync"
)

// Iterator is a finite, forward-only sequence.
type Iterator[T any] interface {
	// Next yields the next item. ok is false once the sequence is
	// exhausted; err is non-nil when producing the item failed.
	Next(ctx context.Context) (item T, ok bool, err error)
	// Close releases upstream resources.
	Close() error
}

// FromSlice iterates items in order.
func FromSlice[T any](items []T) Iterator[T] {
	return &slice[T]{rest: items}
}

// FromFunc iterates by calling next. closer may be nil.
func FromFunc[T any](next func(ctx context.Context) (T, bool, error), closer func() error) Iterator[T] {
	return &fn[T]{next: next, closer: closer}
}

// Chunk batches src into slices of up to size items, emitting each batch
// as soon as it fills.
func Chunk[T any](src Iterator[T], size int) Iterator[[]T] {
	size = max(size, 1)
	return &chunked[T]{src: src, size: size, limit: size}
}

// Ramp batches src like Chunk, but the first batch holds one item and each
// later batch doubles up to limit. The first item is never held back
// waiting for a full batch.
func Ramp[T any](src Iterator[T], limit int) Iterator[[]T] {
	return &chunked[T]{src: src, size: 1, limit: max(limit, 1)}
}

// Collect drains it into a non-nil slice and closes it. Items read before
// an error are returned with it.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Close()
	out := []T{}
	for {
		item, ok, err := it.Next(ctx)
		if err != nil || !ok {
			return out, err
		}
		out = append(out, item)
	}
}

// OnceCloser makes Close idempotent, so an owner can close every stream it
// built even when a consumer already closed some.
func OnceCloser[T any](it Iterator[T]) Iterator[T] {
	if _, ok := it.(*closeOnce[T]); ok {
		return it
	}
	return &closeOnce[T]{Iterator: it}
}

type slice[T any] struct {
	rest []T
}

func (s *slice[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if len(s.rest) == 0 {
		return zero, false, nil
	}
	item := s.rest[0]
	s.rest = s.rest[1:]
	return item, true, nil
}

func (*slice[T]) Close() error { return nil }

type fn[T any] struct {
	next   func(ctx context.Context) (T, bool, error)
	closer func() error
}

func (f *fn[T]) Next(ctx context.Context) (T, bool, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, false, err
	}
	return f.next(ctx)
}

func (f *fn[T]) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer()
}

type chunked[T any] struct {
	src   Iterator[T]
	size  int
	limit int
	done  bool
}

func (c *chunked[T]) Next(ctx context.Context) ([]T, bool, error) {
	var batch []T
	for !c.done && len(batch) < c.size {
		item, ok, err := c.src.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			c.done = true
			break
		}
		if batch == nil {
			batch = make([]T, 0, c.size)
		}
		batch = append(batch, item)
	}
	c.size = min(c.size*2, c.limit)
	return batch, len(batch) > 0, nil
}

func (c *chunked[T]) Close() error { return c.src.Close() }

type closeOnce[T any] struct {
	Iterator[T]
	once sync.Once
	err  error
}

func (c *closeOnce[T]) Close() error {
	c.once.Do(func() { c.err = c.Iterator.Close() })
	return c.err
}
