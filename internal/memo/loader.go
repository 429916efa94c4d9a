// Package memo provides a process-wide memoized asynchronous initializer.
//
// The first caller of Loader.Get starts the load; callers arriving while it
// is in flight wait for the same result. A successful result is cached for
// the lifetime of the Loader. A failed load is not cached, so a later call
// starts a fresh attempt.
package memo

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

const flightKey = "load"

// LoadFunc performs the one-time initialisation.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Loader memoizes the result of a LoadFunc.
type Loader[T any] struct {
	load  LoadFunc[T]
	group singleflight.Group

	mu     sync.Mutex
	loaded bool
	value  T
}

// New returns a Loader that runs load at most once per successful result.
func New[T any](load LoadFunc[T]) *Loader[T] {
	return &Loader[T]{load: load}
}

// Get returns the memoized value, running the load if no successful result
// exists yet. The shared load is detached from the caller's cancellation:
// a caller whose ctx ends stops waiting, but the load keeps going for the
// other waiters.
func (l *Loader[T]) Get(ctx context.Context) (T, error) {
	if value, ok := l.cached(); ok {
		return value, nil
	}

	ch := l.group.DoChan(flightKey, func() (any, error) {
		if value, ok := l.cached(); ok {
			return value, nil
		}
		value, err := l.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.value = value
		l.loaded = true
		l.mu.Unlock()
		return value, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		value, _ := res.Val.(T)
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Loaded reports whether a successful result is cached.
func (l *Loader[T]) Loaded() bool {
	_, ok := l.cached()
	return ok
}

// Reset forgets the cached result. An in-flight load is not interrupted.
func (l *Loader[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.value = zero
	l.loaded = false
}

func (l *Loader[T]) cached() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.loaded
}
