// Package observe provides a subscribable value container.
package observe

import "sync"

// Value holds a value of type T and notifies subscribers after every change.
//
// Notifications are delivered in the order changes were applied, one change
// at a time. Callbacks may call Get, Set and Update; a change made while a
// notification is being delivered is queued and delivered by the goroutine
// already delivering, after the current one.
type Value[T any] struct {
	mu         sync.Mutex
	current    T
	nextID     int
	subs       map[int]func(T)
	pending    []notification[T]
	delivering bool
}

type notification[T any] struct {
	value T
	subs  []func(T)
}

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[int]func(T)),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the current value and notifies subscribers.
func (v *Value[T]) Set(next T) {
	v.Update(func(T) (T, bool) { return next, true })
}

// Update applies fn to the current value. When fn reports changed, the
// returned value is stored and subscribers are notified with it. It reports
// whether a change was applied. fn runs with the value locked and must not
// call back into v.
func (v *Value[T]) Update(fn func(current T) (next T, changed bool)) bool {
	v.mu.Lock()
	next, changed := fn(v.current)
	if !changed {
		v.mu.Unlock()
		return false
	}
	v.current = next
	subs := make([]func(T), 0, len(v.subs))
	for _, id := range v.sortedIDs() {
		subs = append(subs, v.subs[id])
	}
	v.pending = append(v.pending, notification[T]{value: next, subs: subs})
	if v.delivering {
		v.mu.Unlock()
		return true
	}
	v.delivering = true
	v.mu.Unlock()

	v.drain()
	return true
}

func (v *Value[T]) drain() {
	for {
		v.mu.Lock()
		if len(v.pending) == 0 {
			v.delivering = false
			v.mu.Unlock()
			return
		}
		n := v.pending[0]
		v.pending = v.pending[1:]
		v.mu.Unlock()

		for _, fn := range n.subs {
			fn(n.value)
		}
	}
}

// Subscribe registers fn for change notifications. The returned function
// removes the subscription; calling it more than once is safe.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	v.mu.Lock()
	id := v.register(fn)
	v.mu.Unlock()
	return v.unsubscriber(id)
}

// register adds fn and returns its id. Caller holds mu.
func (v *Value[T]) register(fn func(T)) int {
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	return id
}

func (v *Value[T]) unsubscriber(id int) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// GetAndSubscribe registers fn and returns the value current at the moment
// of registration. Every change applied after that value is delivered to fn.
func (v *Value[T]) GetAndSubscribe(fn func(T)) (current T, unsubscribe func()) {
	v.mu.Lock()
	current = v.current
	id := v.register(fn)
	v.mu.Unlock()
	return current, v.unsubscriber(id)
}

// Subscribers returns the number of registered subscribers.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// sortedIDs returns subscription ids in registration order. Caller holds mu.
func (v *Value[T]) sortedIDs() []int {
	ids := make([]int, 0, len(v.subs))
	for id := 0; id < v.nextID; id++ {
		if _, ok := v.subs[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
