// Package reactive provides synchronous observable values. A Value pushes
// every change to its subscribers before Set returns; a Derived recomputes a
// projection of a source Value once per change.
package reactive

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Subscriber receives values pushed by a Value or Derived.
type Subscriber[T any] func(T)

type subscription[T any] struct {
	fn     Subscriber[T]
	mu     sync.Mutex
	active atomic.Bool
}

func (s *subscription[T]) deliver(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Load() {
		return
	}
	s.fn(v)
}

// Value holds a single observable value.
//
// Writes are serialized: each Set (or Update) stores the value and notifies
// every subscriber, in registration order, before the next write is
// accepted. Subscribers must not write to the Value they observe from inside
// their callback.
type Value[T any] struct {
	publish sync.Mutex

	mu      sync.RWMutex
	value   T
	version uint64
	subs    []*subscription[T]
}

// NewValue constructs a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{value: initial}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

func (v *Value[T]) snapshot() (T, uint64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value, v.version
}

// Set stores next and synchronously notifies all current subscribers.
func (v *Value[T]) Set(next T) {
	v.publish.Lock()
	defer v.publish.Unlock()
	v.commit(next)
}

// Update replaces the value with fn(current).
func (v *Value[T]) Update(fn func(T) T) {
	_ = v.TryUpdate(func(cur T) (T, error) {
		return fn(cur), nil
	})
}

// TryUpdate computes the next value from the current one. When fn returns an
// error nothing is stored, no subscriber is notified and the error is
// returned unchanged.
func (v *Value[T]) TryUpdate(fn func(T) (T, error)) error {
	v.publish.Lock()
	defer v.publish.Unlock()
	next, err := fn(v.Get())
	if err != nil {
		return err
	}
	v.commit(next)
	return nil
}

// commit requires v.publish to be held.
func (v *Value[T]) commit(next T) {
	v.mu.Lock()
	v.value = next
	v.version++
	subs := slices.Clone(v.subs)
	v.mu.Unlock()

	for _, s := range subs {
		s.deliver(next)
	}
}

// Subscribe registers fn, delivers the current value to it immediately and
// then once per subsequent change. The returned function stops future
// deliveries; calling it more than once is harmless.
func (v *Value[T]) Subscribe(fn Subscriber[T]) (unsubscribe func()) {
	s := &subscription[T]{fn: fn}
	s.active.Store(true)

	// Hold the subscription lock across registration and the initial
	// delivery so a concurrent Set cannot overtake the initial value.
	s.mu.Lock()
	v.mu.Lock()
	v.subs = append(v.subs, s)
	current := v.value
	v.mu.Unlock()
	fn(current)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			v.mu.Lock()
			v.subs = slices.DeleteFunc(v.subs, func(other *subscription[T]) bool { return other == s })
			v.mu.Unlock()
		})
	}
}

// Subscribers reports the number of registered subscribers.
func (v *Value[T]) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}
