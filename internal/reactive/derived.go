package reactive

import "sync"

// Derived is a read-only projection of a source Value. fn is evaluated once
// per source change, before any subscriber registered on the source after
// the Derived was created.
type Derived[S, T any] struct {
	src *Value[S]
	fn  func(S) T
	out *Value[T]

	mu      sync.Mutex
	cached  T
	version uint64
	valid   bool

	stop func()
}

// Derive attaches a projection to src.
func Derive[S, T any](src *Value[S], fn func(S) T) *Derived[S, T] {
	var zero T
	d := &Derived[S, T]{src: src, fn: fn, out: NewValue(zero)}
	d.stop = src.Subscribe(func(S) { d.recompute() })
	return d
}

// recompute reads the source snapshot rather than the delivered value so the
// cache is always tagged with the version it was computed from.
func (d *Derived[S, T]) recompute() {
	s, ver := d.src.snapshot()
	d.mu.Lock()
	if d.valid && d.version == ver {
		d.mu.Unlock()
		return
	}
	next := d.fn(s)
	d.cached, d.version, d.valid = next, ver, true
	d.mu.Unlock()

	d.out.Set(next)
}

// Get returns the projection of the current source value.
func (d *Derived[S, T]) Get() T {
	_, out := d.Snapshot()
	return out
}

// Snapshot returns the current source value together with its projection.
// Both come from the same source version, so concurrent writes can never
// pair one with the other's predecessor.
func (d *Derived[S, T]) Snapshot() (S, T) {
	s, ver := d.src.snapshot()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.valid && d.version == ver {
		return s, d.cached
	}
	// Source moved ahead of propagation; compute without caching so the
	// pending recompute still notifies subscribers.
	return s, d.fn(s)
}

// Subscribe registers fn with the same contract as Value.Subscribe.
func (d *Derived[S, T]) Subscribe(fn Subscriber[T]) (unsubscribe func()) {
	return d.out.Subscribe(fn)
}

// Close detaches the projection from its source. Existing subscribers stop
// receiving updates.
func (d *Derived[S, T]) Close() {
	if d.stop != nil {
		d.stop()
	}
}
