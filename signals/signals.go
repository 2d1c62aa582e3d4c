// Package signals implements the process-wide observable cells the
// core state (documents, models, conversations, processing flags)
// is exposed through, plus derived cells computed from them (spec
// §4.13).
package signals

import "sync"

// Cell is a generic observable value. Set notifies every current
// subscriber with the new value; writes are atomic under the cell's own
// lock, but the core does not require transactional multi-cell updates
// (spec §4.13).
type Cell[T any] struct {
	mu          sync.RWMutex
	value       T
	subscribers []func(T)
}

// NewCell returns a Cell initialized to initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores value and notifies every subscriber.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	c.value = value
	subs := make([]func(T), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, sub := range subs {
		sub(value)
	}
}

// Update applies fn to the current value and stores the result,
// notifying subscribers with the updated value.
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	c.value = fn(c.value)
	value := c.value
	subs := make([]func(T), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, sub := range subs {
		sub(value)
	}
}

// Subscribe registers fn to be called on every future Set/Update,
// returning an unsubscribe function.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
	idx := len(c.subscribers) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.subscribers) {
			c.subscribers = append(c.subscribers[:idx], c.subscribers[idx+1:]...)
		}
	}
}

// Computed derives a read-only Cell[R] from source, re-evaluating fn
// every time source changes. The returned cell's own Set/Update are not
// meant to be called by callers; it exposes Get and Subscribe like any
// other Cell.
func Computed[T, R any](source *Cell[T], fn func(T) R) *Cell[R] {
	derived := NewCell(fn(source.Get()))
	source.Subscribe(func(v T) {
		derived.Set(fn(v))
	})
	return derived
}

// Computed2 derives a cell from two sources, re-evaluating whenever
// either changes. Registry does not use it: ModelsReady is derived with
// Computed from the single Models cell.
func Computed2[A, B, R any](a *Cell[A], b *Cell[B], fn func(A, B) R) *Cell[R] {
	derived := NewCell(fn(a.Get(), b.Get()))
	recompute := func() {
		derived.Set(fn(a.Get(), b.Get()))
	}
	a.Subscribe(func(A) { recompute() })
	b.Subscribe(func(B) { recompute() })
	return derived
}
