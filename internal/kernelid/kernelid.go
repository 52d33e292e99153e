// Package kernelid implements the id+generation-counter strategy called
// out in spec §9 for breaking pointer-rich cyclic kernel object graphs
// (thread ↔ wait queue ↔ answerbox ↔ phone ↔ task). Every long-lived
// kernel object is looked up by a stable numeric id plus a generation
// stamp; cross-references hold the Handle, not a pointer, so a stale
// reference to a destroyed-and-reused id slot is detectable instead of
// dangling.
package kernelid

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is an opaque reference to a kernel object: a dense numeric id
// for O(1) arena indexing, plus a generation that changes every time the
// id slot is recycled so a holder of a stale Handle can detect it.
type Handle struct {
	ID  uint64
	Gen uuid.UUID
}

// Valid reports whether h was ever issued by an Arena (zero Handle is
// never valid).
func (h Handle) Valid() bool { return h.ID != 0 }

var counter atomic.Uint64

// next returns a fresh dense id, process-wide unique.
func next() uint64 { return counter.Add(1) }

// Arena is a generation-checked lookup table for kernel objects of type
// T, keyed by Handle. It is the "authoritative object in an arena keyed
// by id" strategy from spec §9, generalized with Go generics.
type Arena[T any] struct {
	mu   sync.RWMutex
	objs map[uint64]entry[T]
}

type entry[T any] struct {
	gen uuid.UUID
	val T
}

// NewArena constructs an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{objs: make(map[uint64]entry[T])}
}

// Insert stores val under a freshly minted Handle.
func (a *Arena[T]) Insert(val T) Handle {
	h := Handle{ID: next(), Gen: uuid.New()}
	a.mu.Lock()
	a.objs[h.ID] = entry[T]{gen: h.Gen, val: val}
	a.mu.Unlock()
	return h
}

// Lookup returns the object for h if h's generation still matches the
// live occupant of its id slot.
func (a *Arena[T]) Lookup(h Handle) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.objs[h.ID]
	if !ok || e.gen != h.Gen {
		var zero T
		return zero, false
	}
	return e.val, true
}

// Remove deletes the object referenced by h, if its generation matches.
// Removing invalidates every other outstanding Handle to the same slot
// immediately, even before the id is ever reused.
func (a *Arena[T]) Remove(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.objs[h.ID]
	if !ok || e.gen != h.Gen {
		return false
	}
	delete(a.objs, h.ID)
	return true
}

// Len returns the number of live objects, for tests and metrics.
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.objs)
}
