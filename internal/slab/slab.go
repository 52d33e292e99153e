// Package slab implements object-sized caches over the frame allocator
// (component B): per-shard magazines backed by a shared depot, plus a
// general-purpose size-class allocator built on top. The magazine/depot
// split is Bonwick's slab allocator algorithm; the bucketed-pool shape
// is grounded directly on _examples/ehrlich-b-go-ublk's
// internal/queue/pool.go, generalized from raw []byte buckets to
// typed object caches with constructor/destructor hooks.
package slab

import (
	"sync"
)

// magazineCapacity bounds how many objects a single magazine holds
// before it is considered full and pushed to the depot.
const magazineCapacity = 16

type magazine struct {
	objs [magazineCapacity]any
	n    int
}

func (m *magazine) push(v any) bool {
	if m.n == magazineCapacity {
		return false
	}
	m.objs[m.n] = v
	m.n++
	return true
}

func (m *magazine) pop() (any, bool) {
	if m.n == 0 {
		return nil, false
	}
	m.n--
	v := m.objs[m.n]
	m.objs[m.n] = nil
	return v, true
}

// shard is the per-CPU-magazine slot. Real per-CPU affinity isn't
// available to user-space Go without runtime internals, so a shard is
// selected round-robin and its operations are serialized by a mutex in
// place of spec §4.2's "preemption disabled, not a spinlock" — cheaper
// than a cache-line-bouncing global lock, which is the property that
// matters here.
type shard struct {
	mu       sync.Mutex
	loaded   *magazine
	previous *magazine
}

// Cache is an object-sized cache over raw Go allocation, mirroring the
// ublk pool's size-bucketed sync.Pool but with explicit lifecycle hooks
// and an O(1) amortized alloc/free path.
type Cache struct {
	name   string
	ctor   func() any
	dtor   func(any)
	shards []*shard

	depotMu    sync.Mutex
	fullDepot  []*magazine
	emptyDepot []*magazine

	next uint64 // round-robin shard selector
	nextMu sync.Mutex
}

// NewCache creates a cache with the given constructor/destructor hooks
// and shard count (typically GOMAXPROCS). ctor is invoked exactly once
// per object, at construction; dtor exactly once, at cache teardown via
// Destroy — never on every Free, matching spec §4.2.
func NewCache(name string, shards int, ctor func() any, dtor func(any)) *Cache {
	if shards < 1 {
		shards = 1
	}
	c := &Cache{name: name, ctor: ctor, dtor: dtor}
	for i := 0; i < shards; i++ {
		c.shards = append(c.shards, &shard{loaded: &magazine{}, previous: &magazine{}})
	}
	return c
}

func (c *Cache) pickShard() *shard {
	c.nextMu.Lock()
	i := c.next % uint64(len(c.shards))
	c.next++
	c.nextMu.Unlock()
	return c.shards[i]
}

// Alloc returns an object from the cache, constructing a fresh one only
// when both magazines of the selected shard and the depot are empty;
// objects parked in other shards' magazines are not searched.
func (c *Cache) Alloc() any {
	s := c.pickShard()
	s.mu.Lock()
	if v, ok := s.loaded.pop(); ok {
		s.mu.Unlock()
		return v
	}
	if v, ok := s.previous.pop(); ok {
		s.mu.Unlock()
		return v
	}
	// Both magazines empty: try to swap one in from the depot.
	c.depotMu.Lock()
	if n := len(c.fullDepot); n > 0 {
		m := c.fullDepot[n-1]
		c.fullDepot = c.fullDepot[:n-1]
		c.depotMu.Unlock()
		s.previous = s.loaded
		s.loaded = m
		v, _ := s.loaded.pop()
		s.mu.Unlock()
		return v
	}
	c.depotMu.Unlock()
	s.mu.Unlock()
	return c.ctor()
}

// Free returns an object to the cache, moving a full magazine to the
// shared depot when the local pair overflows.
func (c *Cache) Free(v any) {
	s := c.pickShard()
	s.mu.Lock()
	if s.loaded.push(v) {
		s.mu.Unlock()
		return
	}
	if s.previous.n < magazineCapacity {
		s.loaded, s.previous = s.previous, s.loaded
		s.loaded.push(v)
		s.mu.Unlock()
		return
	}
	// Both magazines full: hand the loaded one to the depot and start fresh.
	full := s.loaded
	c.depotMu.Lock()
	c.fullDepot = append(c.fullDepot, full)
	c.depotMu.Unlock()

	s.loaded = c.takeEmpty()
	s.loaded.push(v)
	s.mu.Unlock()
}

func (c *Cache) takeEmpty() *magazine {
	c.depotMu.Lock()
	defer c.depotMu.Unlock()
	if n := len(c.emptyDepot); n > 0 {
		m := c.emptyDepot[n-1]
		c.emptyDepot = c.emptyDepot[:n-1]
		return m
	}
	return &magazine{}
}

// Destroy runs the destructor over every object still parked in a
// magazine or the depot. Objects already handed out to callers are the
// caller's responsibility.
func (c *Cache) Destroy() {
	if c.dtor == nil {
		return
	}
	for _, s := range c.shards {
		s.mu.Lock()
		for i := 0; i < s.loaded.n; i++ {
			c.dtor(s.loaded.objs[i])
		}
		for i := 0; i < s.previous.n; i++ {
			c.dtor(s.previous.objs[i])
		}
		s.mu.Unlock()
	}
	c.depotMu.Lock()
	for _, m := range c.fullDepot {
		for i := 0; i < m.n; i++ {
			c.dtor(m.objs[i])
		}
	}
	c.depotMu.Unlock()
}

// Heap is a general-purpose malloc/free built from a fixed ladder of
// size-class Caches, the same "small set of size buckets" strategy as
// the ublk BufferPool this package is grounded on, generalized from
// []byte to arbitrary byte-slice allocations.
type Heap struct {
	classes []int
	caches  []*Cache
}

// NewHeap builds a Heap with the given power-of-two size classes
// (e.g. 64, 256, 1024, 4096) and shard count.
func NewHeap(classes []int, shards int) *Heap {
	h := &Heap{classes: classes}
	for _, size := range classes {
		size := size
		h.caches = append(h.caches, NewCache(
			"heap-class", shards,
			func() any { return make([]byte, size) },
			nil,
		))
	}
	return h
}

// Malloc returns a zeroed buffer of at least n bytes from the smallest
// size class that fits, or falls back to a direct allocation for
// oversized requests.
func (h *Heap) Malloc(n int) []byte {
	for i, size := range h.classes {
		if n <= size {
			buf := h.caches[i].Alloc().([]byte)
			for j := range buf {
				buf[j] = 0
			}
			return buf[:n]
		}
	}
	return make([]byte, n)
}

// Free returns buf to its size class, if it matches one exactly by
// capacity; otherwise it is left for the garbage collector.
func (h *Heap) Free(buf []byte) {
	c := cap(buf)
	for i, size := range h.classes {
		if c == size {
			h.caches[i].Free(buf[:size])
			return
		}
	}
}
