// Package frame implements the physical frame allocator (component A):
// zone-based buddy allocation with a global reservation pool, grounded
// in the free-list/buddy design of _examples/iansmith-mazarin's page.go
// (bare-metal Go kernel) but backed by a real anonymous unix.Mmap arena
// so frame addresses are genuine process virtual addresses, the way
// _examples/ehrlich-b-go-ublk mmaps its descriptor/buffer regions.
package frame

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/kestrel-os/kcore/internal/constants"
	"github.com/kestrel-os/kcore/internal/logging"
)

// Flags control an allocation request.
type Flags uint32

const (
	// None requests a normal allocation. Alloc never waits for frames to
	// be freed: with or without Atomic, a request that cannot be met
	// fails at once with ErrOutOfMemory.
	None Flags = 0
	// Atomic marks a request that must not sleep. Alloc never sleeps,
	// so this flag does not change how a request is served.
	Atomic Flags = 1 << iota
	// Reserve draws only from frames backed by an earlier Reserve call.
	Reserve
	// NoReserve draws only from unreserved memory.
	NoReserve
	// Force panics instead of returning failure (used only by early boot
	// paths that have no recovery strategy).
	Force
)

// ErrOutOfMemory is returned when no zone can satisfy a request.
var ErrOutOfMemory = fmt.Errorf("frame: out of memory")

// ErrReservationFailed is returned when Reserve cannot find enough
// unreserved memory to set aside.
var ErrReservationFailed = fmt.Errorf("frame: reservation failed")

const maxOrder = 20 // supports zones up to 2^20 frames (4GiB at 4K pages)

// Frame is per-frame metadata. Index i's Frame describes the frame at
// virtual address arena.base + i*PageSize.
type Frame struct {
	RefCount int32
	Zone     int
	// chargedReservable records whether this frame's capacity was
	// deducted from the allocator's reservable counter at alloc time,
	// so Free knows whether to credit it back.
	chargedReservable bool
}

// zone is a contiguous, non-overlapping range of frames with its own
// buddy free lists.
type zone struct {
	name      string
	base      uint32 // first frame index in this zone
	count     uint32
	mu        sync.Mutex
	freeLists [maxOrder + 1][]uint32 // free block base indices, per order
	freeCount uint32
}

// Allocator owns the frame arena and its zones. Zones are searched in
// the order given to New, matching spec §4.1's "zones are searched in
// priority order".
type Allocator struct {
	arena       []byte // mmap'd backing store, len == totalFrames*PageSize
	frames      []Frame
	zones       []*zone
	reservable  atomic.Int64 // frames available to be reserved
	reservedMu  sync.Mutex
	log         *logging.Logger
}

// New creates an Allocator whose zones have the given frame counts, in
// priority order. The backing store is a single anonymous mmap region.
func New(zoneSizes []uint32, names ...string) (*Allocator, error) {
	var total uint64
	for _, n := range zoneSizes {
		total += uint64(n)
	}
	arena, err := unix.Mmap(-1, 0, int(total)*constants.PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("frame: mmap arena: %w", err)
	}

	a := &Allocator{
		arena:  arena,
		frames: make([]Frame, total),
		log:    logging.Default().WithComponent("frame"),
	}
	a.reservable.Store(0)

	var base uint32
	for i, n := range zoneSizes {
		name := fmt.Sprintf("zone%d", i)
		if i < len(names) {
			name = names[i]
		}
		z := &zone{name: name, base: base, count: n}
		// Seed free lists by greedily carving the zone into the largest
		// aligned power-of-two blocks that fit, exactly as a buddy
		// allocator's initial state would look after a single bulk free.
		cursor := base
		remaining := n
		for remaining > 0 {
			order := bits.Len32(remaining) - 1
			if order > maxOrder {
				order = maxOrder
			}
			for (uint32(1)<<uint(order))&cursor != 0 && order > 0 {
				order-- // keep blocks naturally aligned
			}
			blockSize := uint32(1) << uint(order)
			z.freeLists[order] = append(z.freeLists[order], cursor)
			cursor += blockSize
			remaining -= blockSize
		}
		z.freeCount = n
		for fi := base; fi < base+n; fi++ {
			a.frames[fi] = Frame{Zone: i}
		}
		a.zones = append(a.zones, z)
		a.reservable.Add(int64(n))
		base += n
	}
	return a, nil
}

// Close unmaps the frame arena. Call only at shutdown.
func (a *Allocator) Close() error {
	return unix.Munmap(a.arena)
}

// BaseOf returns the backing-store slice for a frame index, for callers
// (pagetable, addrspace) that need to zero or copy frame contents.
func (a *Allocator) BaseOf(idx uint32) []byte {
	off := uint64(idx) * constants.PageSize
	return a.arena[off : off+constants.PageSize]
}

// Alloc reserves `count` contiguous frames (a power-of-two run) and
// returns the base frame index. count is rounded up to a power of two.
//
// Flag semantics (spec §4.1): a plain call charges the request against
// the reservable counter, same as Reserve immediately followed by use.
// NoReserve bypasses the counter entirely. Reserve assumes the caller
// already charged the counter via an earlier Reserve call and only
// marks the resulting frames so Free credits the counter back.
func (a *Allocator) Alloc(count uint32, flags Flags) (uint32, error) {
	order := orderFor(count)
	n := uint32(1) << uint(order)
	charges := flags&NoReserve == 0
	if charges && flags&Reserve == 0 {
		if !a.takeReservable(int64(n)) {
			return a.fail(flags, ErrOutOfMemory)
		}
	}
	for _, z := range a.zones {
		if idx, ok := z.allocOrder(order); ok {
			for i := idx; i < idx+n; i++ {
				atomic.StoreInt32(&a.frames[i].RefCount, 1)
				a.frames[i].chargedReservable = charges
			}
			return idx, nil
		}
	}
	if charges && flags&Reserve == 0 {
		a.reservable.Add(int64(n))
	}
	return a.fail(flags, ErrOutOfMemory)
}

func (a *Allocator) fail(flags Flags, err error) (uint32, error) {
	if flags&Force != 0 {
		panic(err)
	}
	return 0, err
}

// Free returns `count` contiguous frames, starting at base, to their
// zone's free list, coalescing with buddies where possible.
func (a *Allocator) Free(base uint32, count uint32) {
	order := orderFor(count)
	n := uint32(1) << uint(order)
	z := a.zones[a.frames[base].Zone]
	charged := a.frames[base].chargedReservable
	for i := base; i < base+n; i++ {
		atomic.StoreInt32(&a.frames[i].RefCount, 0)
		a.frames[i].chargedReservable = false
	}
	z.freeOrder(base, order)
	if charged {
		a.reservable.Add(int64(n))
	}
}

// Ref increments a frame's reference count (a new mapping now points to
// it). Returns the new count.
func (a *Allocator) Ref(idx uint32) int32 {
	return atomic.AddInt32(&a.frames[idx].RefCount, 1)
}

// Unref decrements a frame's reference count and frees it when it drops
// to zero. Returns the new count.
func (a *Allocator) Unref(idx uint32) int32 {
	n := atomic.AddInt32(&a.frames[idx].RefCount, -1)
	if n == 0 {
		a.Free(idx, 1)
	}
	return n
}

// RefCount reports a frame's current reference count, for tests and the
// ownership invariant in spec §8.
func (a *Allocator) RefCount(idx uint32) int32 {
	return atomic.LoadInt32(&a.frames[idx].RefCount)
}

// Reserve sets aside `count` frames from the reservable pool without
// allocating them, per spec §4.1.
func (a *Allocator) Reserve(count uint32) error {
	if !a.takeReservable(int64(count)) {
		return ErrReservationFailed
	}
	return nil
}

// Unreserve returns previously reserved frames to the reservable pool.
func (a *Allocator) Unreserve(count uint32) {
	a.reservable.Add(int64(count))
}

func (a *Allocator) takeReservable(n int64) bool {
	a.reservedMu.Lock()
	defer a.reservedMu.Unlock()
	if a.reservable.Load() < n {
		return false
	}
	a.reservable.Add(-n)
	return true
}

// Reservable reports how many frames remain available for reservation.
func (a *Allocator) Reservable() int64 { return a.reservable.Load() }

func orderFor(count uint32) int {
	if count <= 1 {
		return 0
	}
	return bits.Len32(count - 1)
}

// allocOrder finds a free block of exactly `order`, splitting a larger
// block if needed, and returns its base frame index.
func (z *zone) allocOrder(order int) (uint32, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	for o := order; o <= maxOrder; o++ {
		if len(z.freeLists[o]) == 0 {
			continue
		}
		n := len(z.freeLists[o])
		base := z.freeLists[o][n-1]
		z.freeLists[o] = z.freeLists[o][:n-1]
		// Split down to the requested order, stashing the buddy halves.
		for split := o; split > order; split-- {
			half := uint32(1) << uint(split-1)
			z.freeLists[split-1] = append(z.freeLists[split-1], base+half)
		}
		z.freeCount -= uint32(1) << uint(order)
		return base, true
	}
	return 0, false
}

// freeOrder returns a block to the free list, coalescing with its buddy
// at each level while the buddy is also free.
func (z *zone) freeOrder(base uint32, order int) {
	z.mu.Lock()
	defer z.mu.Unlock()
	rel := base - z.base
	for order < maxOrder {
		buddy := rel ^ (uint32(1) << uint(order))
		idx := indexOf(z.freeLists[order], z.base+buddy)
		if idx < 0 {
			break
		}
		z.freeLists[order] = removeAt(z.freeLists[order], idx)
		if buddy < rel {
			rel = buddy
		}
		order++
	}
	z.freeLists[order] = append(z.freeLists[order], z.base+rel)
	z.freeCount += uint32(1) << uint(order)
}

func indexOf(s []uint32, v uint32) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func removeAt(s []uint32, i int) []uint32 {
	s[i] = s[len(s)-1]
	return s[:len(s)-1]
}
