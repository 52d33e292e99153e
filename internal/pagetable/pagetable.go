// Package pagetable implements the page-table abstraction (component
// C): a single Table interface so the address-space manager never
// depends on an architecture's concrete PTE layout, per spec §4.3's
// "trait/interface PageTable with method set {walk, map, unmap,
// set_flags, invalidate}" redesign. The one implementation here backs
// every mapping with a real unix.Mprotect call against the frame
// arena, so an out-of-permission access in the host process actually
// faults the way a hardware PTE would — the concrete expression of
// SPEC_FULL.md's host-process simulation strategy.
package pagetable

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kestrel-os/kcore/internal/constants"
	"github.com/kestrel-os/kcore/internal/frame"
)

// Flags describe a mapping's permissions and attributes.
type Flags uint8

const (
	Read Flags = 1 << iota
	Write
	Exec
	User
	// CopyOnWrite marks a mapping shared with another address space
	// until the next write fault.
	CopyOnWrite
)

// PTE is a single page-table entry as seen by callers: the backing
// frame and its effective flags.
type PTE struct {
	Frame uint32
	Flags Flags
}

// ShootdownFunc delivers the TLB-invalidation IPI described in spec
// §4.3 to every CPU that has the owning address space active. It is
// supplied by internal/sched, which internal/pagetable must not import
// directly to avoid a dependency cycle.
type ShootdownFunc func(vaddrs []uint64)

// Table is the per-architecture page-table contract. The only
// implementation in this module is Soft, simulating a 4-level table
// with a flat map and Go-level locking instead of real MMU walks.
type Table interface {
	Walk(vaddr uint64) (PTE, bool)
	Map(vaddr uint64, frameIdx uint32, flags Flags) error
	Unmap(vaddr uint64) (PTE, bool)
	SetFlags(vaddr uint64, flags Flags) error
	Invalidate(vaddrs []uint64)
}

// Soft is a software page table over an internal/frame.Allocator
// arena. Its lock doubles as spec §4.3's pt_lock(as, lock_mappings?):
// Lock(true) takes the mapping-mutating path, Lock(false) only the
// read path.
type Soft struct {
	mu        sync.RWMutex
	entries   map[uint64]PTE
	frames    *frame.Allocator
	shootdown ShootdownFunc
}

// New creates an empty software page table bound to frames. shootdown
// may be nil during early boot, before any CPU has this address space
// active.
func New(frames *frame.Allocator, shootdown ShootdownFunc) *Soft {
	return &Soft{
		entries:   make(map[uint64]PTE),
		frames:    frames,
		shootdown: shootdown,
	}
}

// SetShootdown wires the cross-CPU IPI dispatcher once the owning
// address space is known to the scheduler.
func (t *Soft) SetShootdown(fn ShootdownFunc) {
	t.mu.Lock()
	t.shootdown = fn
	t.mu.Unlock()
}

// Lock acquires pt_lock per spec §4.3. lockMappings selects the
// read-write path (Map/Unmap/SetFlags) versus the read-only path
// (Walk); the returned function releases whichever was taken.
func (t *Soft) Lock(lockMappings bool) func() {
	if lockMappings {
		t.mu.Lock()
		return t.mu.Unlock
	}
	t.mu.RLock()
	return t.mu.RUnlock
}

// Walk looks up the PTE for vaddr without taking the mutating lock.
func (t *Soft) Walk(vaddr uint64) (PTE, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pte, ok := t.entries[key(vaddr)]
	return pte, ok
}

// Map installs a mapping from vaddr to frameIdx and applies the
// equivalent host protection to the backing frame via Mprotect.
func (t *Soft) Map(vaddr uint64, frameIdx uint32, flags Flags) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key(vaddr)] = PTE{Frame: frameIdx, Flags: flags}
	return t.protect(frameIdx, flags)
}

// Unmap removes a mapping and returns the PTE that was there, if any.
// It does not itself invalidate the TLB; call Invalidate afterward,
// once per batch, per spec §4.3's amortized-shootdown rule.
func (t *Soft) Unmap(vaddr uint64) (PTE, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(vaddr)
	pte, ok := t.entries[k]
	if ok {
		delete(t.entries, k)
	}
	return pte, ok
}

// SetFlags updates a mapping's permission bits in place, re-applying
// host protection.
func (t *Soft) SetFlags(vaddr uint64, flags Flags) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(vaddr)
	pte, ok := t.entries[k]
	if !ok {
		return fmt.Errorf("pagetable: no mapping at vaddr %#x", vaddr)
	}
	pte.Flags = flags
	t.entries[k] = pte
	return t.protect(pte.Frame, flags)
}

// Invalidate flushes the given virtual addresses from every CPU that
// might have them cached, by way of one shootdown call covering the
// whole batch — never one IPI per page.
func (t *Soft) Invalidate(vaddrs []uint64) {
	t.mu.RLock()
	fn := t.shootdown
	t.mu.RUnlock()
	if fn != nil && len(vaddrs) > 0 {
		fn(vaddrs)
	}
}

func (t *Soft) protect(frameIdx uint32, flags Flags) error {
	if t.frames == nil {
		return nil
	}
	page := t.frames.BaseOf(frameIdx)
	prot := unix.PROT_NONE
	if flags&Read != 0 {
		prot |= unix.PROT_READ
	}
	if flags&Write != 0 {
		prot |= unix.PROT_WRITE
	}
	if flags&Exec != 0 {
		prot |= unix.PROT_EXEC
	}
	return unix.Mprotect(page, prot)
}

func key(vaddr uint64) uint64 {
	return vaddr &^ (constants.PageSize - 1)
}
