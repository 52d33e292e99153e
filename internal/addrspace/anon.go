package addrspace

import (
	"github.com/kestrel-os/kcore/internal/frame"
	"github.com/kestrel-os/kcore/internal/pagetable"
)

// Anon is the anonymous memory backend: zero-filled pages allocated
// on first touch, optionally shared copy-on-share via a ShareInfo
// pagemap. Grounded on original_source/backend_anon.c.
type Anon struct {
	frames *frame.Allocator
}

// NewAnon builds an anonymous backend drawing frames from frames.
func NewAnon(frames *frame.Allocator) *Anon { return &Anon{frames: frames} }

func (a *Anon) Create(area *Area) error { return nil }

func (a *Anon) Resize(area *Area, newPages uint32) error {
	// Anonymous areas may always shrink or grow; pages beyond the new
	// bound are freed by the caller via FrameFree after this returns.
	return nil
}

// Share attaches dst to src's share-info, creating one if src does
// not already have one. Pages src has already faulted in are recorded
// in the pagemap here; any other page is recorded when either side
// first faults it in. The pagemap is keyed by page offset within the
// area, so src and dst may sit at different base addresses.
// Every attached area, src included, holds its own reference: the
// first share creates the ShareInfo (one reference for src) and takes
// a second for dst; every later share against the same src just takes
// one more for the new dst.
func (a *Anon) Share(src, dst *Area) error {
	if src.share == nil {
		src.share = NewShareInfo()
	}
	src.share.Ref()
	dst.share = src.share

	src.mu.Lock()
	used := make([]uint64, 0, len(src.usedSpace))
	for upage := range src.usedSpace {
		used = append(used, upage)
	}
	src.mu.Unlock()
	for _, upage := range used {
		if pte, ok := src.as.pt.Walk(upage); ok {
			src.share.Record(upage-src.base, pte.Frame)
		}
	}
	return nil
}

func (a *Anon) Destroy(area *Area) {
	if area.share != nil && area.share.Unref() {
		area.share = nil
	}
}

func (a *Anon) IsResizable() bool { return true }
func (a *Anon) IsShareable() bool { return true }

// PageFault implements spec §4.4 step 4's anon-backend resolution: a
// shared area with a recorded frame reuses it; otherwise a fresh
// zeroed frame is allocated (or, for FlagLateReserve areas, first
// reserved one page at a time).
func (a *Anon) PageFault(area *Area, upage uint64, access Access) FaultResult {
	offset := upage - area.base
	if area.share != nil {
		if f, ok := area.share.Lookup(offset); ok {
			a.frames.Ref(f)
			if err := area.as.pt.Map(upage, f, areaFlagsToPT(area.flags)); err != nil {
				return FaultFail
			}
			area.markUsed(upage)
			return FaultOK
		}
	}

	allocFlags := frame.None
	if area.flags&FlagLateReserve != 0 {
		if err := a.frames.Reserve(1); err != nil {
			return FaultFail
		}
		allocFlags = frame.Reserve
	}
	f, err := a.frames.Alloc(1, allocFlags)
	if err != nil {
		return FaultFail
	}
	zero(a.frames.BaseOf(f))

	if area.share != nil {
		area.share.Record(offset, f)
	}
	if err := area.as.pt.Map(upage, f, areaFlagsToPT(area.flags)); err != nil {
		a.frames.Unref(f)
		return FaultFail
	}
	area.markUsed(upage)
	return FaultOK
}

func (a *Anon) FrameFree(area *Area, upage uint64, frameIdx uint32) {
	a.frames.Unref(frameIdx)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func areaFlagsToPT(f AreaFlags) pagetable.Flags {
	var out pagetable.Flags
	if f&FlagRead != 0 {
		out |= pagetable.Read
	}
	if f&FlagWrite != 0 {
		out |= pagetable.Write
	}
	if f&FlagExec != 0 {
		out |= pagetable.Exec
	}
	if f&FlagUser != 0 {
		out |= pagetable.User
	}
	return out
}
