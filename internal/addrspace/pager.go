package addrspace

import "github.com/kestrel-os/kcore/internal/frame"

// PagerFunc answers a user-pager upcall: given the faulting page and
// access, it returns the frame that should back it.
type PagerFunc func(upage uint64, access Access) (uint32, error)

// Pager is the user-pager backend: every fault synchronously upcalls
// a registered pager task to obtain the frame before installing it,
// per spec §4.4's "user-pager backend" bullet.
type Pager struct {
	frames *frame.Allocator
	fn     PagerFunc
}

func NewPager(frames *frame.Allocator, fn PagerFunc) *Pager {
	return &Pager{frames: frames, fn: fn}
}

func (p *Pager) Create(area *Area) error  { return nil }
func (p *Pager) Resize(*Area, uint32) error {
	return errNotResizable
}
func (p *Pager) Share(*Area, *Area) error { return errNotShareable }
func (p *Pager) Destroy(*Area)            {}
func (p *Pager) IsResizable() bool        { return false }
func (p *Pager) IsShareable() bool        { return false }

func (p *Pager) PageFault(area *Area, upage uint64, access Access) FaultResult {
	f, err := p.fn(upage, access)
	if err != nil {
		return FaultFail
	}
	if err := area.as.pt.Map(upage, f, areaFlagsToPT(area.flags)); err != nil {
		return FaultFail
	}
	area.markUsed(upage)
	return FaultOK
}

func (p *Pager) FrameFree(area *Area, upage uint64, frameIdx uint32) {
	p.frames.Unref(frameIdx)
}
