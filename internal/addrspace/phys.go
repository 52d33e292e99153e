package addrspace

// Phys is the physical-range backend: every page of the area maps to
// a fixed, caller-supplied frame range (device memory, framebuffers).
// It is never resizable or shareable — the mapping is a fixed
// contract with the hardware layout it represents.
type Phys struct {
	// BaseFrame is the frame index backing the area's first page.
	BaseFrame uint32
}

func NewPhys(baseFrame uint32) *Phys { return &Phys{BaseFrame: baseFrame} }

func (p *Phys) Create(area *Area) error  { return nil }
func (p *Phys) Resize(*Area, uint32) error {
	return errNotResizable
}
func (p *Phys) Share(*Area, *Area) error { return errNotShareable }
func (p *Phys) Destroy(*Area)            {}
func (p *Phys) IsResizable() bool        { return false }
func (p *Phys) IsShareable() bool        { return false }

// PageFault installs a fixed mapping from upage's offset within the
// area to the corresponding physical frame; there is nothing to
// allocate.
func (p *Phys) PageFault(area *Area, upage uint64, access Access) FaultResult {
	offset := (upage - area.base) / pageSize
	frameIdx := p.BaseFrame + uint32(offset)
	if err := area.as.pt.Map(upage, frameIdx, areaFlagsToPT(area.flags)); err != nil {
		return FaultFail
	}
	area.markUsed(upage)
	return FaultOK
}

func (p *Phys) FrameFree(*Area, uint64, uint32) {
	// Physical frames are owned by whoever set up the range, not by
	// the frame allocator's refcounting; nothing to release here.
}
