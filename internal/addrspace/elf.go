package addrspace

import "github.com/kestrel-os/kcore/internal/frame"

// ELF is the ELF-segment backend: pages within the file-backed
// portion of a segment map the segment's frames read-only (or
// writable, for a writable segment); pages past the file-backed
// length are anonymous, copy-on-write zero pages, matching how a BSS
// tail is demand-zeroed.
type ELF struct {
	frames *frame.Allocator
	// FileFrames holds one entry per file-backed page, the frame that
	// already contains that page's bytes (loaded once at task creation).
	FileFrames []uint32
}

func NewELF(frames *frame.Allocator, fileFrames []uint32) *ELF {
	return &ELF{frames: frames, FileFrames: fileFrames}
}

func (e *ELF) Create(area *Area) error  { return nil }
func (e *ELF) Resize(*Area, uint32) error {
	return errNotResizable
}
func (e *ELF) Share(*Area, *Area) error { return errNotShareable }
func (e *ELF) Destroy(*Area)            {}
func (e *ELF) IsResizable() bool        { return false }
func (e *ELF) IsShareable() bool        { return false }

func (e *ELF) PageFault(area *Area, upage uint64, access Access) FaultResult {
	offset := int((upage - area.base) / pageSize)
	if offset < len(e.FileFrames) {
		f := e.FileFrames[offset]
		e.frames.Ref(f)
		if err := area.as.pt.Map(upage, f, areaFlagsToPT(area.flags)); err != nil {
			return FaultFail
		}
		area.markUsed(upage)
		return FaultOK
	}

	f, err := e.frames.Alloc(1, frame.None)
	if err != nil {
		return FaultFail
	}
	zero(e.frames.BaseOf(f))
	if err := area.as.pt.Map(upage, f, areaFlagsToPT(area.flags)); err != nil {
		e.frames.Unref(f)
		return FaultFail
	}
	area.markUsed(upage)
	return FaultOK
}

func (e *ELF) FrameFree(area *Area, upage uint64, frameIdx uint32) {
	e.frames.Unref(frameIdx)
}
