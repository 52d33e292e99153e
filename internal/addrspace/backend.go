package addrspace

// Access describes the kind of access that triggered a page fault.
type Access uint8

const (
	AccessRead Access = iota
	AccessWrite
	AccessExec
)

// FaultResult is the outcome of resolving a page fault, per spec §4.4
// step 5.
type FaultResult int

const (
	// FaultOK means the mapping now exists and the faulting access can
	// be retried.
	FaultOK FaultResult = iota
	// FaultDefer means the fault occurred inside a kernel
	// copy-from/copy-to-uspace helper with a recovery marker set; the
	// caller unwinds to that marker instead of treating it as fatal.
	FaultDefer
	// FaultFail means the access could not be resolved and must be
	// reported to the faulting task.
	FaultFail
	// FaultSilent means the cause was a benign race (e.g. another
	// thread already installed the mapping); the caller should retry
	// the faulting instruction without surfacing an error.
	FaultSilent
)

// Backend is the memory-backend vtable an Area delegates to, per spec
// §4.4's "create, resize, share, destroy, is_resizable, is_shareable,
// page_fault, frame_free" contract. Concrete variants: Anon, ELF,
// Phys, Pager.
type Backend interface {
	Create(area *Area) error
	Resize(area *Area, newPages uint32) error
	Share(src, dst *Area) error
	Destroy(area *Area)
	IsResizable() bool
	IsShareable() bool
	PageFault(area *Area, upage uint64, access Access) FaultResult
	FrameFree(area *Area, upage uint64, frameIdx uint32)
}
