package addrspace

import (
	"sync"

	"github.com/kestrel-os/kcore/internal/frame"
)

// FakeBackend is a call-tracking Backend implementation for tests that
// need to observe the vtable calls AreaCreate/AreaDestroy/AreaShare
// drive, the way ublk's root testing.go exposed MockBackend for its
// own Backend interface. Every method is a no-op beyond bookkeeping
// unless FaultFunc is set.
type FakeBackend struct {
	Resizable bool
	Shareable bool
	FaultFunc func(area *Area, upage uint64, access Access) FaultResult

	mu           sync.Mutex
	CreateCalls  int
	ResizeCalls  int
	ShareCalls   int
	DestroyCalls int
	FaultCalls   int
	FreedFrames  []uint32
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{Resizable: true, Shareable: true}
}

func (f *FakeBackend) Create(area *Area) error {
	f.mu.Lock()
	f.CreateCalls++
	f.mu.Unlock()
	return nil
}

func (f *FakeBackend) Resize(area *Area, newPages uint32) error {
	f.mu.Lock()
	f.ResizeCalls++
	f.mu.Unlock()
	if !f.Resizable {
		return errNotResizable
	}
	return nil
}

func (f *FakeBackend) Share(src, dst *Area) error {
	f.mu.Lock()
	f.ShareCalls++
	f.mu.Unlock()
	if !f.Shareable {
		return errNotShareable
	}
	return nil
}

func (f *FakeBackend) Destroy(area *Area) {
	f.mu.Lock()
	f.DestroyCalls++
	f.mu.Unlock()
}

func (f *FakeBackend) IsResizable() bool { return f.Resizable }
func (f *FakeBackend) IsShareable() bool { return f.Shareable }

func (f *FakeBackend) PageFault(area *Area, upage uint64, access Access) FaultResult {
	f.mu.Lock()
	f.FaultCalls++
	f.mu.Unlock()
	if f.FaultFunc != nil {
		return f.FaultFunc(area, upage, access)
	}
	return FaultFail
}

func (f *FakeBackend) FrameFree(area *Area, upage uint64, frameIdx uint32) {
	f.mu.Lock()
	f.FreedFrames = append(f.FreedFrames, frameIdx)
	f.mu.Unlock()
}

// FakePager builds a Pager whose upcall always answers with the given
// frame index, for tests that need a working user-pager backend
// without standing up a real pager task.
func FakePager(frames *frame.Allocator, frameIdx uint32) *Pager {
	return NewPager(frames, func(upage uint64, access Access) (uint32, error) {
		return frameIdx, nil
	})
}

var (
	_ Backend = (*FakeBackend)(nil)
)
