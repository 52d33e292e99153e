package addrspace

import "sync"

// ShareInfo is the reference-counted pagemap backing copy-on-share
// semantics for anonymous areas, per spec §3's "Share-info" data
// model entry. Grounded on original_source/backend_anon.c's share
// pagemap (SUPPLEMENTED FEATURES): entries are added for the pages the
// source area already has mapped when it is shared, and for every other
// page when either side of the share first faults it in.
type ShareInfo struct {
	mu       sync.Mutex
	refCount int
	pagemap  map[uint64]uint32 // page offset within the area -> frame index
}

// NewShareInfo creates a ShareInfo with one reference, held by the
// area that creates it.
func NewShareInfo() *ShareInfo {
	return &ShareInfo{refCount: 1, pagemap: make(map[uint64]uint32)}
}

// Ref adds a reference, taken when another area attaches to this
// share-info via Share.
func (s *ShareInfo) Ref() {
	s.mu.Lock()
	s.refCount++
	s.mu.Unlock()
}

// Unref drops a reference and reports whether it reached zero, at
// which point the caller should discard the ShareInfo.
func (s *ShareInfo) Unref() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refCount--
	return s.refCount == 0
}

// Lookup returns the frame backing the page at offset (bytes from the
// area base), if one has already been recorded by either side of the
// share.
func (s *ShareInfo) Lookup(offset uint64) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.pagemap[offset]
	return f, ok
}

// Record remembers the frame backing the page at offset (bytes from the
// area base), so the other side reuses it instead of allocating a
// second frame for the same shared page.
func (s *ShareInfo) Record(offset uint64, frameIdx uint32) {
	s.mu.Lock()
	s.pagemap[offset] = frameIdx
	s.mu.Unlock()
}
