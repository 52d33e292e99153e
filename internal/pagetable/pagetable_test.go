package pagetable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-os/kcore/internal/frame"
)

func newFixture(t *testing.T) (*frame.Allocator, *Soft) {
	t.Helper()
	fa, err := frame.New([]uint32{16})
	require.NoError(t, err)
	t.Cleanup(func() { fa.Close() })
	return fa, New(fa, nil)
}

func TestMapThenWalk(t *testing.T) {
	fa, pt := newFixture(t)
	idx, err := fa.Alloc(1, frame.None)
	require.NoError(t, err)

	require.NoError(t, pt.Map(0x1000, idx, Read|Write))
	pte, ok := pt.Walk(0x1000)
	require.True(t, ok)
	require.Equal(t, idx, pte.Frame)
	require.Equal(t, Read|Write, pte.Flags)
}

func TestWalkMissingMapping(t *testing.T) {
	_, pt := newFixture(t)
	_, ok := pt.Walk(0xdead000)
	require.False(t, ok)
}

func TestUnmapReturnsPTEAndClears(t *testing.T) {
	fa, pt := newFixture(t)
	idx, err := fa.Alloc(1, frame.None)
	require.NoError(t, err)
	require.NoError(t, pt.Map(0x2000, idx, Read))

	pte, ok := pt.Unmap(0x2000)
	require.True(t, ok)
	require.Equal(t, idx, pte.Frame)

	_, ok = pt.Walk(0x2000)
	require.False(t, ok)
}

func TestSetFlagsUpdatesExistingMapping(t *testing.T) {
	fa, pt := newFixture(t)
	idx, err := fa.Alloc(1, frame.None)
	require.NoError(t, err)
	require.NoError(t, pt.Map(0x3000, idx, Read))

	require.NoError(t, pt.SetFlags(0x3000, Read|Write))
	pte, ok := pt.Walk(0x3000)
	require.True(t, ok)
	require.Equal(t, Read|Write, pte.Flags)
}

func TestSetFlagsOnMissingMappingErrors(t *testing.T) {
	_, pt := newFixture(t)
	require.Error(t, pt.SetFlags(0x9000, Read))
}

func TestInvalidateCallsShootdownOncePerBatch(t *testing.T) {
	fa, err := frame.New([]uint32{16})
	require.NoError(t, err)
	defer fa.Close()

	var calls int
	var gotAddrs []uint64
	pt := New(fa, func(vaddrs []uint64) {
		calls++
		gotAddrs = vaddrs
	})

	pt.Invalidate([]uint64{0x1000, 0x2000, 0x3000})
	require.Equal(t, 1, calls)
	require.Len(t, gotAddrs, 3)
}

func TestInvalidateSkipsEmptyBatch(t *testing.T) {
	fa, err := frame.New([]uint32{16})
	require.NoError(t, err)
	defer fa.Close()

	var calls int
	pt := New(fa, func(vaddrs []uint64) { calls++ })
	pt.Invalidate(nil)
	require.Zero(t, calls)
}

func TestKeyAlignsToPageBoundary(t *testing.T) {
	fa, pt := newFixture(t)
	idx, err := fa.Alloc(1, frame.None)
	require.NoError(t, err)
	require.NoError(t, pt.Map(0x4000, idx, Read))

	pte, ok := pt.Walk(0x4123)
	require.True(t, ok)
	require.Equal(t, idx, pte.Frame)
}
