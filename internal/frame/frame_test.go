package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	a, err := New([]uint32{64}, "low")
	require.NoError(t, err)
	defer a.Close()

	before := a.Reservable()
	idx, err := a.Alloc(4, None)
	require.NoError(t, err)
	require.EqualValues(t, 1, a.RefCount(idx))

	a.Free(idx, 4)
	require.EqualValues(t, 0, a.RefCount(idx))
	require.Equal(t, before, a.Reservable())
}

func TestRefUnrefFreesAtZero(t *testing.T) {
	a, err := New([]uint32{16})
	require.NoError(t, err)
	defer a.Close()

	idx, err := a.Alloc(1, None)
	require.NoError(t, err)

	require.EqualValues(t, 2, a.Ref(idx))
	require.EqualValues(t, 1, a.Unref(idx))
	require.EqualValues(t, 0, a.Unref(idx))
	require.EqualValues(t, 0, a.RefCount(idx))

	// Frame must be back on the free list: a same-size alloc should
	// succeed without growing the arena.
	_, err = a.Alloc(16, None)
	require.NoError(t, err)
}

func TestZonePriorityOrder(t *testing.T) {
	a, err := New([]uint32{2, 64}, "low", "high")
	require.NoError(t, err)
	defer a.Close()

	idx, err := a.Alloc(2, None)
	require.NoError(t, err)
	require.Less(t, idx, uint32(2), "must come from the first (highest priority) zone")
}

func TestReservationGatesAllocation(t *testing.T) {
	a, err := New([]uint32{8})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Reserve(4))
	idx, err := a.Alloc(4, Reserve)
	require.NoError(t, err)

	// The reservable counter should not go negative from this dance.
	require.GreaterOrEqual(t, a.Reservable(), int64(0))

	a.Free(idx, 4)
}

func TestOutOfMemory(t *testing.T) {
	a, err := New([]uint32{4})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Alloc(8, None)
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestNoReserveBypassesCounter(t *testing.T) {
	a, err := New([]uint32{8})
	require.NoError(t, err)
	defer a.Close()

	before := a.Reservable()
	idx, err := a.Alloc(2, NoReserve)
	require.NoError(t, err)
	require.Equal(t, before, a.Reservable())
	a.Free(idx, 2)
	require.Equal(t, before, a.Reservable())
}
