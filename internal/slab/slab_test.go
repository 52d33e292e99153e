package slab

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type obj struct {
	n int
}

func TestAllocConstructsOnEmpty(t *testing.T) {
	var built int
	c := NewCache("test", 2, func() any {
		built++
		return &obj{}
	}, nil)

	v := c.Alloc()
	require.IsType(t, &obj{}, v)
	require.Equal(t, 1, built)
}

func TestFreeThenAllocReusesObject(t *testing.T) {
	c := NewCache("test", 1, func() any { return &obj{n: -1} }, nil)
	o := c.Alloc().(*obj)
	o.n = 42
	c.Free(o)

	got := c.Alloc().(*obj)
	require.Same(t, o, got)
	require.Equal(t, 42, got.n)
}

func TestOverflowMovesToDepotAndBack(t *testing.T) {
	c := NewCache("test", 1, func() any { return &obj{} }, nil)

	// Overfill both magazines in the single shard so the loaded one
	// spills into the depot.
	var freed []*obj
	for i := 0; i < magazineCapacity*2+1; i++ {
		freed = append(freed, &obj{n: i})
	}
	for _, o := range freed {
		c.Free(o)
	}
	require.NotEmpty(t, c.fullDepot)

	// Draining everything back out should never require a fresh ctor call.
	seen := make(map[*obj]bool)
	for i := 0; i < len(freed); i++ {
		o := c.Alloc().(*obj)
		require.False(t, seen[o], "object handed out twice")
		seen[o] = true
	}
}

func TestDestroyRunsDtorOnParkedObjects(t *testing.T) {
	var mu sync.Mutex
	destroyed := map[int]bool{}
	c := NewCache("test", 1, func() any { return &obj{} }, func(v any) {
		mu.Lock()
		destroyed[v.(*obj).n] = true
		mu.Unlock()
	})

	o1 := c.Alloc().(*obj)
	o1.n = 1
	o2 := c.Alloc().(*obj)
	o2.n = 2
	c.Free(o1)
	c.Free(o2)

	c.Destroy()
	require.True(t, destroyed[1])
	require.True(t, destroyed[2])
}

func TestHeapMallocRoundsToSizeClass(t *testing.T) {
	h := NewHeap([]int{64, 256, 1024}, 2)
	buf := h.Malloc(10)
	require.Len(t, buf, 10)
	require.Equal(t, 64, cap(buf))

	buf2 := h.Malloc(2000)
	require.Len(t, buf2, 2000)
}

func TestHeapMallocIsZeroed(t *testing.T) {
	h := NewHeap([]int{64}, 1)
	buf := h.Malloc(64)
	for i := range buf {
		buf[i] = 0xFF
	}
	h.Free(buf)

	buf2 := h.Malloc(64)
	for _, b := range buf2 {
		require.Zero(t, b)
	}
}

func TestCacheConcurrentAllocFree(t *testing.T) {
	c := NewCache("test", 4, func() any { return &obj{} }, nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				o := c.Alloc().(*obj)
				c.Free(o)
			}
		}()
	}
	wg.Wait()
}
