package kcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-os/kcore/internal/config"
)

func newFixtureKernel(t *testing.T) *Kernel {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.NumCPUs = 2
	cfg.ZoneFrames = []uint32{256}
	k, err := New(cfg)
	require.NoError(t, err)
	return k
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.NumCPUs = 0
	_, err := New(cfg)
	require.Error(t, err)
}

func TestSpawnTaskRegistersTaskAndAddressSpace(t *testing.T) {
	k := newFixtureKernel(t)
	task := k.SpawnTask("init", permAll)

	got, ok := k.Task(task.ID)
	require.True(t, ok)
	require.Same(t, task, got)
	require.NotNil(t, task.AS)
	require.NotNil(t, task.Inbox)
	require.Len(t, k.Tasks(), 1)
}

func TestDestroyTaskRequiresZeroRefCount(t *testing.T) {
	k := newFixtureKernel(t)
	task := k.SpawnTask("svc", permAll)

	err := k.DestroyTask(task.ID)
	require.ErrorIs(t, err, EBUSY)

	task.Unref()
	require.NoError(t, k.DestroyTask(task.ID))

	_, ok := k.Task(task.ID)
	require.False(t, ok)
}

func TestDestroyTaskUnknownIDReturnsENOENT(t *testing.T) {
	k := newFixtureKernel(t)
	err := k.DestroyTask(999)
	require.ErrorIs(t, err, ENOENT)
}

func TestBootReplaysTaskMapInOrder(t *testing.T) {
	k := newFixtureKernel(t)
	tm := TaskMap{Records: []TaskMapRecord{
		{PhysAddr: 0, Size: 4096, Name: "rd"},
		{PhysAddr: 4096, Size: 8192, Name: "vfs"},
	}}

	tasks, err := k.Boot(tm)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "rd", tasks[0].Name)
	require.Equal(t, "vfs", tasks[1].Name)
	require.Len(t, k.Tasks(), 2)
}

func TestBootRejectsOversizedTaskMap(t *testing.T) {
	k := newFixtureKernel(t)
	var records []TaskMapRecord
	for i := 0; i < 33; i++ {
		records = append(records, TaskMapRecord{Name: "x"})
	}
	_, err := k.Boot(TaskMap{Records: records})
	require.ErrorIs(t, err, ENOSPC)
}

func TestBootRejectsUnalignedPhysAddr(t *testing.T) {
	k := newFixtureKernel(t)
	_, err := k.Boot(TaskMap{Records: []TaskMapRecord{{PhysAddr: 1, Name: "bad"}}})
	require.ErrorIs(t, err, EINVAL)
}

func TestNewFibrilRuntimeRegistersEachRuntime(t *testing.T) {
	k := newFixtureKernel(t)
	task := k.SpawnTask("t", permAll)

	rtA, err := k.NewFibrilRuntime(context.Background(), task)
	require.NoError(t, err)
	rtB, err := k.NewFibrilRuntime(context.Background(), task)
	require.NoError(t, err)
	require.NotNil(t, rtA)
	require.NotNil(t, rtB)
	require.Len(t, task.Runtimes(), 2)
}

func TestNewFibrilRuntimeBlocksWhenWorkerPoolExhausted(t *testing.T) {
	k := newFixtureKernel(t)
	k.Config.FibrilWorkers = 1
	task := k.SpawnTask("t", permAll)

	_, err := k.NewFibrilRuntime(context.Background(), task)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err = k.NewFibrilRuntime(ctx, task)
	require.Error(t, err)
}
