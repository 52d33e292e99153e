package kcore

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/kestrel-os/kcore/internal/addrspace"
	"github.com/kestrel-os/kcore/internal/fibril"
	"github.com/kestrel-os/kcore/internal/ipc"
	"github.com/kestrel-os/kcore/internal/sched"
)

// Task is an address space plus a set of threads plus a set of phones
// plus an answerbox, per spec §3's "Task" data model entry. A task is
// not torn down while any thread or remote phone still references it
// (refCount).
type Task struct {
	ID         uint64
	Name       string
	Permission uint32

	AS    *addrspace.AddressSpace
	Inbox *ipc.Answerbox

	mu      sync.Mutex
	threads []*sched.Thread
	phones  []*ipc.Phone

	refCount atomic.Int32

	// fibrilWorkers bounds how many fibril runtimes (one goroutine-gated
	// kernel thread each) this task may keep running concurrently,
	// sized from Config.FibrilWorkers. golang.org/x/sync/semaphore lets
	// AcquireFibrilWorker block on a context instead of a bare channel,
	// matching how a real manager fibril would park waiting for a free
	// kernel thread.
	fibrilWorkers *semaphore.Weighted
	runtimes      []*fibril.Runtime
}

func newTask(id uint64, name string, as *addrspace.AddressSpace, fibrilWorkers int64) *Task {
	t := &Task{
		ID:            id,
		Name:          name,
		AS:            as,
		Inbox:         ipc.NewAnswerbox(),
		fibrilWorkers: semaphore.NewWeighted(fibrilWorkers),
	}
	t.refCount.Store(1)
	return t
}

// AcquireFibrilWorker blocks until a fibril-runtime worker slot is
// free, per SPEC_FULL.md's fibril worker-pool sizing (Config.FibrilWorkers).
func (t *Task) AcquireFibrilWorker(ctx context.Context) error {
	return t.fibrilWorkers.Acquire(ctx, 1)
}

// ReleaseFibrilWorker frees a worker slot acquired via
// AcquireFibrilWorker.
func (t *Task) ReleaseFibrilWorker() {
	t.fibrilWorkers.Release(1)
}

// addRuntime records rt as one of this task's fibril runtimes, as
// reported by Runtimes.
func (t *Task) addRuntime(rt *fibril.Runtime) {
	t.mu.Lock()
	t.runtimes = append(t.runtimes, rt)
	t.mu.Unlock()
}

// Runtimes returns a snapshot of this task's fibril runtimes.
func (t *Task) Runtimes() []*fibril.Runtime {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*fibril.Runtime, len(t.runtimes))
	copy(out, t.runtimes)
	return out
}

// Ref increments the task's reference count, e.g. when a remote phone
// connects to it.
func (t *Task) Ref() int32 { return t.refCount.Add(1) }

// Unref decrements the task's reference count.
func (t *Task) Unref() int32 { return t.refCount.Add(-1) }

// AddThread records a thread as belonging to this task.
func (t *Task) AddThread(th *sched.Thread) {
	t.mu.Lock()
	t.threads = append(t.threads, th)
	t.mu.Unlock()
}

// Threads returns a snapshot of the task's threads.
func (t *Task) Threads() []*sched.Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*sched.Thread, len(t.threads))
	copy(out, t.threads)
	return out
}

// AddPhone records a phone as belonging to this task's phone table.
func (t *Task) AddPhone(p *ipc.Phone) {
	t.mu.Lock()
	t.phones = append(t.phones, p)
	t.mu.Unlock()
}

// Phones returns a snapshot of the task's phone table.
func (t *Task) Phones() []*ipc.Phone {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*ipc.Phone, len(t.phones))
	copy(out, t.phones)
	return out
}
