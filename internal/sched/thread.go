// Package sched implements the scheduler and synchronization
// primitives (components E and F): per-CPU multi-level feedback run
// queues, wait queues with missed-wakeup accounting, futexes, a
// starvation-free reader-writer lock, and the kcpulb load balancer.
// Kernel threads are real goroutines gated by a per-CPU token so that
// at most one is ever "running" on a given simulated CPU, the same
// "goroutine as thread, explicit handoff as context switch" idiom
// ehrlich-b-go-ublk uses for its queue runners.
package sched

import (
	"errors"
	"sync"
	"sync/atomic"
)

// State is a thread's scheduling state, per spec §3's lifecycle
// DORMANT -> READY -> RUNNING -> SLEEPING -> EXITING.
type State int32

const (
	Dormant State = iota
	Ready
	Running
	Sleeping
	Exiting
)

// SleepState tracks the ASLEEP/WOKE race independent of the coarser
// State, so a wakeup racing a sleep is never lost.
type SleepState int32

const (
	SleepInitial SleepState = iota
	SleepAsleep
	SleepWoke
)

// JoinState gates thread_join/thread_detach, from
// original_source/kernel/generic/include/proc/thread.h.
type JoinState int32

const (
	JoinNone JoinState = iota
	JoinMe
	JoinDetached
)

var (
	// ErrAlreadyDetached is returned by Join or Detach once a thread
	// has already been detached.
	ErrAlreadyDetached = errors.New("sched: thread already detached")
	// ErrAlreadyJoined is returned by Join when another thread is
	// already waiting to join.
	ErrAlreadyJoined = errors.New("sched: thread already has a joiner")
)

// Thread is an independently scheduled context, per spec §3's
// "Thread" data model entry.
type Thread struct {
	ID       uint64
	Name     string
	AsID     uint64
	Affinity int32 // -1 = no affinity

	priority    atomic.Int32
	nomigrate   atomic.Int32
	interrupted atomic.Bool
	state       atomic.Int32
	sleepState  atomic.Int32
	joinState   atomic.Int32
	refCount    atomic.Int32

	body func(*Thread)

	resumeCh chan struct{}
	blockCh  chan blockEvent

	joinMu   sync.Mutex
	joinCond *sync.Cond
	exited   bool

	wq   *WaitQueue // non-nil while parked on a wait queue
	wqMu sync.Mutex

	preemptRequested atomic.Bool
}

type blockKind int

const (
	blockYielded blockKind = iota // still READY, requeue at the CPU-adjusted level
	blockSleeping                 // parked on a wait queue, do not requeue
	blockExited                   // body returned, thread is done
)

type blockEvent struct {
	kind          blockKind
	usedFullQuantum bool
}

// New creates a DORMANT thread. Start must be called to begin running
// body on some CPU.
func New(id uint64, name string, affinity int32, body func(*Thread)) *Thread {
	t := &Thread{
		ID:       id,
		Name:     name,
		Affinity: affinity,
		body:     body,
		resumeCh: make(chan struct{}),
		blockCh:  make(chan blockEvent),
	}
	t.joinCond = sync.NewCond(&t.joinMu)
	t.state.Store(int32(Dormant))
	t.refCount.Store(1)
	return t
}

// Start launches the thread's backing goroutine. The thread remains
// DORMANT until a CPU schedules it the first time.
func (t *Thread) Start() {
	go func() {
		<-t.resumeCh
		t.body(t)
		t.joinMu.Lock()
		t.exited = true
		t.joinCond.Broadcast()
		t.joinMu.Unlock()
		t.blockCh <- blockEvent{kind: blockExited}
	}()
}

// Priority returns the thread's current multi-level-feedback-queue
// level (0 = highest).
func (t *Thread) Priority() int32 { return t.priority.Load() }

// State returns the thread's current scheduling state.
func (t *Thread) State() State { return State(t.state.Load()) }

// Interrupt sets the thread's interrupted flag and, if it is
// currently parked on a wait queue, wakes it with Interrupted.
func (t *Thread) Interrupt() {
	t.interrupted.Store(true)
	t.wqMu.Lock()
	wq := t.wq
	t.wqMu.Unlock()
	if wq != nil {
		wq.interruptOne(t)
	}
}

// Interrupted reports whether Interrupt has been called on this
// thread since its last clear.
func (t *Thread) Interrupted() bool { return t.interrupted.Load() }

// Pin increments the nomigrate counter; a pinned thread is never
// chosen by the load balancer.
func (t *Thread) Pin()   { t.nomigrate.Add(1) }
func (t *Thread) Unpin() { t.nomigrate.Add(-1) }
func (t *Thread) pinned() bool { return t.nomigrate.Load() > 0 }

// Detach implements thread_detach: once detached, Join will fail and
// the thread is reaped immediately on exit instead of waiting for a
// joiner.
func (t *Thread) Detach() error {
	if !t.joinState.CompareAndSwap(int32(JoinNone), int32(JoinDetached)) {
		return ErrAlreadyDetached
	}
	return nil
}

// Join blocks until the thread exits. Per thread.h semantics, a
// thread may be joined by at most one other thread and never after
// Detach.
func (t *Thread) Join() error {
	if !t.joinState.CompareAndSwap(int32(JoinNone), int32(JoinMe)) {
		if JoinState(t.joinState.Load()) == JoinDetached {
			return ErrAlreadyDetached
		}
		return ErrAlreadyJoined
	}
	t.joinMu.Lock()
	defer t.joinMu.Unlock()
	for !t.exited {
		t.joinCond.Wait()
	}
	return nil
}

// RequestPreempt is called by the owning CPU's quantum timer; the
// thread observes it at its next cooperative scheduling point. Go
// gives user code no way to interrupt an arbitrary running goroutine,
// so unlike a real timer interrupt this only takes effect the next
// time the thread calls Yield or ShouldYield.
func (t *Thread) RequestPreempt() { t.preemptRequested.Store(true) }

// ShouldYield lets a long-running body poll for pending preemption at
// a safe point, the cooperative stand-in for an interrupt check.
func (t *Thread) ShouldYield() bool { return t.preemptRequested.Load() }

// Yield is a scheduling point: the thread remains READY and hands
// control back to its CPU, to be rescheduled later. Per spec §4.5's
// priority-aging rule, the CPU loop raises this thread's priority if
// it used its full quantum (a preemption request was pending) and
// lowers it if it yielded early.
func (t *Thread) Yield() {
	t.state.Store(int32(Ready))
	usedFull := t.preemptRequested.Swap(false)
	t.blockCh <- blockEvent{kind: blockYielded, usedFullQuantum: usedFull}
	<-t.resumeCh
}
