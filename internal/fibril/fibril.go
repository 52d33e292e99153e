// Package fibril implements the user-space cooperative fibril runtime
// (component H): single-threaded-per-kernel-thread M:N scheduling of
// lightweight tasks, manager fibrils that pick up I/O completions when
// nothing else is ready, and guard-paged stacks reclaimed one switch
// after their owner dies. Grounded on internal/sched's CPU dispatcher
// (resumeCh/blockCh channel handoff standing in for a context switch)
// generalized from one-goroutine-gated-at-a-time-per-kernel-thread to
// the same shape for fibrils atop a kernel thread, per spec §4.7.
package fibril

import "sync/atomic"

// State is a fibril's run state, per spec §4.7.
type State int32

const (
	Ready State = iota
	Running
	Manager
	Dead
)

// SwitchType records why control passed to the next fibril, per spec
// §4.7's four switch kinds.
type SwitchType int

const (
	Preempt SwitchType = iota
	FromManager
	ToManager
	FromDead
)

// Fibril is a cooperatively scheduled task with its own (simulated)
// stack and saved context. The real execution context is a goroutine
// gated by resumeCh/blockCh exactly like internal/sched.Thread; the
// "stack" it owns in the address-space sense is tracked separately by
// Runtime (stack.go) so guard-page and late-reservation semantics can
// be honored without Go exposing raw goroutine stacks.
type Fibril struct {
	ID   uint64
	Name string

	state     atomic.Int32
	isManager atomic.Bool

	body func(*Fibril)

	resumeCh chan switchEvent
	blockCh  chan blockEvent

	stackBase uint64
}

type blockKind int

const (
	blockYielded blockKind = iota
	blockBecameManager
	blockLeftManager
	blockDead
)

type blockEvent struct {
	kind blockKind
}

type switchEvent struct {
	kind SwitchType
}

func newFibril(id uint64, name string, body func(*Fibril)) *Fibril {
	f := &Fibril{
		ID:       id,
		Name:     name,
		body:     body,
		resumeCh: make(chan switchEvent),
		blockCh:  make(chan blockEvent),
	}
	f.state.Store(int32(Ready))
	return f
}

func (f *Fibril) start() {
	go func() {
		<-f.resumeCh
		if f.body != nil {
			f.body(f)
		}
		f.state.Store(int32(Dead))
		f.blockCh <- blockEvent{kind: blockDead}
	}()
}

// State returns the fibril's current run state.
func (f *Fibril) State() State { return State(f.state.Load()) }

// Yield performs a PREEMPT switch: the fibril gives up the kernel
// thread and is placed back on the ready list, per spec §4.7's
// `fibril_switch`.
func (f *Fibril) Yield() {
	f.state.Store(int32(Ready))
	f.blockCh <- blockEvent{kind: blockYielded}
	<-f.resumeCh
	f.state.Store(int32(Running))
}

// BecomeManager performs a TO_MANAGER switch: called when a fibril has
// nothing left to do and offers itself up to handle I/O completions,
// per spec §4.7.
func (f *Fibril) BecomeManager() {
	f.isManager.Store(true)
	f.state.Store(int32(Manager))
	f.blockCh <- blockEvent{kind: blockBecameManager}
	<-f.resumeCh
	f.state.Store(int32(Running))
}

// LeaveManager performs a FROM_MANAGER switch: a manager fibril that
// has been handed real work to run steps out of the manager role.
func (f *Fibril) LeaveManager() {
	f.isManager.Store(false)
	f.blockCh <- blockEvent{kind: blockLeftManager}
	<-f.resumeCh
	f.state.Store(int32(Running))
}
