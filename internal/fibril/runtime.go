package fibril

import (
	"sync"
	"sync/atomic"
	"time"
)

// Runtime is the single-threaded cooperative scheduler that drives all
// fibrils owned by one kernel thread, per spec §4.7's ready/manager/
// all-fibrils lists. Only one fibril goroutine is ever resumed at a
// time, enforced the same way internal/sched.CPU enforces one thread
// at a time: channel handoff, not a mutex around body code.
type Runtime struct {
	mu       sync.Mutex
	ready    []*Fibril
	managers []*Fibril
	all      []*Fibril
	current  *Fibril

	// pendingDead is the most recently dead fibril whose stack has not
	// yet been reclaimed; it is destroyed at the start of the *next*
	// scheduleOnce, never inside its own context, per spec §4.7's
	// "removing the pull the rug problem" stack-management rule.
	pendingDead *Fibril

	nextID atomic.Uint64
	stacks *StackAllocator
}

// New creates an empty Runtime. stacks may be nil if the caller does
// not need guard-paged address-space-backed fibril stacks tracked
// (e.g. in tests that only exercise scheduling order).
func New(stacks *StackAllocator) *Runtime {
	return &Runtime{stacks: stacks}
}

// Spawn creates a fibril running body and adds it to the ready list.
func (r *Runtime) Spawn(name string, body func(*Fibril)) *Fibril {
	f := newFibril(r.nextID.Add(1), name, body)
	if r.stacks != nil {
		r.stacks.Reserve(f)
	}
	f.start()
	r.mu.Lock()
	r.ready = append(r.ready, f)
	r.all = append(r.all, f)
	r.mu.Unlock()
	return f
}

// Current returns the fibril presently running, or nil.
func (r *Runtime) Current() *Fibril {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// All returns a snapshot of every fibril this runtime has ever
// spawned (live or dead), per spec §4.7's all-fibrils enumeration
// list.
func (r *Runtime) All() []*Fibril {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Fibril, len(r.all))
	copy(out, r.all)
	return out
}

// ReadyLen reports how many fibrils are waiting to run.
func (r *Runtime) ReadyLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ready)
}

func (r *Runtime) dequeueNext() (*Fibril, SwitchType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ready) > 0 {
		f := r.ready[0]
		r.ready = r.ready[1:]
		return f, Preempt
	}
	if len(r.managers) > 0 {
		f := r.managers[0]
		r.managers = r.managers[1:]
		return f, FromManager
	}
	return nil, Preempt
}

func (r *Runtime) takePendingDead() *Fibril {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.pendingDead
	r.pendingDead = nil
	return d
}

// scheduleOnce performs one scheduling decision and blocks until the
// chosen fibril yields, becomes/leaves a manager, or dies. Returns
// false if there was nothing runnable.
func (r *Runtime) scheduleOnce() bool {
	next, kind := r.dequeueNext()
	if next == nil {
		return false
	}

	if dead := r.takePendingDead(); dead != nil && r.stacks != nil {
		r.stacks.Release(dead)
	}

	r.mu.Lock()
	r.current = next
	r.mu.Unlock()

	next.state.Store(int32(Running))
	next.resumeCh <- switchEvent{kind: kind}
	ev := <-next.blockCh

	r.mu.Lock()
	r.current = nil
	switch ev.kind {
	case blockYielded, blockLeftManager:
		next.state.Store(int32(Ready))
		r.ready = append(r.ready, next)
	case blockBecameManager:
		r.managers = append(r.managers, next)
	case blockDead:
		next.state.Store(int32(Dead))
		r.pendingDead = next
	}
	r.mu.Unlock()
	return true
}

// Close reclaims any stack still pending from the last fibril to die.
// The "reclaim on the next switch" rule in spec §4.7 only has a "next"
// while the runtime keeps scheduling; on shutdown there may be no
// further switch to piggyback on, so Close reaps what's left directly.
func (r *Runtime) Close() {
	if dead := r.takePendingDead(); dead != nil && r.stacks != nil {
		r.stacks.Release(dead)
	}
}

// Run drives the dispatcher loop until stop is closed. When nothing is
// runnable it idles briefly rather than busy-spinning; a real kernel
// thread with no ready fibrils and no managers is simply parked.
func (r *Runtime) Run(stop <-chan struct{}) {
	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !r.scheduleOnce() {
			select {
			case <-stop:
				return
			case <-idle.C:
			}
		}
	}
}
