package sched

import (
	"sync"
	"time"

	"github.com/kestrel-os/kcore/internal/constants"
	"github.com/kestrel-os/kcore/internal/logging"
)

// AsSwitchFunc is the scheduler callback spec §4.5 step 4 invokes when
// the chosen thread's address space differs from the one currently
// loaded on this CPU.
type AsSwitchFunc func(cpu int, oldAsID, newAsID uint64)

// CPU is one simulated processor: a set of multi-level feedback run
// queues plus the dispatcher loop that drives whichever thread it
// picks. Only one Thread is ever resumed at a time per CPU, enforced
// by construction (Run never sends to a second thread's resumeCh
// before the first reports back on blockCh) rather than by a mutex
// around arbitrary user code.
type CPU struct {
	ID int

	mu      sync.Mutex
	queues  [constants.NumPriorityLevels][]*Thread
	current *Thread
	curAsID uint64

	quantum  time.Duration
	onSwitch AsSwitchFunc

	callCh   chan smpCall
	stopCh   chan struct{}
	stopOnce sync.Once
	log      *logging.Logger
}

type smpCall struct {
	fn   func()
	done chan struct{}
}

// NewCPU creates an idle CPU with the given quantum.
func NewCPU(id int, quantum time.Duration, onSwitch AsSwitchFunc) *CPU {
	return &CPU{
		ID:       id,
		quantum:  quantum,
		onSwitch: onSwitch,
		callCh:   make(chan smpCall, 16),
		stopCh:   make(chan struct{}),
		log:      logging.Default().WithComponent("sched").WithQueue(id),
	}
}

// Enqueue admits a READY thread to this CPU's run queue at the given
// priority level.
func (c *CPU) Enqueue(t *Thread, level int32) {
	if level < 0 {
		level = 0
	}
	if level >= constants.NumPriorityLevels {
		level = constants.NumPriorityLevels - 1
	}
	t.priority.Store(level)
	t.state.Store(int32(Ready))
	c.mu.Lock()
	c.queues[level] = append(c.queues[level], t)
	c.mu.Unlock()
}

// Current returns the thread presently running on this CPU, or nil if
// it is idle.
func (c *CPU) Current() *Thread { return c.current }

// ReadyLen reports the total number of threads ready on this CPU,
// used by the load balancer to find surplus work.
func (c *CPU) ReadyLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, q := range c.queues {
		n += len(q)
	}
	return n
}

func (c *CPU) dequeueHighest() *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	for lvl := range c.queues {
		if len(c.queues[lvl]) > 0 {
			t := c.queues[lvl][0]
			c.queues[lvl] = c.queues[lvl][1:]
			return t
		}
	}
	return nil
}

// stealFrom removes and returns one unpinned, migratable thread from
// the lowest-priority (least urgent) non-empty queue, for the load
// balancer. Returns nil if nothing is eligible.
func (c *CPU) stealFrom(affinityOK func(*Thread) bool) *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	for lvl := len(c.queues) - 1; lvl >= 0; lvl-- {
		q := c.queues[lvl]
		for i, t := range q {
			if t.pinned() || (affinityOK != nil && !affinityOK(t)) {
				continue
			}
			c.queues[lvl] = append(q[:i:i], q[i+1:]...)
			return t
		}
	}
	return nil
}

// Call runs fn on this CPU's own goroutine (smp_call, grounded on
// original_source/kernel/generic/src/smp/smp_call.c), optionally
// blocking until it completes. Used by internal/addrspace to issue
// the TLB-shootdown IPI described in spec §4.3/4.4.
func (c *CPU) Call(fn func(), wait bool) {
	done := make(chan struct{})
	c.callCh <- smpCall{fn: fn, done: done}
	if wait {
		<-done
	}
}

// scheduleOnce performs one scheduling decision (spec §4.5 steps
// 2-4) and, if a thread was chosen, resumes it and blocks until it
// yields, sleeps, or exits (step 1/5 is implicit in the channel
// handoff). Returns false if there was nothing to run.
func (c *CPU) scheduleOnce() bool {
	next := c.dequeueHighest()
	if next == nil {
		return false
	}
	next.state.Store(int32(Running))
	c.current = next
	if next.AsID != c.curAsID {
		if c.onSwitch != nil {
			c.onSwitch(c.ID, c.curAsID, next.AsID)
		}
		c.curAsID = next.AsID
	}

	timer := time.AfterFunc(c.quantum, next.RequestPreempt)
	next.resumeCh <- struct{}{}
	ev := <-next.blockCh
	timer.Stop()

	switch ev.kind {
	case blockYielded:
		if ev.usedFullQuantum {
			c.raisePriority(next) // finished quantum without blocking
		} else {
			c.lowerPriority(next) // gave up the CPU early
		}
		c.current = nil
		c.Enqueue(next, next.Priority())
	case blockSleeping:
		c.lowerPriority(next)
		c.current = nil
	case blockExited:
		next.state.Store(int32(Exiting))
		c.current = nil
	}
	return true
}

func (c *CPU) raisePriority(t *Thread) {
	if p := t.priority.Load(); p > 0 {
		t.priority.Store(p - 1)
	}
}

func (c *CPU) lowerPriority(t *Thread) {
	if p := t.priority.Load(); p < constants.NumPriorityLevels-1 {
		t.priority.Store(p + 1)
	}
}

// Run drives the CPU's dispatcher loop until Stop is called.
func (c *CPU) Run() {
	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case call := <-c.callCh:
			call.fn()
			close(call.done)
		default:
			if !c.scheduleOnce() {
				select {
				case <-c.stopCh:
					return
				case call := <-c.callCh:
					call.fn()
					close(call.done)
				case <-idle.C:
				}
			}
		}
	}
}

// Stop halts the dispatcher loop. Safe to call more than once.
func (c *CPU) Stop() { c.stopOnce.Do(func() { close(c.stopCh) }) }
