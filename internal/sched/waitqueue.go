package sched

import (
	"sync"
	"time"
)

// SleepResult is the outcome of WaitQueue.Sleep, per spec §4.5.
type SleepResult int

const (
	SleepOK SleepResult = iota
	SleepTimeout
	SleepInterrupted
)

// WakeMode selects how many parked threads Wakeup releases.
type WakeMode int

const (
	WakeFirst WakeMode = iota
	WakeAll
)

type waiter struct {
	t      *Thread
	wakeCh chan SleepResult
}

// WaitQueue is an ordered sequence of parked threads plus a
// missed-wakeup counter, per spec §3 and §4.5: a Wakeup racing an
// about-to-sleep thread is never lost, because it increments missed
// instead of being dropped on an empty queue.
type WaitQueue struct {
	mu      sync.Mutex
	waiters []*waiter
	missed  int

	// enqueue re-admits a woken thread to some CPU's run queue. It is
	// supplied by the Scheduler that owns this wait queue's threads;
	// a nil enqueue is only valid in tests that drive Thread.resumeCh
	// themselves.
	enqueue func(*Thread)
}

// NewWaitQueue creates an empty wait queue. enqueue is called with a
// thread that has just been woken, to put it back on a run queue.
func NewWaitQueue(enqueue func(*Thread)) *WaitQueue {
	return &WaitQueue{enqueue: enqueue}
}

// Sleep parks the calling thread until Wakeup, the deadline elapses,
// or the thread is interrupted. A pending missed wakeup is consumed
// immediately instead of parking.
func (wq *WaitQueue) Sleep(t *Thread, deadline time.Duration) SleepResult {
	wq.mu.Lock()
	if wq.missed > 0 {
		wq.missed--
		wq.mu.Unlock()
		return SleepOK
	}
	w := &waiter{t: t, wakeCh: make(chan SleepResult, 1)}
	wq.waiters = append(wq.waiters, w)
	wq.mu.Unlock()

	t.sleepState.Store(int32(SleepAsleep))
	t.state.Store(int32(Sleeping))
	t.wqMu.Lock()
	t.wq = wq
	t.wqMu.Unlock()

	t.blockCh <- blockEvent{kind: blockSleeping}

	var result SleepResult
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case result = <-w.wakeCh:
		case <-timer.C:
			if wq.remove(w) {
				result = SleepTimeout
			} else {
				// Lost the race with a concurrent wakeup; honor it.
				result = <-w.wakeCh
			}
		}
	} else {
		result = <-w.wakeCh
	}

	t.wqMu.Lock()
	t.wq = nil
	t.wqMu.Unlock()
	t.sleepState.Store(int32(SleepInitial))
	<-t.resumeCh // wait for the CPU to reschedule us before resuming body
	return result
}

// Wakeup releases one (WakeFirst) or all (WakeAll) parked threads in
// FIFO order. A wakeup with nothing parked increments the missed
// counter instead of being lost.
func (wq *WaitQueue) Wakeup(mode WakeMode) {
	wq.mu.Lock()
	if len(wq.waiters) == 0 {
		wq.missed++
		wq.mu.Unlock()
		return
	}
	var released []*waiter
	if mode == WakeFirst {
		released = wq.waiters[:1]
		wq.waiters = wq.waiters[1:]
	} else {
		released = wq.waiters
		wq.waiters = nil
	}
	wq.mu.Unlock()

	for _, w := range released {
		w.t.sleepState.Store(int32(SleepWoke))
		w.t.state.Store(int32(Ready))
		w.wakeCh <- SleepOK
		if wq.enqueue != nil {
			wq.enqueue(w.t)
		}
	}
}

// interruptOne removes t from the queue (if still present) and wakes
// it with SleepInterrupted; used by Thread.Interrupt.
func (wq *WaitQueue) interruptOne(t *Thread) {
	wq.mu.Lock()
	var w *waiter
	for i, cand := range wq.waiters {
		if cand.t == t {
			w = cand
			wq.waiters = append(wq.waiters[:i], wq.waiters[i+1:]...)
			break
		}
	}
	wq.mu.Unlock()
	if w != nil {
		t.sleepState.Store(int32(SleepWoke))
		t.state.Store(int32(Ready))
		w.wakeCh <- SleepInterrupted
		if wq.enqueue != nil {
			wq.enqueue(t)
		}
	}
}

func (wq *WaitQueue) remove(target *waiter) bool {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	for i, w := range wq.waiters {
		if w == target {
			wq.waiters = append(wq.waiters[:i], wq.waiters[i+1:]...)
			return true
		}
	}
	return false
}
