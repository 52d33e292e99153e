package fibril

import "sync"

// UserThread wraps a Fibril with a join condition variable, since
// fibrils themselves are not joinable, per spec §4.7's "HelenOS-level
// thread in user space" note. Grounded on internal/sched.Thread's
// Join/Detach shape (joinMu/joinCond/exited), reused here because the
// same "wait for a cooperative task to finish, possibly concurrently
// with a Detach" problem recurs at the fibril layer.
type UserThread struct {
	fibril *Fibril

	mu       sync.Mutex
	cond     *sync.Cond
	exited   bool
	detached bool
}

// Spawn creates a UserThread backed by a fresh fibril on rt and
// returns it already running body.
func Spawn(rt *Runtime, name string, body func(*UserThread)) *UserThread {
	ut := &UserThread{}
	ut.cond = sync.NewCond(&ut.mu)
	ut.fibril = rt.Spawn(name, func(f *Fibril) {
		body(ut)
		ut.mu.Lock()
		ut.exited = true
		ut.cond.Broadcast()
		ut.mu.Unlock()
	})
	return ut
}

// Fibril returns the underlying fibril, e.g. so body can call Yield.
func (ut *UserThread) Fibril() *Fibril { return ut.fibril }

// Join blocks until the wrapped fibril's body returns. Returns
// ErrAlreadyDetached if Detach was already called.
func (ut *UserThread) Join() error {
	ut.mu.Lock()
	defer ut.mu.Unlock()
	if ut.detached {
		return ErrAlreadyDetached
	}
	for !ut.exited {
		ut.cond.Wait()
	}
	return nil
}

// Detach releases interest in the thread's completion; no further
// Join call is valid afterward.
func (ut *UserThread) Detach() error {
	ut.mu.Lock()
	defer ut.mu.Unlock()
	if ut.detached {
		return ErrAlreadyDetached
	}
	ut.detached = true
	return nil
}
