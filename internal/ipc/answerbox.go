package ipc

import "sync"

// Answerbox is a task's single inbound mailbox: an incoming-call
// queue, a set of calls dispatched to a receiver and awaiting an
// answer, and a separate notification queue, per spec §3's
// "Answerbox" data model entry. Grounded on internal/sched.WaitQueue's
// condition-variable-over-a-slice shape, generalized from a single
// FIFO to the three queues IPC receive needs.
type Answerbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	hungup bool

	incoming      []*Call
	dispatched    map[*Call]bool
	notifications []*Call
}

// NewAnswerbox creates an empty, open answerbox.
func NewAnswerbox() *Answerbox {
	ab := &Answerbox{dispatched: make(map[*Call]bool)}
	ab.cond = sync.NewCond(&ab.mu)
	return ab
}

func (ab *Answerbox) enqueueIncoming(call *Call) {
	ab.mu.Lock()
	if ab.hungup {
		ab.mu.Unlock()
		call.answer(EHangup, call.Args, FlagHungup)
		return
	}
	ab.incoming = append(ab.incoming, call)
	ab.cond.Signal()
	ab.mu.Unlock()
}

// Notify delivers a one-way notification, bypassing the ordinary
// receive queue so a flood of regular calls cannot starve it, per
// spec §4.6's separate-queue requirement for notifications.
func (ab *Answerbox) Notify(call *Call) {
	call.Flags |= FlagNotification
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if ab.hungup {
		return
	}
	ab.notifications = append(ab.notifications, call)
	ab.cond.Signal()
}

// Receive blocks until a notification or an ordinary call is
// available and returns it, preferring notifications, per spec §4.6
// step 1 ("the receiver drains its notification queue before taking
// an ordinary call"). Returns nil once the box is hung up and drained.
func (ab *Answerbox) Receive() *Call {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	for len(ab.notifications) == 0 && len(ab.incoming) == 0 && !ab.hungup {
		ab.cond.Wait()
	}
	if len(ab.notifications) > 0 {
		call := ab.notifications[0]
		ab.notifications = ab.notifications[1:]
		return call
	}
	if len(ab.incoming) > 0 {
		call := ab.incoming[0]
		ab.incoming = ab.incoming[1:]
		ab.dispatched[call] = true
		return call
	}
	return nil
}

// Answer completes a previously received (non-notification) call with
// retval and reply args, waking whatever sent it, per spec §4.6's
// answer operation.
func (ab *Answerbox) Answer(call *Call, retval int32, args [5]uint64) error {
	ab.mu.Lock()
	if call.Flags&FlagNotification != 0 {
		ab.mu.Unlock()
		return ErrNotDispatched
	}
	if !ab.dispatched[call] {
		ab.mu.Unlock()
		return ErrNotDispatched
	}
	if call.Flags&FlagAnswered != 0 {
		ab.mu.Unlock()
		return ErrCallAlreadyAnswered
	}
	delete(ab.dispatched, call)
	ab.mu.Unlock()

	call.answer(retval, args, 0)
	return nil
}

// Forward rewrites the call's method and re-sends it to phone's
// target, preserving the original sender so the eventual answer still
// reaches them, per spec §4.6's forwarding operation. The answerbox
// the call is being forwarded away from is appended to its forward
// chain.
func (ab *Answerbox) Forward(call *Call, newMethod uint32, phone *Phone) error {
	ab.mu.Lock()
	if !ab.dispatched[call] {
		ab.mu.Unlock()
		return ErrNotDispatched
	}
	delete(ab.dispatched, call)
	ab.mu.Unlock()

	call.Method = newMethod
	call.Flags |= FlagForwarded
	call.forwardChain = append(call.forwardChain, ab)
	return phone.Send(call)
}

// HangupAll marks the answerbox hung up and fails every call currently
// queued or dispatched on it with a synthetic EHANGUP reply, per spec
// §4.6: "hangup of an answerbox causes all clients to receive
// EHANGUP". Future sends to it are rejected the same way.
func (ab *Answerbox) HangupAll() {
	ab.mu.Lock()
	ab.hungup = true
	pending := make([]*Call, 0, len(ab.incoming)+len(ab.dispatched))
	pending = append(pending, ab.incoming...)
	ab.incoming = nil
	for call := range ab.dispatched {
		pending = append(pending, call)
		delete(ab.dispatched, call)
	}
	ab.cond.Broadcast()
	ab.mu.Unlock()

	for _, call := range pending {
		call.answer(EHangup, call.Args, FlagHungup)
	}
}

// IsHungup reports whether HangupAll has been called.
func (ab *Answerbox) IsHungup() bool {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return ab.hungup
}
