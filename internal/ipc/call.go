package ipc

import (
	"sync"

	"github.com/kestrel-os/kcore/internal/constants"
)

// CallFlags records a call's lifecycle and routing history, per spec
// §4.6.
type CallFlags uint8

const (
	FlagAnswered CallFlags = 1 << iota
	FlagNotification
	FlagForwarded
	FlagHungup
)

// Call is one in-flight IPC message: an immutable sender identity plus
// mutable method and argument payload, per spec §3's "Call" data model
// entry. The payload width is fixed at constants.CallInlineArgs words,
// matching the wire format spec §4.6 describes.
type Call struct {
	Method uint32
	Args   [constants.CallInlineArgs]uint64
	Flags  CallFlags
	Retval int32

	senderPhone *Phone
	// forwardChain records each answerbox the call passed through
	// before reaching its current destination, oldest first.
	forwardChain []*Answerbox

	async      bool
	replyCh    chan struct{}
	answerOnce sync.Once
}

// NewCall builds a synchronous call: Send queues it and returns, and
// the caller then blocks in Await until Answer fires replyCh.
func NewCall(method uint32, args [constants.CallInlineArgs]uint64) *Call {
	return &Call{Method: method, Args: args, replyCh: make(chan struct{})}
}

// NewNotification builds a one-way call that carries FlagNotification
// and is never dispatched through the ordinary receive queue; see
// Answerbox.Notify.
func NewNotification(method uint32, args [constants.CallInlineArgs]uint64) *Call {
	return &Call{Method: method, Args: args, Flags: FlagNotification, async: true}
}

// Await blocks until the call has been answered (or failed with a
// synthetic hangup reply) and returns the final retval. Calling Await
// on a notification panics, since notifications have no reply path.
func (c *Call) Await() int32 {
	if c.async {
		panic("ipc: Await called on an async call")
	}
	<-c.replyCh
	return c.Retval
}

// Cancel delivers a synthetic ECanceled reply to a call the caller is
// abandoning at a suspension point, per spec §4.7's cancellation rule.
// Unlike answer (which an answerbox calls on a dispatched call),
// Cancel is invoked by the waiting side itself and does not touch any
// answerbox bookkeeping.
func (c *Call) Cancel() {
	c.answer(ECanceled, c.Args, 0)
}

func (c *Call) answer(retval int32, args [constants.CallInlineArgs]uint64, extra CallFlags) {
	c.answerOnce.Do(func() {
		c.Args = args
		c.Retval = retval
		c.Flags |= FlagAnswered | extra
		if !c.async {
			close(c.replyCh)
		}
		if c.senderPhone != nil {
			c.senderPhone.callCompleted(c)
		}
	})
}
