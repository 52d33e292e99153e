// Package ipc implements the kernel IPC core (component G): phones,
// answerboxes, calls, forwarding, hangup, and notifications, per spec
// §4.6. Grounded on ehrlich-b-go-ublk's per-tag state machine
// (internal/queue/runner.go's TagStateInFlightFetch/Owned/InFlightCommit)
// generalized from a fixed three-state I/O tag to the five-state
// Phone lifecycle spec §3 describes.
package ipc

import (
	"sync"
)

// PhoneState is a phone's connection lifecycle, per spec §3.
type PhoneState int32

const (
	PhoneFree PhoneState = iota
	PhoneConnecting
	PhoneConnected
	PhoneHungup
	PhoneSlammed
)

// Phone is a one-directional connection capability held by a task,
// per spec §3's "Phone" data model entry.
type Phone struct {
	mu          sync.Mutex
	state       PhoneState
	target      *Answerbox
	outstanding map[*Call]bool
}

// NewPhone creates a FREE phone.
func NewPhone() *Phone { return &Phone{state: PhoneFree, outstanding: make(map[*Call]bool)} }

func (p *Phone) State() PhoneState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Connect transitions a FREE phone to CONNECTED against target. A
// real kernel passes through CONNECTING while the target answerbox
// decides whether to accept; this simulation treats the decision as
// synchronous and atomic with the transition.
func (p *Phone) Connect(target *Answerbox) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PhoneFree {
		return ErrPhoneNotFree
	}
	p.state = PhoneConnecting
	p.target = target
	p.state = PhoneConnected
	return nil
}

// Send enqueues call on the phone's target answerbox, per spec §4.6's
// "sending a call". A HUNGUP or SLAMMED phone synthesizes an EHANGUP
// reply instead of queuing the call, per spec §7: "a hung-up phone
// synthesizes EHANGUP for every outstanding and subsequent call."
func (p *Phone) Send(call *Call) error {
	p.mu.Lock()
	switch p.state {
	case PhoneHungup, PhoneSlammed:
		p.mu.Unlock()
		call.answer(EHangup, call.Args, FlagHungup)
		return nil
	case PhoneConnected:
	default:
		p.mu.Unlock()
		return ErrPhoneNotConnected
	}
	target := p.target
	call.senderPhone = p
	p.outstanding[call] = true
	p.mu.Unlock()

	target.enqueueIncoming(call)
	return nil
}

func (p *Phone) callCompleted(call *Call) {
	p.mu.Lock()
	delete(p.outstanding, call)
	p.mu.Unlock()
}

// Hangup transitions the phone to HUNGUP and fails every call still
// outstanding on it with a synthetic EHANGUP reply; any further Send
// synthesizes the same reply rather than queuing, per spec §7's
// hangup-completeness requirement and the *Hangup completeness*
// invariant in spec §8 ("every future and every outstanding call on
// that phone eventually completes with EHANGUP").
func (p *Phone) Hangup() {
	p.mu.Lock()
	if p.state != PhoneConnected && p.state != PhoneConnecting {
		p.mu.Unlock()
		return
	}
	p.state = PhoneHungup
	pending := p.outstandingLocked()
	p.mu.Unlock()

	for _, call := range pending {
		call.answer(EHangup, call.Args, FlagHungup)
	}
}

// Slam forcibly closes the phone even if calls are outstanding, used
// when the owning task is being torn down abnormally. Outstanding
// calls fail the same way Hangup fails them.
func (p *Phone) Slam() {
	p.mu.Lock()
	p.state = PhoneSlammed
	pending := p.outstandingLocked()
	p.mu.Unlock()

	for _, call := range pending {
		call.answer(EHangup, call.Args, FlagHungup)
	}
}

// outstandingLocked drains and returns every call still tracked as
// outstanding on this phone. Callers must hold p.mu.
func (p *Phone) outstandingLocked() []*Call {
	pending := make([]*Call, 0, len(p.outstanding))
	for call := range p.outstanding {
		pending = append(pending, call)
	}
	p.outstanding = make(map[*Call]bool)
	return pending
}
