package ipc

import "errors"

var (
	ErrPhoneNotFree       = errors.New("ipc: phone is not free")
	ErrPhoneNotConnected  = errors.New("ipc: phone is not connected")
	ErrAnswerboxHungup    = errors.New("ipc: answerbox is hung up")
	ErrCallAlreadyAnswered = errors.New("ipc: call already answered")
	ErrNotDispatched      = errors.New("ipc: call is not dispatched on this answerbox")
)

// EHangup is the synthetic retval an unanswered call receives when its
// target answerbox, or the phone it was sent on, is hung up before a
// real reply arrives, per spec §4.6.
const EHangup int32 = -1

// ECanceled is the synthetic retval a call receives when the waiting
// side is interrupted at a suspension point before a real reply
// arrives, per spec §4.7's cancellation note.
const ECanceled int32 = -2
