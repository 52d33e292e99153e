package async

import "github.com/kestrel-os/kcore/internal/ipc"

// CancelOutstandingCall interrupts a fibril waiting at an async-level
// suspension point for call's reply, translating the interruption into
// a synthetic ECanceled reply rather than leaving the waiter blocked
// forever, per spec §4.7's cancellation note.
func CancelOutstandingCall(call *ipc.Call) {
	call.Cancel()
}
