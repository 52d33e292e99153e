// Package integration exercises cross-subsystem scenarios against the
// kcore.Kernel facade end to end, one file per data-model area, rather
// than against any single internal package in isolation.
package integration

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-os/kcore/internal/constants"
	"github.com/kestrel-os/kcore/internal/ipc"
)

// TestPing exercises a bare call/answer round trip between two phones:
// A sends method=42 args=(7,8), B receives it, answers with
// retval=15 and args=(15,0,0,0,0), and A observes exactly that.
func TestPing(t *testing.T) {
	inbox := ipc.NewAnswerbox()
	phone := ipc.NewPhone()
	require.NoError(t, phone.Connect(inbox))

	call := ipc.NewCall(42, [constants.CallInlineArgs]uint64{7, 8})
	require.NoError(t, phone.Send(call))

	received := inbox.Receive()
	require.NotNil(t, received)
	require.Equal(t, uint32(42), received.Method)
	require.Equal(t, uint64(7), received.Args[0])
	require.Equal(t, uint64(8), received.Args[1])

	reply := [constants.CallInlineArgs]uint64{received.Args[0] + received.Args[1]}
	require.NoError(t, inbox.Answer(received, 15, reply))

	require.Equal(t, int32(15), call.Await())
	require.Equal(t, uint64(15), call.Args[0])
}

// TestHangupWithInFlight covers scenario 2: A sends an async call on
// p, then hangs p up before B answers. B's subsequent answer is a
// no-op (ErrCallAlreadyAnswered, since the hangup already delivered a
// synthetic reply), and A's call resolves with EHangup. A further
// send on the hung-up phone also resolves to EHangup rather than
// queuing or returning a plain Go error.
func TestHangupWithInFlight(t *testing.T) {
	inbox := ipc.NewAnswerbox()
	phone := ipc.NewPhone()
	require.NoError(t, phone.Connect(inbox))

	call := ipc.NewCall(7, [constants.CallInlineArgs]uint64{1})
	require.NoError(t, phone.Send(call))

	received := inbox.Receive()
	require.NotNil(t, received)

	phone.Hangup()
	require.Equal(t, ipc.EHangup, call.Await())

	err := inbox.Answer(received, 0, received.Args)
	require.ErrorIs(t, err, ipc.ErrCallAlreadyAnswered)

	late := ipc.NewCall(8, [constants.CallInlineArgs]uint64{})
	require.NoError(t, phone.Send(late))
	require.Equal(t, ipc.EHangup, late.Await())
}

// TestHangupAllFailsOutstandingCalls exercises the answerbox-side
// hangup path: every call still queued or dispatched on a hung-up
// answerbox resolves with EHangup instead of a real answer.
func TestHangupAllFailsOutstandingCalls(t *testing.T) {
	inbox := ipc.NewAnswerbox()
	phone := ipc.NewPhone()
	require.NoError(t, phone.Connect(inbox))

	call := ipc.NewCall(1, [constants.CallInlineArgs]uint64{})
	require.NoError(t, phone.Send(call))

	// Dispatch it so it sits in the "dispatched, awaiting answer" set
	// rather than the incoming queue, covering both drain paths.
	dispatched := inbox.Receive()
	require.NotNil(t, dispatched)

	inbox.HangupAll()

	require.Equal(t, ipc.EHangup, call.Await())
	require.ErrorIs(t, inbox.Answer(dispatched, 0, dispatched.Args), ipc.ErrNotDispatched)

	// A send after HangupAll is answered synthetically rather than queued.
	late := ipc.NewCall(2, [constants.CallInlineArgs]uint64{})
	require.NoError(t, phone.Send(late))
	require.Equal(t, ipc.EHangup, late.Await())
}

// TestAnswerboxPreservesPerSenderOrder checks that calls from one
// sending phone are received in the order they were sent, even when
// interleaved with a second sender.
func TestAnswerboxPreservesPerSenderOrder(t *testing.T) {
	inbox := ipc.NewAnswerbox()
	a := ipc.NewPhone()
	b := ipc.NewPhone()
	require.NoError(t, a.Connect(inbox))
	require.NoError(t, b.Connect(inbox))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < 50; i++ {
			c := ipc.NewCall(uint32(i), [constants.CallInlineArgs]uint64{i})
			require.NoError(t, a.Send(c))
		}
	}()
	go func() {
		defer wg.Done()
		for i := uint64(0); i < 50; i++ {
			c := ipc.NewCall(uint32(i)+1000, [constants.CallInlineArgs]uint64{i})
			require.NoError(t, b.Send(c))
		}
	}()

	lastFromA, lastFromB := int64(-1), int64(-1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			call := inbox.Receive()
			require.NotNil(t, call)
			require.NoError(t, inbox.Answer(call, 0, call.Args))
			if call.Method < 1000 {
				require.Greater(t, int64(call.Method), lastFromA)
				lastFromA = int64(call.Method)
			} else {
				require.Greater(t, int64(call.Method), lastFromB)
				lastFromB = int64(call.Method)
			}
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver never drained both senders")
	}
}
