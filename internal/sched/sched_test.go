package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThreadLifecycleRunsToCompletion(t *testing.T) {
	cpu := NewCPU(0, 50*time.Millisecond, nil)
	var ran atomic.Bool
	th := New(1, "worker", -1, func(t *Thread) {
		ran.Store(true)
	})
	th.Start()
	cpu.Enqueue(th, 0)

	require.True(t, cpu.scheduleOnce())
	require.True(t, ran.Load())
	require.Equal(t, Exiting, th.State())
}

func TestEarlyYieldRequeuesAtLowerPriority(t *testing.T) {
	cpu := NewCPU(0, 50*time.Millisecond, nil)
	var yields int
	done := make(chan struct{})
	th := New(1, "yielder", -1, func(t *Thread) {
		for i := 0; i < 2; i++ {
			yields++
			t.Yield()
		}
		close(done)
	})
	th.Start()
	cpu.Enqueue(th, 3)

	require.True(t, cpu.scheduleOnce())
	require.Equal(t, Ready, th.State())
	require.EqualValues(t, 4, th.Priority())

	require.True(t, cpu.scheduleOnce())
	require.True(t, cpu.scheduleOnce())
	<-done
}

func TestJoinBlocksUntilExit(t *testing.T) {
	cpu := NewCPU(0, 50*time.Millisecond, nil)
	th := New(1, "worker", -1, func(t *Thread) {
		time.Sleep(5 * time.Millisecond)
	})
	th.Start()
	cpu.Enqueue(th, 0)

	go func() {
		cpu.scheduleOnce()
	}()

	require.NoError(t, th.Join())
	require.True(t, th.exited)
}

func TestDetachThenJoinErrors(t *testing.T) {
	th := New(1, "worker", -1, func(t *Thread) {})
	require.NoError(t, th.Detach())
	require.ErrorIs(t, th.Join(), ErrAlreadyDetached)
}

func TestDoubleJoinErrors(t *testing.T) {
	th := New(1, "worker", -1, func(t *Thread) {})
	th.Start()
	cpu := NewCPU(0, 50*time.Millisecond, nil)
	cpu.Enqueue(th, 0)
	go cpu.scheduleOnce()

	var wg sync.WaitGroup
	var otherErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		otherErr = th.Join()
	}()
	time.Sleep(2 * time.Millisecond)
	err := th.Join()
	wg.Wait()
	require.True(t, err == nil || err == ErrAlreadyJoined)
	require.True(t, err == ErrAlreadyJoined || otherErr == ErrAlreadyJoined, "one of the two joins must fail")
}

func TestWaitQueueWakeupDeliversToSleeper(t *testing.T) {
	var cpu *CPU
	cpu = NewCPU(0, 50*time.Millisecond, nil)
	wq := NewWaitQueue(func(t *Thread) { cpu.Enqueue(t, t.Priority()) })

	resultCh := make(chan SleepResult, 1)
	th := New(1, "sleeper", -1, func(t *Thread) {
		resultCh <- wq.Sleep(t, 0)
	})
	th.Start()
	cpu.Enqueue(th, 0)

	go func() {
		for i := 0; i < 5; i++ {
			cpu.scheduleOnce()
		}
	}()

	time.Sleep(5 * time.Millisecond)
	wq.Wakeup(WakeFirst)
	// Sleep returns only once the CPU runs the woken thread again.
	go cpu.scheduleOnce()

	select {
	case r := <-resultCh:
		require.Equal(t, SleepOK, r)
	case <-time.After(time.Second):
		t.Fatal("sleeper never woke")
	}
}

func TestWaitQueueMissedWakeupIsConsumedByNextSleep(t *testing.T) {
	wq := NewWaitQueue(nil)
	wq.Wakeup(WakeFirst)
	require.Equal(t, 1, wq.missed)

	th := New(1, "t", -1, nil)
	// Sleep on a thread that never actually parks, since missed > 0.
	res := wq.Sleep(th, 0)
	require.Equal(t, SleepOK, res)
	require.Equal(t, 0, wq.missed)
}

func TestFutexWaitReturnsImmediatelyOnMismatch(t *testing.T) {
	word := &atomic.Uint32{}
	word.Store(5)
	ft := NewFutexTable(nil)
	th := New(1, "t", -1, nil)
	res := ft.Wait(th, word, 99, 0)
	require.Equal(t, SleepOK, res)
}

func TestFutexWakeBoundsReleaseCount(t *testing.T) {
	word := &atomic.Uint32{}
	word.Store(1)
	var cpu *CPU
	cpu = NewCPU(0, 50*time.Millisecond, nil)
	ft := NewFutexTable(func(t *Thread) { cpu.Enqueue(t, t.Priority()) })

	results := make(chan SleepResult, 3)
	spawnWaiter := func(id uint64) *Thread {
		th := New(id, "waiter", -1, func(t *Thread) {
			results <- ft.Wait(t, word, 1, 0)
		})
		th.Start()
		cpu.Enqueue(th, 0)
		return th
	}
	spawnWaiter(1)
	spawnWaiter(2)
	spawnWaiter(3)

	go func() {
		for i := 0; i < 10; i++ {
			cpu.scheduleOnce()
		}
	}()
	time.Sleep(10 * time.Millisecond)

	woken := ft.Wake(word, 2)
	require.Equal(t, 2, woken)
}

func TestRWMutexReadersDoNotStarveWriter(t *testing.T) {
	rw := NewRWMutex()
	rw.RLock()

	writerDone := make(chan struct{})
	go func() {
		require.NoError(t, rw.Lock(0))
		close(writerDone)
		rw.Unlock()
	}()
	time.Sleep(2 * time.Millisecond)

	// A new reader arriving after the writer queued must wait behind it.
	readerAdmitted := make(chan struct{})
	go func() {
		rw.RLock()
		close(readerAdmitted)
		rw.RUnlock()
	}()
	time.Sleep(2 * time.Millisecond)

	select {
	case <-readerAdmitted:
		t.Fatal("reader admitted ahead of queued writer")
	default:
	}

	rw.RUnlock()
	<-writerDone
	<-readerAdmitted
}

func TestRWMutexWriterTimeoutAdmitsLeadingReaders(t *testing.T) {
	rw := NewRWMutex()
	rw.RLock() // held by the "leading reader" for the whole test

	writerErr := make(chan error, 1)
	go func() { writerErr <- rw.Lock(5 * time.Millisecond) }()
	time.Sleep(2 * time.Millisecond)

	// A second reader queues behind the writer...
	readerDone := make(chan struct{})
	go func() {
		rw.RLock()
		close(readerDone)
		rw.RUnlock()
	}()
	time.Sleep(2 * time.Millisecond)

	select {
	case <-readerDone:
		t.Fatal("reader admitted ahead of a still-waiting writer")
	default:
	}

	// ...and once the writer times out, the queued reader is let
	// through instead of waiting on a writer that gave up.
	require.ErrorIs(t, <-writerErr, ErrTimeout)
	select {
	case <-readerDone:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("reader never admitted after writer timeout")
	}

	rw.RUnlock()
}

func TestLoadBalancerMigratesFromOverloadedCPU(t *testing.T) {
	a := NewCPU(0, time.Second, nil)
	b := NewCPU(1, time.Second, nil)
	for i := 0; i < 5; i++ {
		th := New(uint64(i), "t", -1, func(t *Thread) {})
		a.Enqueue(th, 4)
	}
	Balance([]*CPU{a, b})
	require.Equal(t, 5, a.ReadyLen()+b.ReadyLen())
	require.Greater(t, b.ReadyLen(), 0)
}

func TestLoadBalancerSkipsPinnedThreads(t *testing.T) {
	a := NewCPU(0, time.Second, nil)
	b := NewCPU(1, time.Second, nil)
	for i := 0; i < 5; i++ {
		th := New(uint64(i), "t", -1, func(t *Thread) {})
		th.Pin()
		a.Enqueue(th, 4)
	}
	Balance([]*CPU{a, b})
	require.Equal(t, 0, b.ReadyLen())
}
