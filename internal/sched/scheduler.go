package sched

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrel-os/kcore/internal/logging"
)

// Scheduler owns every simulated CPU and the futex table they share.
// CPU dispatcher loops and the load balancer are supervised by an
// errgroup.Group, the same "one goroutine per worker, one error
// channel" shape ehrlich-b-go-ublk uses for its queue-runner pool.
type Scheduler struct {
	CPUs   []*CPU
	Futex  *FutexTable
	nextID atomic.Uint64

	group  *errgroup.Group
	cancel context.CancelFunc
	log    *logging.Logger
}

// Config parameterizes a Scheduler.
type Config struct {
	NumCPUs  int
	Quantum  time.Duration
	OnSwitch AsSwitchFunc
}

// New creates a Scheduler with Config.NumCPUs idle CPUs and starts
// nothing yet; call Start to launch the dispatcher loops.
func New(cfg Config) *Scheduler {
	s := &Scheduler{log: logging.Default().WithComponent("sched")}
	for i := 0; i < cfg.NumCPUs; i++ {
		s.CPUs = append(s.CPUs, NewCPU(i, cfg.Quantum, cfg.OnSwitch))
	}
	s.Futex = NewFutexTable(s.enqueueAny)
	return s
}

// Start launches every CPU's dispatcher loop and the load balancer
// under a shared errgroup. Canceling ctx (or calling Stop) halts all
// of them.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	balancerStop := make(chan struct{})
	go func() {
		<-gctx.Done()
		close(balancerStop)
	}()

	for _, cpu := range s.CPUs {
		cpu := cpu
		go func() {
			<-gctx.Done()
			cpu.Stop()
		}()
		g.Go(func() error {
			cpu.Run()
			return nil
		})
	}
	g.Go(func() error {
		RunLoadBalancer(s.CPUs, balancerStop)
		return nil
	})
}

// Stop halts every dispatcher loop and the load balancer, and waits
// for them to exit.
func (s *Scheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	for _, cpu := range s.CPUs {
		cpu.Stop()
	}
	if s.group != nil {
		return s.group.Wait()
	}
	return nil
}

// NewThreadID allocates a fresh thread identifier.
func (s *Scheduler) NewThreadID() uint64 { return s.nextID.Add(1) }

// Spawn creates and starts a new thread, placing it on the CPU with
// the shortest ready queue (or its pinned affinity, if set).
func (s *Scheduler) Spawn(name string, affinity int32, body func(*Thread)) *Thread {
	t := New(s.NewThreadID(), name, affinity, body)
	t.Start()
	s.enqueueAny(t)
	return t
}

// CallAll runs fn on each CPU listed in cpuIDs and waits for all of
// them to finish, the "higher barrier" atop CPU.Call. The kernel's
// shootdown hook, installed into each address space, uses it to issue
// a TLB-shootdown IPI to every CPU with that address space active.
func (s *Scheduler) CallAll(cpuIDs []int, fn func()) {
	for _, id := range cpuIDs {
		if id < 0 || id >= len(s.CPUs) {
			continue
		}
		s.CPUs[id].Call(fn, true)
	}
}

func (s *Scheduler) enqueueAny(t *Thread) {
	if t.Affinity >= 0 && int(t.Affinity) < len(s.CPUs) {
		s.CPUs[t.Affinity].Enqueue(t, t.Priority())
		return
	}
	best := s.CPUs[0]
	for _, cpu := range s.CPUs[1:] {
		if cpu.ReadyLen() < best.ReadyLen() {
			best = cpu
		}
	}
	best.Enqueue(t, t.Priority())
}
