package kcore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kestrel-os/kcore/internal/addrspace"
	"github.com/kestrel-os/kcore/internal/async"
	"github.com/kestrel-os/kcore/internal/config"
	"github.com/kestrel-os/kcore/internal/fibril"
	"github.com/kestrel-os/kcore/internal/frame"
	"github.com/kestrel-os/kcore/internal/ipc"
	"github.com/kestrel-os/kcore/internal/logging"
	"github.com/kestrel-os/kcore/internal/metrics"
	"github.com/kestrel-os/kcore/internal/pagetable"
	"github.com/kestrel-os/kcore/internal/sched"
)

// Kernel assembles every subsystem into one in-process simulation: the
// frame allocator, the scheduler, and the per-task address
// spaces/answerboxes/fibril runtimes it creates on Spawn. Syscalls are
// modeled as exported Kernel/Task methods rather than trap gates, since
// there is no real ring transition in a host-process simulation (spec
// §6's redesign note).
type Kernel struct {
	Config  *config.Config
	Frames  *frame.Allocator
	Sched   *sched.Scheduler
	Metrics *metrics.Metrics
	log     *logging.Logger

	mu         sync.RWMutex
	tasks      map[uint64]*Task
	nextTaskID atomic.Uint64
	nextASID   atomic.Uint64

	phoneLimiter *async.PhoneLimiter
	inactive     *async.InactiveList

	asMu   sync.RWMutex
	asByID map[uint64]*addrspace.AddressSpace

	fibrilStackBase atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// New assembles a Kernel from cfg but does not start the scheduler;
// call Start for that. Mirrors ehrlich-b-go-ublk's NewDevice(opts)
// shape: construct fully-wired-but-idle, then Start explicitly.
func New(cfg *config.Config) (*Kernel, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapError("kernel.New", err)
	}

	frames, err := frame.New(cfg.ZoneFrames)
	if err != nil {
		return nil, WrapError("kernel.New", err)
	}

	k := &Kernel{
		Config:       cfg,
		Frames:       frames,
		Metrics:      metrics.New(),
		log:          logging.Default().WithComponent("kernel"),
		tasks:        make(map[uint64]*Task),
		phoneLimiter: async.NewPhoneLimiter(cfg.PhoneTableLimit),
		inactive:     async.NewInactiveList(),
		asByID:       make(map[uint64]*addrspace.AddressSpace),
	}
	// Fibril stacks for every task share one flat simulated address
	// range, carved out well above any task's own area layout.
	k.fibrilStackBase.Store(1 << 40)

	k.Sched = sched.New(sched.Config{
		NumCPUs:  cfg.NumCPUs,
		Quantum:  cfg.Quantum,
		OnSwitch: k.onAddressSpaceSwitch,
	})
	return k, nil
}

// Start launches the scheduler's per-CPU dispatcher loops and load
// balancer under ctx.
func (k *Kernel) Start(ctx context.Context) {
	k.ctx, k.cancel = context.WithCancel(ctx)
	k.Sched.Start(k.ctx)
}

// Stop halts the scheduler and waits for every dispatcher loop to
// exit. Safe to call once; a second call is a no-op.
func (k *Kernel) Stop() error {
	if k.cancel != nil {
		k.cancel()
	}
	return k.Sched.Stop()
}

// onAddressSpaceSwitch is the scheduler's AsSwitchFunc: it is invoked
// on CPU cpu whenever the running thread's address space id changes,
// driving MarkActive/MarkInactive bookkeeping so each address space
// knows which CPUs it is loaded on for TLB shootdown.
func (k *Kernel) onAddressSpaceSwitch(cpu int, oldAsID, newAsID uint64) {
	k.asMu.RLock()
	old, hasOld := k.asByID[oldAsID]
	next, hasNext := k.asByID[newAsID]
	k.asMu.RUnlock()

	if hasOld {
		old.MarkInactive(cpu)
	}
	if hasNext {
		next.MarkActive(cpu)
	}
}

func (k *Kernel) shootdownFor(as *addrspace.AddressSpace) pagetable.ShootdownFunc {
	return func(pages []uint64) {
		k.Sched.CallAll(as.ActiveCPUs(), func() {})
	}
}

// SpawnTask creates a fresh task with an empty address space, per spec
// §4.4/§6's task-creation path. name is truncated to
// constants.TaskNameBufLen by the caller's boot-loader (see boot.go);
// SpawnTask itself does not enforce the limit so tests can exercise
// the edge directly.
func (k *Kernel) SpawnTask(name string, permission uint32) *Task {
	asID := k.nextASID.Add(1)
	as := addrspace.New(asID, k.Frames, nil)
	as.SetShootdown(k.shootdownFor(as))

	k.asMu.Lock()
	k.asByID[asID] = as
	k.asMu.Unlock()

	id := k.nextTaskID.Add(1)
	t := newTask(id, name, as, k.Config.FibrilWorkers)
	t.Permission = permission

	k.mu.Lock()
	k.tasks[id] = t
	k.mu.Unlock()

	k.log.Info("task spawned", "task_id", id, "name", name)
	return t
}

// Task looks up a live task by id.
func (k *Kernel) Task(id uint64) (*Task, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.tasks[id]
	return t, ok
}

// Tasks returns a snapshot of every live task.
func (k *Kernel) Tasks() []*Task {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*Task, 0, len(k.tasks))
	for _, t := range k.tasks {
		out = append(out, t)
	}
	return out
}

// DestroyTask removes a task once its reference count has dropped to
// zero, per spec §3's Task invariant. Returns EBUSY if threads or
// remote phones still reference it.
func (k *Kernel) DestroyTask(id uint64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.tasks[id]
	if !ok {
		return NewTaskError("kernel.DestroyTask", id, ENOENT, "no such task")
	}
	if t.refCount.Load() > 0 {
		return NewTaskError("kernel.DestroyTask", id, EBUSY, "task still referenced")
	}
	t.Inbox.HangupAll()
	delete(k.tasks, id)

	k.asMu.Lock()
	delete(k.asByID, t.AS.ID())
	k.asMu.Unlock()
	return nil
}

// NewFibrilRuntime blocks until task has a free fibril-worker slot
// (bounded by Config.FibrilWorkers via semaphore.Weighted), then
// builds a fibril runtime backed by a fresh stack region inside the
// task's address space. The caller releases the slot by calling
// task.ReleaseFibrilWorker once the runtime's dispatcher loop exits.
func (k *Kernel) NewFibrilRuntime(ctx context.Context, t *Task) (*fibril.Runtime, error) {
	if err := t.AcquireFibrilWorker(ctx); err != nil {
		return nil, WrapError("kernel.NewFibrilRuntime", err)
	}
	base := k.fibrilStackBase.Add(1 << 24) - (1 << 24)
	stacks := fibril.NewStackAllocator(t.AS, k.Frames, base, 16)
	rt := fibril.New(stacks)
	t.addRuntime(rt)
	return rt, nil
}

// OpenSession opens an async session atop sessionPhone, sharing this
// kernel's task-wide phone limiter and inactive list, per spec §4.8.
// connect is invoked by TransactionBegin whenever a fresh data phone
// must be dialed to the same server the session phone targets.
func (k *Kernel) OpenSession(sessionPhone *ipc.Phone, connect async.ConnectFunc) *async.Session {
	return async.NewSession(sessionPhone, connect, k.phoneLimiter, k.inactive, k.Config.SessionCacheSize)
}
