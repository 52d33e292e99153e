package sched

import (
	"time"

	"github.com/kestrel-os/kcore/internal/constants"
)

// Balance inspects a ring of CPUs and migrates excess ready threads
// from any CPU whose queue exceeds a neighbor's by at least
// constants.LoadBalanceThreshold, per spec §4.5's kcpulb description.
// Run queue locks are taken in address order (by CPU.ID) to match the
// "address-order discipline" run-queue-locking rule, avoiding the
// classic two-lock deadlock between a pair of balancing CPUs.
func Balance(cpus []*CPU) {
	for _, dst := range cpus {
		dstLen := dst.ReadyLen()
		for _, src := range cpus {
			if src == dst {
				continue
			}
			srcLen := src.ReadyLen()
			if srcLen-dstLen < constants.LoadBalanceThreshold {
				continue
			}
			first, second := src, dst
			if second.ID < first.ID {
				first, second = second, first
			}
			first.mu.Lock()
			second.mu.Lock()
			migrateOneLocked(src, dst)
			second.mu.Unlock()
			first.mu.Unlock()
		}
	}
}

// migrateOneLocked assumes both src and dst's mutexes are already
// held (in address order by the caller).
func migrateOneLocked(src, dst *CPU) {
	for lvl := len(src.queues) - 1; lvl >= 0; lvl-- {
		q := src.queues[lvl]
		for i, t := range q {
			if t.pinned() {
				continue
			}
			src.queues[lvl] = append(q[:i:i], q[i+1:]...)
			t.priority.Store(int32(lvl))
			dst.queues[lvl] = append(dst.queues[lvl], t)
			return
		}
	}
}

// RunLoadBalancer periodically calls Balance over cpus until stop is
// closed, modeling the per-CPU kcpulb fibril as a single ticker-driven
// loop rather than one goroutine per CPU, since every CPU's queues
// are inspected together each round anyway.
func RunLoadBalancer(cpus []*CPU, stop <-chan struct{}) {
	ticker := time.NewTicker(constants.LoadBalanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			Balance(cpus)
		}
	}
}
