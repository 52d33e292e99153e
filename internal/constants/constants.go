// Package constants holds kernel-wide tunables shared across subsystems.
package constants

import "time"

// Memory layout constants.
const (
	// PageSize is the simulated hardware page size.
	PageSize = 4096

	// PageShift is log2(PageSize), used for fast vaddr/frame index conversion.
	PageShift = 12
)

// Scheduler constants.
const (
	// NumPriorityLevels is the number of multi-level feedback queue levels
	// per CPU; priority 0 is highest.
	NumPriorityLevels = 8

	// DefaultQuantum is the time slice granted at the top priority level.
	DefaultQuantum = 10 * time.Millisecond

	// LoadBalanceThreshold is the minimum surplus of ready threads a peer
	// CPU must have before kcpulb migrates work from it.
	LoadBalanceThreshold = 2

	// LoadBalanceInterval is how often each CPU's load balancer fibril
	// inspects its neighbors.
	LoadBalanceInterval = 20 * time.Millisecond
)

// IPC constants.
const (
	// CallInlineArgs is the number of inline argument words a Call carries.
	CallInlineArgs = 5

	// DefaultPhoneTableLimit bounds the number of phones a task may hold.
	DefaultPhoneTableLimit = 64
)

// Fibril / async constants.
const (
	// DefaultFibrilWorkers bounds the number of OS threads (goroutines)
	// backing the fibril runtime's manager pool.
	DefaultFibrilWorkers = 4

	// DefaultSessionCacheSize bounds the number of idle data phones a
	// session keeps parked for reuse; TransactionEnd hangs up a phone
	// that would exceed it.
	DefaultSessionCacheSize = 4
)

// Boot handoff constants (spec §6 persisted/handoff state).
const (
	// TaskMapMaxRecords bounds the boot-time task map array size.
	TaskMapMaxRecords = 32

	// TaskNameBufLen bounds a boot task map record's name field.
	TaskNameBufLen = 32
)
