// Package async implements the asynchronous session framework
// (component I): sessions of cached data phones, transaction
// begin/end with global-inactive-list eviction under phone pressure,
// and cancellation of an outstanding call at a suspension point, per
// spec §4.8. Grounded on internal/ipc's Phone/Answerbox primitives,
// generalized the way a client library sits atop a raw transport.
package async

import (
	"sync"

	"github.com/kestrel-os/kcore/internal/ipc"
)

// ConnectFunc opens a fresh physical connection to a session's
// server, standing in for HelenOS's `connect_me_to(session_phone)`.
type ConnectFunc func() (*ipc.Phone, error)

// DataPhone is one physical connection carrying at most one active
// transaction at a time, per spec §4.8. It tracks which Session owns
// it so the global InactiveList can evict it from that session's
// cache without the session needing to be consulted first.
type DataPhone struct {
	Phone   *ipc.Phone
	session *Session
}

// Session is a client-side grouping of one session phone plus a pool
// of cached data phones, per spec §4.8's "Session" data model entry.
type Session struct {
	mu           sync.Mutex
	sessionPhone *ipc.Phone
	cached       []*DataPhone
	cacheLimit   int

	connect  ConnectFunc
	limiter  *PhoneLimiter
	inactive *InactiveList
}

// NewSession creates a session bound to sessionPhone, drawing fresh
// data phones via connect, sharing limiter's phone-table budget and
// inactive's global LRU list with every other session in the same
// task.
func NewSession(sessionPhone *ipc.Phone, connect ConnectFunc, limiter *PhoneLimiter, inactive *InactiveList, cacheLimit int) *Session {
	return &Session{
		sessionPhone: sessionPhone,
		connect:      connect,
		limiter:      limiter,
		inactive:     inactive,
		cacheLimit:   cacheLimit,
	}
}

// popCached detaches and returns a parked data phone from the
// session's own cache, if any, removing it from the global inactive
// list since it is no longer idle.
func (s *Session) popCached() *DataPhone {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cached) == 0 {
		return nil
	}
	n := len(s.cached)
	dp := s.cached[n-1]
	s.cached = s.cached[:n-1]
	s.inactive.Remove(dp)
	return dp
}

// park reattaches dp to the session's cache and records it on the
// global inactive list, per spec §4.8's transaction_end. Returns false
// if the session's cache is already full.
func (s *Session) park(dp *DataPhone) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cached) >= s.cacheLimit {
		return false
	}
	s.cached = append(s.cached, dp)
	s.inactive.Push(dp)
	return true
}

// evict removes dp from this session's cache, used by InactiveList
// when a different session's transaction_begin needs to reclaim a
// phone-table slot.
func (s *Session) evict(dp *DataPhone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.cached {
		if c == dp {
			s.cached = append(s.cached[:i:i], s.cached[i+1:]...)
			return
		}
	}
}
