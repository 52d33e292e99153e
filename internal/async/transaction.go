package async

import "errors"

// ErrLimit is returned by TransactionBegin when the phone table is
// exhausted and no inactive connection could be evicted to make room,
// per spec §4.8 step 4.
var ErrLimit = errors.New("async: phone table exhausted (ELIMIT)")

// TransactionBegin obtains a data phone for one transaction on s,
// implementing spec §4.8's four-step algorithm:
//  1. reuse a cached data phone if the session has one parked;
//  2. otherwise open a fresh connection if the phone table has room;
//  3. otherwise evict the least recently used parked phone anywhere in
//     the task and retry once;
//  4. otherwise fail with ErrLimit.
func TransactionBegin(s *Session) (*DataPhone, error) {
	if dp := s.popCached(); dp != nil {
		return dp, nil
	}

	dp, err := s.openFresh()
	if err == nil {
		return dp, nil
	}

	if victim := s.inactive.EvictLRU(); victim != nil {
		victim.session.evict(victim)
		victim.Phone.Hangup()
		s.limiter.Release()

		dp, err = s.openFresh()
		if err == nil {
			return dp, nil
		}
	}

	return nil, ErrLimit
}

func (s *Session) openFresh() (*DataPhone, error) {
	if !s.limiter.TryAcquire() {
		return nil, ErrLimit
	}
	phone, err := s.connect()
	if err != nil {
		s.limiter.Release()
		return nil, err
	}
	return &DataPhone{Phone: phone, session: s}, nil
}

// TransactionEnd reattaches dp to s's cache and records it on the
// global inactive list; if the session's cache is already full, dp is
// hung up and its phone-table slot released instead, per spec §4.8.
func TransactionEnd(s *Session, dp *DataPhone) {
	if s.park(dp) {
		return
	}
	dp.Phone.Hangup()
	s.limiter.Release()
}
