package integration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-os/kcore"
	"github.com/kestrel-os/kcore/internal/async"
	"github.com/kestrel-os/kcore/internal/config"
	"github.com/kestrel-os/kcore/internal/ipc"
)

// TestSessionUnderPhonePressure covers the session-under-phone-pressure
// scenario: the task's phone-table limit is exhausted by sessions
// other than S, so S's transaction_begin must shed the global
// inactive list's least-recently-used parked phone to make room. The
// newly opened phone must work, and the session that lost its parked
// phone must still behave correctly on its own next transaction.
func TestSessionUnderPhonePressure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PhoneTableLimit = 2
	k, err := kcore.New(cfg)
	require.NoError(t, err)

	server := ipc.NewAnswerbox()
	connect := func() (*ipc.Phone, error) {
		p := ipc.NewPhone()
		if err := p.Connect(server); err != nil {
			return nil, err
		}
		return p, nil
	}

	evictee := k.OpenSession(ipc.NewPhone(), connect)
	target := k.OpenSession(ipc.NewPhone(), connect)

	// Fill the shared phone-table budget: one transaction parked on
	// evictee (idle, evictable), one still held open by target so the
	// limit is genuinely exhausted when target asks for a second.
	evicteeDP, err := async.TransactionBegin(evictee)
	require.NoError(t, err)
	async.TransactionEnd(evictee, evicteeDP)

	targetDP, err := async.TransactionBegin(target)
	require.NoError(t, err)

	// The table is now full (2/2) and target's own cache is empty, so
	// its second transaction must evict evictee's parked phone.
	secondDP, err := async.TransactionBegin(target)
	require.NoError(t, err)
	require.NotNil(t, secondDP)

	// The evicted phone must have been hung up.
	require.Equal(t, ipc.PhoneHungup, evicteeDP.Phone.State())

	async.TransactionEnd(target, targetDP)
	async.TransactionEnd(target, secondDP)

	// evictee must still work correctly on its next transaction: its
	// cache is now empty (its only parked phone was evicted), so this
	// opens a fresh connection rather than reusing a stale entry.
	evicteeDP2, err := async.TransactionBegin(evictee)
	require.NoError(t, err)
	require.Equal(t, ipc.PhoneConnected, evicteeDP2.Phone.State())
}
