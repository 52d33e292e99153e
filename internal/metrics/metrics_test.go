package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunQueueDepthIsLabeledByCPU(t *testing.T) {
	m := New()
	m.RunQueueDepth.WithLabelValues("0").Set(3)
	m.RunQueueDepth.WithLabelValues("1").Set(5)

	require.Equal(t, float64(3), testutil.ToFloat64(m.RunQueueDepth.WithLabelValues("0")))
	require.Equal(t, float64(5), testutil.ToFloat64(m.RunQueueDepth.WithLabelValues("1")))
}

func TestFibrilSwitchesCountsByType(t *testing.T) {
	m := New()
	m.FibrilSwitches.WithLabelValues("preempt").Inc()
	m.FibrilSwitches.WithLabelValues("preempt").Inc()
	m.FibrilSwitches.WithLabelValues("to_manager").Inc()

	require.Equal(t, float64(2), testutil.ToFloat64(m.FibrilSwitches.WithLabelValues("preempt")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.FibrilSwitches.WithLabelValues("to_manager")))
}

func TestFramesGaugesAreIndependentlySettable(t *testing.T) {
	m := New()
	m.FramesFree.Set(100)
	m.FramesReserved.Set(12)

	require.Equal(t, float64(100), testutil.ToFloat64(m.FramesFree))
	require.Equal(t, float64(12), testutil.ToFloat64(m.FramesReserved))
}

func TestNewReturnsIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.LoadBalanceMove.Inc()

	require.Equal(t, float64(1), testutil.ToFloat64(a.LoadBalanceMove))
	require.Equal(t, float64(0), testutil.ToFloat64(b.LoadBalanceMove))
}
