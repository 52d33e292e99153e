// Package metrics exposes the kernel's Prometheus collectors: scheduler
// run-queue depth, IPC call latency, frame allocator pressure, and
// fibril switch counts. Grounded on the domain-stack wiring for
// github.com/prometheus/client_golang (cuemby-warren in the example
// pack), replacing ublk's hand-rolled atomic-counter Metrics/Observer
// pair with real collectors registrable on a /metrics endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the kernel registers. New always
// builds a fresh prometheus.NewRegistry, so each result is
// self-contained (useful in tests).
type Metrics struct {
	Registry *prometheus.Registry

	RunQueueDepth   *prometheus.GaugeVec
	IPCCallLatency  prometheus.Histogram
	FramesFree      prometheus.Gauge
	FramesReserved  prometheus.Gauge
	FibrilSwitches  *prometheus.CounterVec
	LoadBalanceMove prometheus.Counter
}

// New creates and registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		RunQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kcore",
			Subsystem: "sched",
			Name:      "run_queue_depth",
			Help:      "Number of ready threads queued on a simulated CPU.",
		}, []string{"cpu"}),
		IPCCallLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kcore",
			Subsystem: "ipc",
			Name:      "call_latency_seconds",
			Help:      "Time from Phone.Send to the call's answer being observed.",
			Buckets:   prometheus.DefBuckets,
		}),
		FramesFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kcore",
			Subsystem: "frame",
			Name:      "frames_free",
			Help:      "Frames currently unallocated across all zones.",
		}),
		FramesReserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kcore",
			Subsystem: "frame",
			Name:      "frames_reserved",
			Help:      "Frames currently charged against the reservable counter.",
		}),
		FibrilSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kcore",
			Subsystem: "fibril",
			Name:      "switches_total",
			Help:      "Fibril context switches, labeled by switch type.",
		}, []string{"type"}),
		LoadBalanceMove: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcore",
			Subsystem: "sched",
			Name:      "load_balance_moves_total",
			Help:      "Threads migrated between CPUs by the load balancer.",
		}),
	}

	reg.MustRegister(
		m.RunQueueDepth,
		m.IPCCallLatency,
		m.FramesFree,
		m.FramesReserved,
		m.FibrilSwitches,
		m.LoadBalanceMove,
	)
	return m
}
