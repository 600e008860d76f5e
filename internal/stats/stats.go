// Package stats exposes barrier latency, retransmit, and recovery
// duration counters as Prometheus collectors (grounded on
// cuemby-warren's pkg/metrics, the pack's own example of registering
// domain gauges/counters/histograms against prometheus.DefaultRegisterer).
package stats

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the narrow interface internal/wt, internal/msg, and
// internal/rec depend on, so a nil Recorder (no metrics wired) and a
// real *Registry are interchangeable at call sites. Callers test the
// interface value for nil; a typed nil *Registry is not safe to call.
type Recorder interface {
	ObserveBarrierLatencySeconds(barrier string, seconds float64)
	IncRetransmitRequested()
	IncRetransmitCoalesced()
	ObserveRecoveryDurationSeconds(state string, seconds float64)
}

// Registry is the default Recorder, backed by prometheus collectors
// registered against prometheus.DefaultRegisterer.
type Registry struct {
	barrierLatency     *prometheus.HistogramVec
	retransmitRequests prometheus.Counter
	retransmitCoalesce prometheus.Counter
	recoveryDuration   *prometheus.HistogramVec
}

// NewRegistry creates and registers the collectors. The first call in a
// process registers them; later calls (several CoreContexts in one test
// process) reuse the collectors already registered, so every Registry in
// the process feeds the same metrics. Tests that don't need metrics can
// pass a nil Recorder instead of constructing one.
func NewRegistry() *Registry {
	r := &Registry{
		barrierLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "admind_barrier_latency_seconds",
			Help: "Round-trip latency of a named barrier across the current membership.",
		}, []string{"barrier"}),
		retransmitRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admind_retransmit_requests_total",
			Help: "Retransmit requests issued by this node's messaging substrate.",
		}),
		retransmitCoalesce: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admind_retransmit_coalesced_total",
			Help: "Retransmit requests suppressed because one was already pending for that sequence.",
		}),
		recoveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "admind_recovery_duration_seconds",
			Help: "Wall-clock duration of a recovery driver run, labeled by terminal state.",
		}, []string{"state"}),
	}
	register := func(c prometheus.Collector) prometheus.Collector {
		if err := prometheus.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			return are.ExistingCollector
		}
		return c
	}
	r.barrierLatency = register(r.barrierLatency).(*prometheus.HistogramVec)
	r.retransmitRequests = register(r.retransmitRequests).(prometheus.Counter)
	r.retransmitCoalesce = register(r.retransmitCoalesce).(prometheus.Counter)
	r.recoveryDuration = register(r.recoveryDuration).(*prometheus.HistogramVec)
	return r
}

func (r *Registry) ObserveBarrierLatencySeconds(barrier string, seconds float64) {
	r.barrierLatency.WithLabelValues(barrier).Observe(seconds)
}

func (r *Registry) IncRetransmitRequested() { r.retransmitRequests.Inc() }
func (r *Registry) IncRetransmitCoalesced() { r.retransmitCoalesce.Inc() }

func (r *Registry) ObserveRecoveryDurationSeconds(state string, seconds float64) {
	r.recoveryDuration.WithLabelValues(state).Observe(seconds)
}
