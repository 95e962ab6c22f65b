package gateway

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/wa-gateway/internal/session"
)

const metricsNamespace = "wagateway"

// Metrics exposes Prometheus collectors for session and dispatch activity.
type Metrics struct {
	sessionState     *prometheus.GaugeVec
	transitions      *prometheus.CounterVec
	pairingCodes     prometheus.Counter
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	cleanupRemoved   *prometheus.CounterVec
	cleanupRuns      *prometheus.CounterVec
}

// MustNewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer. Collectors already present
// in reg are reused, so a second call against the same registry is safe.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "Current session state per tenant (1 for the active state, 0 otherwise).",
		}, []string{"tenant", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"state"}),
		pairingCodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "pairing_codes_total",
			Help:      "Pairing codes issued across all sessions.",
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Message send attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent in a send operation, including auto-initialization.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		cleanupRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cleanup",
			Name:      "files_removed_total",
			Help:      "Temp files removed by scope (global or tenant).",
		}, []string{"scope"}),
		cleanupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cleanup",
			Name:      "runs_total",
			Help:      "Cleanup passes by scope and outcome.",
		}, []string{"scope", "outcome"}),
	}

	m.sessionState = register(reg, m.sessionState)
	m.transitions = register(reg, m.transitions)
	m.pairingCodes = register(reg, m.pairingCodes)
	m.dispatchTotal = register(reg, m.dispatchTotal)
	m.dispatchDuration = register(reg, m.dispatchDuration)
	m.cleanupRemoved = register(reg, m.cleanupRemoved)
	m.cleanupRuns = register(reg, m.cleanupRuns)
	return m
}

// register adds c to reg, returning the existing collector when an
// identical one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// observe records a session event.
func (m *Metrics) observe(ev session.Event) {
	switch ev.Kind {
	case session.EventPairingCode:
		m.pairingCodes.Inc()
	case session.EventStateChanged:
		for _, st := range []session.State{session.StateIdle, session.StateDisconnected, session.StateConnected} {
			v := 0.0
			if st == ev.State {
				v = 1
			}
			m.sessionState.WithLabelValues(ev.TenantID, string(st)).Set(v)
		}
		if !ev.Replay {
			m.transitions.WithLabelValues(string(ev.State)).Inc()
		}
	}
}

// ObserveDispatch records one send attempt.
func (m *Metrics) ObserveDispatch(kind, outcome string, elapsed time.Duration) {
	m.dispatchTotal.WithLabelValues(kind, outcome).Inc()
	m.dispatchDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveCleanup records one purge pass.
func (m *Metrics) ObserveCleanup(scope string, removed int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.cleanupRuns.WithLabelValues(scope, outcome).Inc()
	m.cleanupRemoved.WithLabelValues(scope).Add(float64(removed))
}
