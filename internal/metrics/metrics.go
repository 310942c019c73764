// Package metrics exposes Prometheus counters for authentication, blocking
// and ledger outcomes. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service counters.
type Metrics struct {
	logins      *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	ledger      *prometheus.CounterVec
	audit       *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "records",
			Name:      "logins_total",
			Help:      "Login attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "records",
			Name:      "guard_rejections_total",
			Help:      "Requests rejected by the access guard, by error code.",
		}, []string{"code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "records",
			Name:      "status_transitions_total",
			Help:      "Block and unblock attempts by action and outcome.",
		}, []string{"action", "outcome"}),
		ledger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "records",
			Name:      "ledger_writes_total",
			Help:      "Attendance and marks writes by ledger and outcome.",
		}, []string{"ledger", "outcome"}),
		audit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "records",
			Name:      "audit_events_consumed_total",
			Help:      "Audit events consumed from the queue by action.",
		}, []string{"action"}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.rejections, m.transitions, m.ledger, m.audit)
	}
	return m
}

// Login counts a login attempt.
func (m *Metrics) Login(method, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, outcome).Inc()
}

// GuardRejected counts a request the guard turned away.
func (m *Metrics) GuardRejected(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

// Transition counts a block or unblock attempt.
func (m *Metrics) Transition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

// LedgerWrite counts an attendance or marks write.
func (m *Metrics) LedgerWrite(ledger, outcome string) {
	if m == nil {
		return
	}
	m.ledger.WithLabelValues(ledger, outcome).Inc()
}

// AuditConsumed counts an audit event processed by the worker.
func (m *Metrics) AuditConsumed(action string) {
	if m == nil {
		return
	}
	m.audit.WithLabelValues(action).Inc()
}
