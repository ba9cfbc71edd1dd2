// Package metrics exposes Prometheus counters for the share lifecycle,
// the scheduler and the flow controller.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "secretshare"

// Metrics holds every collector the service registers.
type Metrics struct {
	sharesCreated *prometheus.CounterVec
	views         *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	flows         *prometheus.CounterVec
	activeFlows   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sharesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shares_created_total",
			Help:      "Shares created, by recipient kind.",
		}, []string{"recipient_kind"}),
		views: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_attempts_total",
			Help:      "View attempts, by outcome.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_transitions_total",
			Help:      "Share status transitions applied, by target status.",
		}, []string{"status"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_tasks_total",
			Help:      "Scheduled task executions, by kind and result.",
		}, []string{"kind", "result"}),
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_total",
			Help:      "Share creation flows that ended, by outcome.",
		}, []string{"outcome"}),
		activeFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flows_active",
			Help:      "Flows started and not yet ended in this process.",
		}),
	}
	reg.MustRegister(m.sharesCreated, m.views, m.transitions, m.tasks, m.flows, m.activeFlows)
	return m
}

// ShareCreated counts a persisted share.
func (m *Metrics) ShareCreated(recipientKind string) {
	if m == nil {
		return
	}
	m.sharesCreated.WithLabelValues(recipientKind).Inc()
}

// ViewAttempt counts a view attempt with its outcome.
func (m *Metrics) ViewAttempt(result string) {
	if m == nil {
		return
	}
	m.views.WithLabelValues(result).Inc()
}

// Transition counts a conditional update that moved a share to status.
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// TaskRun counts a scheduled task execution.
// result is one of ok, retry, abandoned, misfired.
func (m *Metrics) TaskRun(kind, result string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(kind, result).Inc()
}

// FlowStarted increments the active flow gauge.
func (m *Metrics) FlowStarted() {
	if m == nil {
		return
	}
	m.activeFlows.Inc()
}

// FlowEnded records how a flow ended and decrements the active gauge.
// outcome is one of committed, cancelled, timeout, aborted, replaced, failed.
func (m *Metrics) FlowEnded(outcome string) {
	if m == nil {
		return
	}
	m.flows.WithLabelValues(outcome).Inc()
	m.activeFlows.Dec()
}
