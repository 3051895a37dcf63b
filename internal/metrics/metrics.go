// Package metrics defines the Prometheus metrics exported by the backfill engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "backfill"

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsStarted      prometheus.Counter
	RunsDeduped      prometheus.Counter
	RunsFinalized    *prometheus.CounterVec
	OutreachAttempts *prometheus.CounterVec
	Rankings         *prometheus.CounterVec
	AuditFailures    prometheus.Counter
	SignalsHandled   *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Backfill runs created.",
		}),
		RunsDeduped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_deduped_total",
			Help:      "Trigger signals answered with an already-running run.",
		}),
		RunsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finalized_total",
			Help:      "Runs that reached a terminal status.",
		}, []string{"status"}),
		OutreachAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outreach_attempts_total",
			Help:      "Outreach attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		Rankings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rankings_total",
			Help:      "Ranking invocations by mode.",
		}, []string{"mode"}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be persisted.",
		}),
		SignalsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_handled_total",
			Help:      "Bus signals processed by topic and result.",
		}, []string{"topic", "result"}),
	}
}

// RunStarted counts a newly created run.
func (m *Metrics) RunStarted() {
	if m != nil {
		m.RunsStarted.Inc()
	}
}

// RunDeduped counts a trigger that reused an active run.
func (m *Metrics) RunDeduped() {
	if m != nil {
		m.RunsDeduped.Inc()
	}
}

// RunFinalized counts a run reaching status.
func (m *Metrics) RunFinalized(status string) {
	if m != nil {
		m.RunsFinalized.WithLabelValues(status).Inc()
	}
}

// Outreach counts an attempt outcome on a channel.
func (m *Metrics) Outreach(channel, outcome string) {
	if m != nil {
		m.OutreachAttempts.WithLabelValues(channel, outcome).Inc()
	}
}

// Ranked counts a ranking invocation.
func (m *Metrics) Ranked(mode string) {
	if m != nil {
		m.Rankings.WithLabelValues(mode).Inc()
	}
}

// AuditFailed counts a swallowed audit write failure.
func (m *Metrics) AuditFailed() {
	if m != nil {
		m.AuditFailures.Inc()
	}
}

// SignalHandled counts a processed bus message.
func (m *Metrics) SignalHandled(topic, result string) {
	if m != nil {
		m.SignalsHandled.WithLabelValues(topic, result).Inc()
	}
}
