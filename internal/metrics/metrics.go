// Package metrics exposes Prometheus collectors for the scheduler and the
// attendance engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "campusevents"

// Trigger outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeStale   = "stale"
	OutcomeFailed  = "failed"
)

// Mark outcomes.
const (
	MarkRecorded  = "recorded"
	MarkDuplicate = "duplicate"
	MarkRejected  = "rejected"
)

type Metrics struct {
	Ticks        prometheus.Counter
	TickDuration prometheus.Histogram
	QueueDepth   prometheus.Gauge
	Triggers     *prometheus.CounterVec
	Marks        *prometheus.CounterVec
	Finalized    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg (skipped when reg is nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "ticks_total",
			Help: "Scheduler ticks executed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "tick_duration_seconds",
			Help:    "Wall time spent processing one tick.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "queue_depth",
			Help: "Triggers waiting in the queue after the last tick.",
		}),
		Triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "triggers_total",
			Help: "Popped triggers by type and outcome.",
		}, []string{"type", "outcome"}),
		Marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attendance", Name: "marks_total",
			Help: "Attendance mark attempts by outcome.",
		}, []string{"outcome"}),
		Finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attendance", Name: "finalized_total",
			Help: "Finalized attendance records by final status.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.Ticks, m.TickDuration, m.QueueDepth, m.Triggers, m.Marks, m.Finalized)
	}
	return m
}

func (m *Metrics) ObserveTick(d time.Duration, depth int) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) Trigger(triggerType, outcome string) {
	if m == nil {
		return
	}
	m.Triggers.WithLabelValues(triggerType, outcome).Inc()
}

func (m *Metrics) Mark(outcome string) {
	if m == nil {
		return
	}
	m.Marks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Finalize(status string) {
	if m == nil {
		return
	}
	m.Finalized.WithLabelValues(status).Inc()
}
