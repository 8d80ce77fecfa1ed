package observability

import (
	"context"

	"github.com/aretw0/callboard/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors fed by coordinator events.
type Metrics struct {
	transitions *prometheus.CounterVec
	lines       *prometheus.GaugeVec
	ended       *prometheus.CounterVec
	duration    prometheus.Histogram
	incoming    prometheus.Counter
	selections  prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callboard_line_transitions_total",
				Help: "Total number of line status transitions",
			},
			[]string{"from", "to"},
		),
		lines: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callboard_lines",
				Help: "Number of lines per status",
			},
			[]string{"status"},
		),
		ended: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callboard_calls_ended_total",
				Help: "Total number of calls that left their line, by cause",
			},
			[]string{"cause"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callboard_call_duration_seconds",
				Help:    "Talk time of ended calls",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		incoming: f.NewCounter(
			prometheus.CounterOpts{
				Name: "callboard_incoming_calls_total",
				Help: "Total number of inbound calls routed to a line",
			},
		),
		selections: f.NewCounter(
			prometheus.CounterOpts{
				Name: "callboard_selection_changes_total",
				Help: "Total number of selected-line changes",
			},
		),
	}
}

// Seed sets the per-status gauge from a snapshot, typically right after construction.
func (m *Metrics) Seed(lines []domain.Line) {
	m.lines.Reset()
	for _, l := range lines {
		m.lines.WithLabelValues(string(l.Status)).Inc()
	}
}

// Hooks returns the lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, e *domain.LineStateChangeEvent) {
			m.transitions.WithLabelValues(string(e.PreviousStatus), string(e.CurrentStatus)).Inc()
			m.lines.WithLabelValues(string(e.PreviousStatus)).Dec()
			m.lines.WithLabelValues(string(e.CurrentStatus)).Inc()
		},
		OnIncomingCall: func(context.Context, *domain.LineIncomingCallEvent) {
			m.incoming.Inc()
		},
		OnCallEnded: func(_ context.Context, e *domain.LineCallEndedEvent) {
			m.ended.WithLabelValues(string(e.Cause)).Inc()
			m.duration.Observe(float64(e.DurationSeconds))
		},
		OnSelectionChange: func(context.Context, *domain.LineSelectionChangeEvent) {
			m.selections.Inc()
		},
	}
}
