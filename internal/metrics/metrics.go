package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mirrorcal"

// Metrics holds the Prometheus collectors of the calendar module.
type Metrics struct {
	PipelineRuns      *prometheus.CounterVec
	PipelineOutput    *prometheus.GaugeVec
	SkippedEvents     *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	SnapshotFailures  prometheus.Counter
	SnapshotDurations prometheus.Histogram
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Number of event list computations",
			},
			[]string{"mode"},
		),
		PipelineOutput: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "output_events",
				Help:      "Size of the last computed event list",
			},
			[]string{"mode"},
		),
		SkippedEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "skipped_events_total",
				Help:      "Events left out of a computed list",
			},
			[]string{"reason"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications handled by the module",
			},
			[]string{"name"},
		),
		SnapshotFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "failures_total",
				Help:      "Failed PNG snapshots",
			},
		),
		SnapshotDurations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "duration_seconds",
				Help:      "PNG snapshot duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// Mode label values.
const (
	ModeDisplay   = "display"
	ModeBroadcast = "broadcast"
)

// ObserveRun records one pipeline run.
func (m *Metrics) ObserveRun(mode string, output int, skipped map[string]int) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(mode).Inc()
	m.PipelineOutput.WithLabelValues(mode).Set(float64(output))
	for reason, n := range skipped {
		m.SkippedEvents.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveNotification counts one handled notification.
func (m *Metrics) ObserveNotification(name string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(name).Inc()
}
