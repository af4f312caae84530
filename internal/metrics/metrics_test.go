package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRun(ModeDisplay, 4, map[string]int{"past": 2, "duplicate": 1})
	m.ObserveRun(ModeDisplay, 3, map[string]int{"past": 1})
	m.ObserveNotification("CALENDAR_EVENTS")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PipelineRuns.WithLabelValues(ModeDisplay)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PipelineOutput.WithLabelValues(ModeDisplay)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SkippedEvents.WithLabelValues("past")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("CALENDAR_EVENTS")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun(ModeBroadcast, 1, nil)
		m.ObserveNotification("SWEDISH_DAYS")
	})
}
