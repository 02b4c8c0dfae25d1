package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/crewplanner-backend/pkg/metrics/metricstest"
)

func TestOutboxMetricsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncOutcome("job_reassigned", "published")
	m.IncOutcome("job_reassigned", "published")
	m.IncOutcome("route_sequenced", "dead_lettered")
	m.IncOutcome("", "retry")
	m.ObserveBatch(3)

	require.Equal(t, 2.0, metricstest.Value(t, reg, "outbox_dispatch_total", map[string]string{"event_type": "job_reassigned", "outcome": "published"}))
	require.Equal(t, 1.0, metricstest.Value(t, reg, "outbox_dispatch_total", map[string]string{"event_type": "route_sequenced", "outcome": "dead_lettered"}))
	require.Equal(t, 1.0, metricstest.Value(t, reg, "outbox_dispatch_total", map[string]string{"event_type": "unknown", "outcome": "retry"}))
	batch := metricstest.Find(t, reg, "outbox_batch_size", nil)
	require.NotNil(t, batch)
	require.Equal(t, uint64(1), batch.GetHistogram().GetSampleCount())
	require.Equal(t, 3.0, batch.GetHistogram().GetSampleSum())
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.IncOutcome("job_reassigned", "published")
	m.ObserveBatch(1)
	NewOutboxMetrics(nil).IncOutcome("", "")
}
