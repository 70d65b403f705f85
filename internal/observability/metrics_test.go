package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordQueueHealthSetsGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewDispatchMetrics(registry)
	require.NoError(t, err)

	m.RecordQueueHealth(42, 3.5, 2.1, true, 4)

	assert.InDelta(t, 42, testutil.ToFloat64(m.queueDepth), 0.0001)
	assert.InDelta(t, 3.5, testutil.ToFloat64(m.queueIngressRate), 0.0001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.queueBackpressure), 0.0001)
	assert.InDelta(t, 4, testutil.ToFloat64(m.activeWorkers), 0.0001)
}

func TestRecordWorkerRestartIncrementsCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewDispatchMetrics(registry)
	require.NoError(t, err)

	m.RecordWorkerRestart("w1")
	m.RecordWorkerRestart("w1")

	count := testutil.ToFloat64(m.workerRestartsTotal.WithLabelValues("w1"))
	assert.Equal(t, float64(2), count)
}

func TestRecordWorkerMessageLabelsByStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewDispatchMetrics(registry)
	require.NoError(t, err)

	m.RecordWorkerMessage("w1", "completed")
	m.RecordWorkerMessage("w1", "failed")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.workerMessagesTotal.WithLabelValues("w1", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.workerMessagesTotal.WithLabelValues("w1", "failed")))
}
