package controlplane

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arach/transcribe-dispatch/internal/protocol"
	"github.com/arach/transcribe-dispatch/internal/queuemonitor"
	"github.com/arach/transcribe-dispatch/internal/tracker"
)

func newTestMonitor() *ControlPlaneMonitor {
	tr := tracker.New(tracker.Config{MaxRetries: 1, TimeoutSeconds: 5}, nil)
	qm := queuemonitor.New(queuemonitor.Config{})
	return New(tr, qm)
}

func TestIngestStartedIncrementsActiveWorkers(t *testing.T) {
	m := newTestMonitor()
	m.Ingest(protocol.WorkerStatus{WorkerID: "w1", Kind: protocol.WorkerStarted, Timestamp: time.Now()})

	h := m.Health()
	assert.Equal(t, 1, h.ActiveWorkers)
	assert.True(t, h.IsHealthy)
}

func TestIngestStoppingDecrementsActiveWorkers(t *testing.T) {
	m := newTestMonitor()
	m.Ingest(protocol.WorkerStatus{WorkerID: "w1", Kind: protocol.WorkerStarted, Timestamp: time.Now()})
	m.Ingest(protocol.WorkerStatus{WorkerID: "w1", Kind: protocol.WorkerStopping, Timestamp: time.Now()})

	assert.Equal(t, 0, m.Health().ActiveWorkers)
}

func TestIngestMessageReceivedAssignsTracker(t *testing.T) {
	m := newTestMonitor()
	id := uuid.New()
	require.NoError(t, m.tracker.Track(id, 100))

	m.Ingest(protocol.WorkerStatus{WorkerID: "w1", Kind: protocol.WorkerMessageReceived, MessageID: id, Timestamp: time.Now()})

	info, ok := m.tracker.Get(id)
	require.True(t, ok)
	assert.Equal(t, protocol.StateProcessing, info.State)
}

func TestIngestMessageCompletedMarksTracker(t *testing.T) {
	m := newTestMonitor()
	id := uuid.New()
	require.NoError(t, m.tracker.Track(id, 100))
	require.NoError(t, m.tracker.AssignToWorker(id, "w1"))

	m.Ingest(protocol.WorkerStatus{WorkerID: "w1", Kind: protocol.WorkerMessageCompleted, MessageID: id, Success: true, Timestamp: time.Now()})

	info, _ := m.tracker.Get(id)
	assert.Equal(t, protocol.StateCompleted, info.State)
}

func TestIngestErrorIncrementsCounters(t *testing.T) {
	m := newTestMonitor()
	m.Ingest(protocol.WorkerStatus{WorkerID: "w1", Kind: protocol.WorkerError, ErrorMessage: "boom", Timestamp: time.Now()})

	h := m.Health()
	assert.Equal(t, uint64(1), h.Errors)
	assert.Equal(t, "boom", h.LastError)
}

func TestIngestErrorFiresErrorHook(t *testing.T) {
	tr := tracker.New(tracker.Config{MaxRetries: 1, TimeoutSeconds: 5}, nil)
	qm := queuemonitor.New(queuemonitor.Config{})
	errors := 0
	m := New(tr, qm, WithErrorHook(func() { errors++ }))

	m.Ingest(protocol.WorkerStatus{WorkerID: "w1", Kind: protocol.WorkerError, ErrorMessage: "boom", Timestamp: time.Now()})

	assert.Equal(t, 1, errors)
}

func TestIngestMessageCompletedFiresMessageHook(t *testing.T) {
	tr := tracker.New(tracker.Config{MaxRetries: 1, TimeoutSeconds: 5}, nil)
	qm := queuemonitor.New(queuemonitor.Config{})
	var gotWorker, gotStatus string
	m := New(tr, qm, WithMessageHook(func(workerID, status string) {
		gotWorker, gotStatus = workerID, status
	}))

	id := uuid.New()
	require.NoError(t, tr.Track(id, 100))
	require.NoError(t, tr.AssignToWorker(id, "w1"))

	m.Ingest(protocol.WorkerStatus{WorkerID: "w1", Kind: protocol.WorkerMessageCompleted, MessageID: id, Success: true, Timestamp: time.Now()})

	assert.Equal(t, "w1", gotWorker)
	assert.Equal(t, "completed", gotStatus)
}

func TestHealthUnhealthyWithoutHeartbeat(t *testing.T) {
	m := newTestMonitor()
	assert.False(t, m.Health().IsHealthy)
}

func TestHistoryBoundedAndOrdered(t *testing.T) {
	m := newTestMonitor()
	for i := 0; i < MaxStatusHistory+10; i++ {
		m.Ingest(protocol.WorkerStatus{WorkerID: "w1", Kind: protocol.WorkerHeartbeat, Processed: int64(i), Timestamp: time.Now()})
	}

	hist := m.History()
	require.Len(t, hist, MaxStatusHistory)
	assert.Equal(t, int64(10), hist[0].Processed) // oldest surviving entry
	assert.Equal(t, int64(109), hist[len(hist)-1].Processed)
}
