package tracker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arach/transcribe-dispatch/internal/protocol"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(cfg Config) (*MessageTracker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	return New(cfg, clock), clock
}

func TestTrackRejectsDuplicateID(t *testing.T) {
	tr, _ := newTestTracker(Config{MaxRetries: 1, TimeoutSeconds: 5})
	id := uuid.New()

	require.NoError(t, tr.Track(id, 1024))
	err := tr.Track(id, 1024)
	assert.ErrorIs(t, err, ErrAlreadyTracked)
}

func TestHappyPathTransitionsToCompleted(t *testing.T) {
	tr, _ := newTestTracker(Config{MaxRetries: 1, TimeoutSeconds: 5})
	id := uuid.New()

	require.NoError(t, tr.Track(id, 100))
	require.NoError(t, tr.AssignToWorker(id, "w1"))
	require.NoError(t, tr.MarkCompleted(id, "w1"))

	info, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, protocol.StateCompleted, info.State)
}

func TestAssignToWorkerRejectsNonPendingSource(t *testing.T) {
	tr, _ := newTestTracker(Config{MaxRetries: 1, TimeoutSeconds: 5})
	id := uuid.New()

	require.NoError(t, tr.Track(id, 100))
	require.NoError(t, tr.AssignToWorker(id, "w1"))
	require.NoError(t, tr.MarkCompleted(id, "w1"))

	err := tr.AssignToWorker(id, "w2")
	assert.ErrorIs(t, err, ErrNotPending)

	info, _ := tr.Get(id)
	assert.Equal(t, protocol.StateCompleted, info.State)
}

func TestMarkCompletedRejectsWrongWorker(t *testing.T) {
	tr, _ := newTestTracker(Config{MaxRetries: 1, TimeoutSeconds: 5})
	id := uuid.New()

	require.NoError(t, tr.Track(id, 100))
	require.NoError(t, tr.AssignToWorker(id, "w1"))

	err := tr.MarkCompleted(id, "w2")
	assert.ErrorIs(t, err, ErrWrongWorker)
}

func TestMarkFailedRetriesUntilExhausted(t *testing.T) {
	tr, _ := newTestTracker(Config{MaxRetries: 1, TimeoutSeconds: 5})
	id := uuid.New()

	require.NoError(t, tr.Track(id, 100))
	require.NoError(t, tr.AssignToWorker(id, "w1"))

	retried, err := tr.MarkFailed(id, "w1", "boom")
	require.NoError(t, err)
	assert.True(t, retried)

	info, _ := tr.Get(id)
	assert.Equal(t, protocol.StatePending, info.State)
	assert.Equal(t, 1, info.RetryCount)

	require.NoError(t, tr.AssignToWorker(id, "w2"))
	retried, err = tr.MarkFailed(id, "w2", "boom again")
	require.NoError(t, err)
	assert.False(t, retried)

	info, _ = tr.Get(id)
	assert.Equal(t, protocol.StateFailed, info.State)
	assert.Equal(t, "boom again", info.LastError)
}

func TestCheckTimeoutsAndHandleTimeout(t *testing.T) {
	tr, clock := newTestTracker(Config{MaxRetries: 0, TimeoutSeconds: 1})
	id := uuid.New()

	require.NoError(t, tr.Track(id, 100))
	require.NoError(t, tr.AssignToWorker(id, "w1"))

	assert.Empty(t, tr.CheckTimeouts())

	clock.advance(2 * time.Second)
	candidates := tr.CheckTimeouts()
	require.Len(t, candidates, 1)
	assert.Equal(t, id, candidates[0])

	retried, err := tr.HandleTimeout(id)
	require.NoError(t, err)
	assert.False(t, retried) // MaxRetries: 0

	info, _ := tr.Get(id)
	assert.Equal(t, protocol.StateFailed, info.State)
	assert.Equal(t, "Processing timeout", info.LastError)
}

func TestCleanupOldNeverRemovesLiveStates(t *testing.T) {
	tr, clock := newTestTracker(Config{MaxRetries: 1, TimeoutSeconds: 5})
	pending := uuid.New()
	completed := uuid.New()

	require.NoError(t, tr.Track(pending, 10))
	require.NoError(t, tr.Track(completed, 10))
	require.NoError(t, tr.AssignToWorker(completed, "w1"))
	require.NoError(t, tr.MarkCompleted(completed, "w1"))

	clock.advance(time.Hour)

	removed := tr.CleanupOld(time.Minute)
	assert.Equal(t, 1, removed)

	_, stillThere := tr.Get(pending)
	assert.True(t, stillThere)
	_, gone := tr.Get(completed)
	assert.False(t, gone)
}

func TestClearWorkerAssignmentsReturnsAndForgets(t *testing.T) {
	tr, _ := newTestTracker(Config{MaxRetries: 1, TimeoutSeconds: 5})
	id1, id2 := uuid.New(), uuid.New()

	require.NoError(t, tr.Track(id1, 10))
	require.NoError(t, tr.Track(id2, 10))
	require.NoError(t, tr.AssignToWorker(id1, "w1"))
	require.NoError(t, tr.AssignToWorker(id2, "w1"))

	ids := tr.ClearWorkerAssignments("w1")
	assert.ElementsMatch(t, []uuid.UUID{id1, id2}, ids)

	assert.Empty(t, tr.ClearWorkerAssignments("w1"))
}
