// Package tracker implements the message tracker: a process-wide state
// machine over in-flight chunk IDs, with per-worker assignment accounting,
// timeout detection, and bounded retries.
package tracker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arach/transcribe-dispatch/internal/errors"
	"github.com/arach/transcribe-dispatch/internal/logging"
	"github.com/arach/transcribe-dispatch/internal/protocol"
)

var logger = logging.ForService("tracker")

// Errors returned by tracker operations.
var (
	ErrAlreadyTracked = errors.Newf("message already tracked").
				Component("tracker").
				Category(errors.CategoryConflict).
				Build()

	ErrNotTracked = errors.Newf("message not tracked").
			Component("tracker").
			Category(errors.CategoryNotFound).
			Build()

	ErrNotProcessing = errors.Newf("message is not in Processing state").
				Component("tracker").
				Category(errors.CategoryState).
				Build()

	ErrNotPending = errors.Newf("message is not in Pending state").
			Component("tracker").
			Category(errors.CategoryState).
			Build()

	ErrWrongWorker = errors.Newf("transition attempted by a worker that does not own this message").
			Component("tracker").
			Category(errors.CategoryState).
			Build()
)

// Config holds the default retry/timeout policy applied to newly tracked
// messages. Individual messages capture their own copy at Track time so a
// config change mid-flight never mutates an in-progress message's bounds.
type Config struct {
	MaxRetries     int
	TimeoutSeconds int
}

// MessageTracker is a process-wide map of in-flight message ids to their
// MessageInfo, plus an auxiliary worker_id -> set(id) index. A single
// read-write lock protects both maps; state transitions on one id are
// linearizable, and transitions on distinct ids may interleave freely.
type MessageTracker struct {
	mu          sync.RWMutex
	messages    map[uuid.UUID]*protocol.MessageInfo
	assignments map[string]map[uuid.UUID]struct{}

	cfg   Config
	clock Clock
}

// New constructs a MessageTracker with the given default retry/timeout policy.
func New(cfg Config, clock Clock) *MessageTracker {
	if clock == nil {
		clock = RealClock{}
	}
	return &MessageTracker{
		messages:    make(map[uuid.UUID]*protocol.MessageInfo),
		assignments: make(map[string]map[uuid.UUID]struct{}),
		cfg:         cfg,
		clock:       clock,
	}
}

// Track inserts a new Pending entry for id. Fails if id is already tracked.
func (t *MessageTracker) Track(id uuid.UUID, sizeBytes int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.messages[id]; exists {
		return ErrAlreadyTracked
	}

	now := t.clock.Now()
	t.messages[id] = &protocol.MessageInfo{
		ID:             id,
		State:          protocol.StatePending,
		FirstSeen:      now,
		LastUpdated:    now,
		SizeBytes:      sizeBytes,
		MaxRetries:     t.cfg.MaxRetries,
		TimeoutSeconds: t.cfg.TimeoutSeconds,
	}
	logger.Debug("tracking new message", "id", id, "size_bytes", sizeBytes)
	return nil
}

// AssignToWorker transitions Pending -> Processing(workerID).
func (t *MessageTracker) AssignToWorker(id uuid.UUID, workerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.messages[id]
	if !ok {
		return ErrNotTracked
	}
	if info.State != protocol.StatePending {
		return ErrNotPending
	}

	info.State = protocol.StateProcessing
	info.WorkerID = workerID
	info.LastUpdated = t.clock.Now()

	t.addAssignmentLocked(workerID, id)
	logger.Debug("message assigned to worker", "id", id, "worker_id", workerID)
	return nil
}

// MarkCompleted transitions Processing(workerID) -> Completed(workerID).
// Rejected if the message isn't Processing, or is owned by a different
// worker — this prevents double-delivery side effects from a straggling
// response after reassignment.
func (t *MessageTracker) MarkCompleted(id uuid.UUID, workerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, err := t.processingByLocked(id, workerID)
	if err != nil {
		return err
	}

	info.State = protocol.StateCompleted
	info.LastUpdated = t.clock.Now()
	t.removeAssignmentLocked(workerID, id)

	logger.Info("message completed", "id", id, "worker_id", workerID,
		"duration_ms", info.LastUpdated.Sub(info.FirstSeen).Milliseconds())
	return nil
}

// MarkFailed transitions Processing(workerID) -> Retrying(n+1) -> Pending if
// retries remain, or -> Failed(workerID, err) if exhausted. Returns whether
// the message will be retried.
func (t *MessageTracker) MarkFailed(id uuid.UUID, workerID, reason string) (retried bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ferr := t.processingByLocked(id, workerID)
	if ferr != nil {
		return false, ferr
	}

	t.removeAssignmentLocked(workerID, id)
	return t.failOrRetryLocked(info, workerID, reason), nil
}

// CheckTimeouts scans Processing entries whose last update age exceeds their
// timeout and returns the candidate ids. It does not transition state;
// callers pass each candidate to HandleTimeout.
func (t *MessageTracker) CheckTimeouts() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock.Now()
	var candidates []uuid.UUID
	for id, info := range t.messages {
		if info.IsTimedOut(now) {
			candidates = append(candidates, id)
		}
	}
	return candidates
}

// HandleTimeout transitions a timed-out Processing message to Retrying ->
// Pending (if retries remain) or Failed (if exhausted). Returns whether it
// was retried.
func (t *MessageTracker) HandleTimeout(id uuid.UUID) (retried bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.messages[id]
	if !ok {
		return false, ErrNotTracked
	}
	if info.State != protocol.StateProcessing {
		return false, ErrNotProcessing
	}

	workerID := info.WorkerID
	t.removeAssignmentLocked(workerID, id)
	return t.failOrRetryLocked(info, workerID, "Processing timeout"), nil
}

// CleanupOld removes terminal (Completed/Failed) entries older than maxAge.
// Pending, Processing, and Retrying entries are never removed.
func (t *MessageTracker) CleanupOld(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	removed := 0
	for id, info := range t.messages {
		if info.State != protocol.StateCompleted && info.State != protocol.StateFailed {
			continue
		}
		if now.Sub(info.LastUpdated) > maxAge {
			delete(t.messages, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Debug("cleaned up old messages", "removed", removed)
	}
	return removed
}

// ClearWorkerAssignments returns and forgets the set of ids currently
// assigned to workerID. Called when the supervisor observes a worker's
// death, so the dispatcher can re-enqueue or fail those ids.
func (t *MessageTracker) ClearWorkerAssignments(workerID string) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.assignments[workerID]
	delete(t.assignments, workerID)

	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// Get returns a copy of the MessageInfo for id, if tracked.
func (t *MessageTracker) Get(id uuid.UUID) (protocol.MessageInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.messages[id]
	if !ok {
		return protocol.MessageInfo{}, false
	}
	return *info, true
}

// Len returns the number of tracked messages, terminal or not.
func (t *MessageTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// failOrRetryLocked applies the shared Retrying/Failed decision used by both
// MarkFailed and HandleTimeout. Caller holds the write lock.
func (t *MessageTracker) failOrRetryLocked(info *protocol.MessageInfo, workerID, reason string) bool {
	now := t.clock.Now()
	if info.CanRetry() {
		info.RetryCount++
		info.RetryAttempt = info.RetryCount
		info.State = protocol.StatePending
		info.WorkerID = ""
		info.LastUpdated = now
		logger.Info("message will be retried", "id", info.ID, "attempt", info.RetryCount, "max_retries", info.MaxRetries)
		return true
	}

	info.State = protocol.StateFailed
	info.WorkerID = workerID
	info.LastError = reason
	info.LastUpdated = now
	logger.Error("message exceeded max retries", "id", info.ID, "worker_id", workerID, "reason", reason)
	return false
}

// processingByLocked fetches info for id and verifies it is Processing and
// owned by workerID. Caller holds the write lock.
func (t *MessageTracker) processingByLocked(id uuid.UUID, workerID string) (*protocol.MessageInfo, error) {
	info, ok := t.messages[id]
	if !ok {
		return nil, ErrNotTracked
	}
	if info.State != protocol.StateProcessing {
		return nil, ErrNotProcessing
	}
	if info.WorkerID != workerID {
		return nil, ErrWrongWorker
	}
	return info, nil
}

func (t *MessageTracker) addAssignmentLocked(workerID string, id uuid.UUID) {
	set, ok := t.assignments[workerID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		t.assignments[workerID] = set
	}
	set[id] = struct{}{}
}

func (t *MessageTracker) removeAssignmentLocked(workerID string, id uuid.UUID) {
	if set, ok := t.assignments[workerID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(t.assignments, workerID)
		}
	}
}
