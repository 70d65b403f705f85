// Package dispatcher wires the rest of the components together: it is the
// only component that writes to the queue and calls the tracker's Track,
// and it drains results and hands them to a post-processing sink.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arach/transcribe-dispatch/internal/logging"
	"github.com/arach/transcribe-dispatch/internal/protocol"
	"github.com/arach/transcribe-dispatch/internal/queue"
	"github.com/arach/transcribe-dispatch/internal/queuemonitor"
	"github.com/arach/transcribe-dispatch/internal/tracker"
)

var logger = logging.ForService("dispatcher")

// resultPollDeadline bounds one PopWait call on the result queue so the
// drain loop can observe context cancellation promptly.
const resultPollDeadline = 250 * time.Millisecond

// enqueueFailureWorkerID is a synthetic worker id used to route an
// enqueue-time failure through the tracker's mark_failed transition, which
// is only legal from Processing(w). A chunk that never reached the queue
// was never assigned to a real worker, so there is no natural w; this
// sentinel lets Submit reach Failed/Retrying without adding a second
// terminal transition to the tracker's state machine.
const enqueueFailureWorkerID = "dispatcher:enqueue-failure"

// FailureSink is called when a chunk cannot be enqueued — surfaced to the
// UI rather than silently dropped.
type FailureSink func(id protocol.AudioChunk, err error)

// ResultSink is the post-processing collaborator that receives completed
// or failed transcription results.
type ResultSink func(result protocol.Result)

// Dispatcher glues the audio pipeline's output to the queue and the
// queue's results back to a post-processing sink.
type Dispatcher struct {
	input   queue.Queue[protocol.AudioChunk]
	results queue.Queue[protocol.Result]
	tracker *tracker.MessageTracker
	qm      *queuemonitor.QueueMonitor

	onFailure FailureSink
	onResult  ResultSink

	// pendingMu guards pendingChunks, a cache of in-flight chunk payloads
	// keyed by id. The tracker holds metadata only, never the payload, so
	// this is the dispatcher's own bookkeeping for re-enqueueing a chunk
	// whose worker died mid-processing (see HandleWorkerExit).
	pendingMu     sync.Mutex
	pendingChunks map[uuid.UUID]protocol.AudioChunk
}

// New builds a Dispatcher over the given queues, tracker, and monitor.
// onFailure and onResult may be nil if the caller doesn't need those
// notifications.
func New(
	input queue.Queue[protocol.AudioChunk],
	results queue.Queue[protocol.Result],
	tr *tracker.MessageTracker,
	qm *queuemonitor.QueueMonitor,
	onFailure FailureSink,
	onResult ResultSink,
) *Dispatcher {
	return &Dispatcher{
		input:         input,
		results:       results,
		tracker:       tr,
		qm:            qm,
		onFailure:     onFailure,
		onResult:      onResult,
		pendingChunks: make(map[uuid.UUID]protocol.AudioChunk),
	}
}

// Submit tracks and enqueues a captured chunk. Refuses new work while the
// queue monitor reports backpressure, per §5. On enqueue failure the
// tracker entry is marked failed and the failure sink (if set) is notified;
// the chunk is not left tracked as Pending forever.
func (d *Dispatcher) Submit(chunk protocol.AudioChunk) error {
	if d.qm != nil && d.qm.Health().HasBackpressure {
		logger.Warn("chunk refused: queue under backpressure", "id", chunk.ID)
		if d.onFailure != nil {
			d.onFailure(chunk, queue.ErrFull)
		}
		return queue.ErrFull
	}

	sizeBytes := len(chunk.Samples) * 4 // f32 samples

	if err := d.tracker.Track(chunk.ID, sizeBytes); err != nil {
		return err
	}

	if err := d.input.Push(chunk); err != nil {
		if assignErr := d.tracker.AssignToWorker(chunk.ID, enqueueFailureWorkerID); assignErr != nil {
			logger.Warn("assign_to_worker for enqueue failure also failed", "id", chunk.ID, "error", assignErr)
		} else if _, markErr := d.tracker.MarkFailed(chunk.ID, enqueueFailureWorkerID, "enqueue failed: "+err.Error()); markErr != nil {
			logger.Warn("mark_failed after enqueue failure also failed", "id", chunk.ID, "error", markErr)
		}
		if d.onFailure != nil {
			d.onFailure(chunk, err)
		}
		return err
	}

	d.pendingMu.Lock()
	d.pendingChunks[chunk.ID] = chunk
	d.pendingMu.Unlock()

	if d.qm != nil {
		d.qm.RecordIngress()
	}
	logger.Debug("chunk dispatched", "id", chunk.ID, "size_bytes", sizeBytes)
	return nil
}

// Run drains the result queue until ctx is cancelled, relaying each result
// to the post-processing sink. Tracker transitions on the result's id are
// treated as best-effort: a control-plane event may have already driven
// the same transition, so a rejected transition here is logged, not fatal.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, ok, err := d.results.PopWait(ctx, resultPollDeadline)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("result queue pop failed", "error", err)
			continue
		}
		if !ok {
			continue
		}

		d.handleResult(result)
	}
}

func (d *Dispatcher) handleResult(result protocol.Result) {
	info, known := d.tracker.Get(result.ID)
	workerID := ""
	if known {
		workerID = info.WorkerID
	}

	retried := false
	if result.Error != nil {
		var err error
		retried, err = d.tracker.MarkFailed(result.ID, workerID, result.Error.Message)
		if err != nil {
			logger.Debug("mark_failed for result no-op", "id", result.ID, "error", err)
		}
	} else {
		if err := d.tracker.MarkCompleted(result.ID, workerID); err != nil {
			logger.Debug("mark_completed for result no-op", "id", result.ID, "error", err)
		}
	}
	if !retried {
		d.forgetPending(result.ID)
	}

	if d.qm != nil {
		d.qm.RecordEgress()
	}
	if d.onResult != nil {
		d.onResult(result)
	}
}

// HandleWorkerExit is called by the supervisor when a worker process dies.
// It clears the tracker's assignments for that worker, and for each
// orphaned id either re-enqueues the cached chunk (if the tracker still has
// retries left) or lets it stand as Failed.
func (d *Dispatcher) HandleWorkerExit(workerID string) {
	ids := d.tracker.ClearWorkerAssignments(workerID)
	for _, id := range ids {
		retried, err := d.tracker.MarkFailed(id, workerID, "worker process exited")
		if err != nil {
			logger.Warn("mark_failed for orphaned message failed", "id", id, "worker_id", workerID, "error", err)
			continue
		}
		if retried {
			d.requeue(id)
		} else {
			logger.Error("orphaned message failed permanently after worker exit", "id", id, "worker_id", workerID)
			d.forgetPending(id)
		}
	}
}

// RunTimeoutSweep runs the tracker's timeout scan on interval until ctx is
// cancelled, re-enqueuing the cached chunk for any candidate that still has
// retries left and forgetting the rest. Wires Settings.Tracker.CheckInterval.
func (d *Dispatcher) RunTimeoutSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range d.tracker.CheckTimeouts() {
				retried, err := d.tracker.HandleTimeout(id)
				if err != nil {
					logger.Debug("handle_timeout no-op", "id", id, "error", err)
					continue
				}
				if retried {
					d.requeue(id)
				} else {
					d.forgetPending(id)
				}
			}
		}
	}
}

// RunCleanupSweep purges terminal tracker entries older than maxAge on
// interval until ctx is cancelled. Wires Settings.Tracker.CleanupInterval
// and CleanupAge.
func (d *Dispatcher) RunCleanupSweep(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tracker.CleanupOld(maxAge)
		}
	}
}

// RunDepthSweep feeds the input queue's length into the queue monitor on
// interval until ctx is cancelled, so has_backpressure reflects live depth
// instead of staying permanently false.
func (d *Dispatcher) RunDepthSweep(ctx context.Context, interval time.Duration) {
	if d.qm == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.qm.UpdateDepth(d.input.Len())
		}
	}
}

// requeue re-pushes the cached chunk for id, if one is held. Used after a
// tracker transition decides a message should be retried.
func (d *Dispatcher) requeue(id uuid.UUID) {
	chunk, ok := d.pendingChunk(id)
	if !ok {
		logger.Warn("no cached chunk to re-enqueue", "id", id)
		return
	}
	if err := d.input.Push(chunk); err != nil {
		logger.Error("re-enqueue failed", "id", id, "error", err)
		if d.onFailure != nil {
			d.onFailure(chunk, err)
		}
		return
	}
	if d.qm != nil {
		d.qm.RecordIngress()
	}
	logger.Info("re-enqueued message", "id", id)
}

func (d *Dispatcher) pendingChunk(id uuid.UUID) (protocol.AudioChunk, bool) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	chunk, ok := d.pendingChunks[id]
	return chunk, ok
}

func (d *Dispatcher) forgetPending(id uuid.UUID) {
	d.pendingMu.Lock()
	delete(d.pendingChunks, id)
	d.pendingMu.Unlock()
}
