// Package controlplane consumes WorkerStatus events from workers and derives
// health, history, and aggregate counters. It never drives restarts —
// WorkerSupervisor decides that from the health this package publishes.
package controlplane

import (
	"sync"
	"time"

	"github.com/arach/transcribe-dispatch/internal/events"
	"github.com/arach/transcribe-dispatch/internal/logging"
	"github.com/arach/transcribe-dispatch/internal/protocol"
	"github.com/arach/transcribe-dispatch/internal/queuemonitor"
	"github.com/arach/transcribe-dispatch/internal/tracker"
)

var logger = logging.ForService("controlplane")

// MaxStatusHistory bounds the in-memory ring of recent WorkerStatus events.
const MaxStatusHistory = 100

// HeartbeatHealthyWindow is the max age of the last heartbeat before the
// monitor reports the control plane unhealthy.
const HeartbeatHealthyWindow = 60 * time.Second

// Health is the control-plane-derived health snapshot.
type Health struct {
	IsHealthy         bool
	LastHeartbeatAge  time.Duration
	ActiveWorkers     int
	MessagesProcessed uint64
	Errors            uint64
	LastError         string
	UptimeSeconds     int64
}

// ControlPlaneMonitor maintains a ring of recent WorkerStatus events and
// aggregate counters, and relays message lifecycle events to the tracker and
// queue monitor. All state is guarded by a single RW lock.
type ControlPlaneMonitor struct {
	mu sync.RWMutex

	history      []protocol.WorkerStatus
	historyHead  int
	historyCount int

	lastHeartbeat     time.Time
	activeWorkers     int
	messagesProcessed uint64
	errorsCount       uint64
	lastError         string
	uptimeSeconds     int64

	tracker *tracker.MessageTracker
	qm      *queuemonitor.QueueMonitor

	clock func() time.Time

	onError   func()
	onMessage func(workerID, status string)
}

// Option customizes a ControlPlaneMonitor at construction.
type Option func(*ControlPlaneMonitor)

// WithErrorHook registers a callback invoked every time a WorkerError event
// is ingested, so callers can record a metric without this package
// importing observability directly.
func WithErrorHook(fn func()) Option {
	return func(c *ControlPlaneMonitor) { c.onError = fn }
}

// WithMessageHook registers a callback invoked every time a worker's message
// reaches a terminal outcome ("completed" or "failed"), labeled by worker id.
func WithMessageHook(fn func(workerID, status string)) Option {
	return func(c *ControlPlaneMonitor) { c.onMessage = fn }
}

// New constructs a ControlPlaneMonitor wired to a tracker and queue monitor.
func New(tr *tracker.MessageTracker, qm *queuemonitor.QueueMonitor, opts ...Option) *ControlPlaneMonitor {
	c := &ControlPlaneMonitor{
		history: make([]protocol.WorkerStatus, MaxStatusHistory),
		tracker: tr,
		qm:      qm,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest processes one WorkerStatus event: appends to history, updates
// aggregate counters, and relays the event to the tracker/queue monitor per
// the event-handling table.
func (c *ControlPlaneMonitor) Ingest(status protocol.WorkerStatus) {
	c.mu.Lock()
	c.appendHistoryLocked(status)
	c.mu.Unlock()

	switch status.Kind {
	case protocol.WorkerHeartbeat:
		c.mu.Lock()
		c.lastHeartbeat = c.clock()
		c.messagesProcessed = uint64(status.Processed)
		c.uptimeSeconds = status.UptimeSec
		c.mu.Unlock()
		logger.Debug("heartbeat", "worker_id", status.WorkerID, "processed", status.Processed)

	case protocol.WorkerStarted:
		c.mu.Lock()
		c.lastHeartbeat = c.clock()
		c.activeWorkers++
		active := c.activeWorkers
		c.mu.Unlock()
		if c.qm != nil {
			c.qm.UpdateWorkers(active)
		}
		logger.Info("worker started", "worker_id", status.WorkerID)

	case protocol.WorkerMessageReceived:
		if c.tracker != nil {
			if err := c.tracker.AssignToWorker(status.MessageID, status.WorkerID); err != nil {
				logger.Warn("assign_to_worker failed", "id", status.MessageID, "worker_id", status.WorkerID, "error", err)
			}
		}
		if c.qm != nil {
			c.qm.RecordEgress()
		}
		logger.Debug("message received", "worker_id", status.WorkerID, "id", status.MessageID)

	case protocol.WorkerMessageCompleted:
		c.handleMessageCompleted(status)

	case protocol.WorkerStopping:
		c.mu.Lock()
		if c.activeWorkers > 0 {
			c.activeWorkers--
		}
		active := c.activeWorkers
		c.mu.Unlock()
		if c.qm != nil {
			c.qm.UpdateWorkers(active)
		}
		logger.Info("worker stopping", "worker_id", status.WorkerID)

	case protocol.WorkerError:
		c.mu.Lock()
		c.errorsCount++
		c.lastError = status.ErrorMessage
		c.mu.Unlock()
		logger.Error("worker reported error", "worker_id", status.WorkerID, "message", status.ErrorMessage)
		events.GetEventBus().TryPublish(events.New(events.KindWorkerStatus, "controlplane", status, status.ErrorMessage))
		if c.onError != nil {
			c.onError()
		}
	}
}

func (c *ControlPlaneMonitor) handleMessageCompleted(status protocol.WorkerStatus) {
	if c.tracker == nil {
		return
	}
	if status.Success {
		if err := c.tracker.MarkCompleted(status.MessageID, status.WorkerID); err != nil {
			logger.Warn("mark_completed failed", "id", status.MessageID, "error", err)
		}
		logger.Debug("message completed", "worker_id", status.WorkerID, "id", status.MessageID, "duration_ms", status.DurationMs)
		if c.onMessage != nil {
			c.onMessage(status.WorkerID, "completed")
		}
		return
	}
	if _, err := c.tracker.MarkFailed(status.MessageID, status.WorkerID, "Processing failed"); err != nil {
		logger.Warn("mark_failed failed", "id", status.MessageID, "error", err)
	}
	if c.onMessage != nil {
		c.onMessage(status.WorkerID, "failed")
	}
}

// appendHistoryLocked writes status into the ring buffer. Caller holds the lock.
func (c *ControlPlaneMonitor) appendHistoryLocked(status protocol.WorkerStatus) {
	c.history[c.historyHead] = status
	c.historyHead = (c.historyHead + 1) % MaxStatusHistory
	if c.historyCount < MaxStatusHistory {
		c.historyCount++
	}
}

// History returns the most recent events, oldest first.
func (c *ControlPlaneMonitor) History() []protocol.WorkerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]protocol.WorkerStatus, c.historyCount)
	start := (c.historyHead - c.historyCount + MaxStatusHistory) % MaxStatusHistory
	for i := 0; i < c.historyCount; i++ {
		out[i] = c.history[(start+i)%MaxStatusHistory]
	}
	return out
}

// Health derives the current control-plane health snapshot.
// is_healthy ≡ last_heartbeat_age < HeartbeatHealthyWindow.
func (c *ControlPlaneMonitor) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var age time.Duration
	if !c.lastHeartbeat.IsZero() {
		age = c.clock().Sub(c.lastHeartbeat)
	} else {
		age = HeartbeatHealthyWindow + time.Second // no heartbeat yet: unhealthy
	}

	return Health{
		IsHealthy:         age < HeartbeatHealthyWindow,
		LastHeartbeatAge:  age,
		ActiveWorkers:     c.activeWorkers,
		MessagesProcessed: c.messagesProcessed,
		Errors:            c.errorsCount,
		LastError:         c.lastError,
		UptimeSeconds:     c.uptimeSeconds,
	}
}
