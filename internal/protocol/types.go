// Package protocol defines the message types carried across the queue and
// the wire codec used to (de)serialize them. Both queue backends (durable
// and volatile) exchange byte-identical encodings of these types.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

// AudioChunk is a unit of work submitted to the queue.
type AudioChunk struct {
	ID          uuid.UUID `msgpack:"id"`
	Samples     []float32 `msgpack:"samples"`     // 16 kHz mono f32, normalized to [-1, 1]
	SampleRate  int       `msgpack:"sample_rate"` // 16000 once normalized
	Channels    int       `msgpack:"channels"`    // 1 once normalized
	TimestampMs int64     `msgpack:"timestamp_ms"`
}

// Transcript is a unit of result mirroring the AudioChunk that produced it.
type Transcript struct {
	ID          uuid.UUID      `msgpack:"id"`
	Text        string         `msgpack:"text"`
	Confidence  float32        `msgpack:"confidence"`
	TimestampMs int64          `msgpack:"timestamp_ms"`
	Metadata    map[string]any `msgpack:"metadata,omitempty"`
}

// TranscriptionError is a failure result mirroring Transcript.ID.
type TranscriptionError struct {
	ID          uuid.UUID `msgpack:"id"`
	Message     string    `msgpack:"message"`
	ErrorCode   string    `msgpack:"error_code"`
	TimestampMs int64     `msgpack:"timestamp_ms"`
}

// Result is a worker's outcome for one AudioChunk: exactly one of
// Transcript or Error is set. It is the item type carried by the result
// queue so a single FIFO can hold both successes and failures.
type Result struct {
	ID         uuid.UUID           `msgpack:"id"`
	Transcript *Transcript         `msgpack:"transcript,omitempty"`
	Error      *TranscriptionError `msgpack:"error,omitempty"`
}

// MessageState is the tracker's state for a single in-flight message.
type MessageState int

const (
	StatePending MessageState = iota
	StateProcessing
	StateCompleted
	StateFailed
	StateRetrying
)

func (s MessageState) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateProcessing:
		return "Processing"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateRetrying:
		return "Retrying"
	default:
		return "Unknown"
	}
}

// MessageInfo is the tracker's per-message bookkeeping entry. WorkerID and
// LastError are only meaningful for the states that carry them (Processing,
// Completed, Failed); RetryAttempt is only meaningful for Retrying.
type MessageInfo struct {
	ID             uuid.UUID
	State          MessageState
	WorkerID       string
	LastError      string
	RetryAttempt   int
	FirstSeen      time.Time
	LastUpdated    time.Time
	SizeBytes      int
	RetryCount     int
	MaxRetries     int
	TimeoutSeconds int
}

// CanRetry reports whether another retry attempt is permitted.
func (m *MessageInfo) CanRetry() bool {
	return m.RetryCount < m.MaxRetries
}

// IsTimedOut reports whether a Processing message has exceeded its timeout.
func (m *MessageInfo) IsTimedOut(now time.Time) bool {
	if m.State != StateProcessing {
		return false
	}
	return now.Sub(m.LastUpdated) > time.Duration(m.TimeoutSeconds)*time.Second
}

// WorkerStatusKind identifies which event a WorkerStatus carries.
type WorkerStatusKind int

const (
	WorkerStarted WorkerStatusKind = iota
	WorkerMessageReceived
	WorkerMessageCompleted
	WorkerHeartbeat
	WorkerStopping
	WorkerError
)

// WorkerStatus is a control-plane event published by a worker process.
type WorkerStatus struct {
	WorkerID  string           `msgpack:"worker_id"`
	Timestamp time.Time        `msgpack:"timestamp"`
	Kind      WorkerStatusKind `msgpack:"kind"`

	// MessageReceived / MessageCompleted
	MessageID  uuid.UUID `msgpack:"message_id,omitempty"`
	Success    bool      `msgpack:"success,omitempty"`
	DurationMs int64     `msgpack:"duration_ms,omitempty"`

	// Heartbeat
	Processed int64 `msgpack:"processed,omitempty"`
	UptimeSec int64 `msgpack:"uptime_s,omitempty"`

	// Error
	ErrorMessage string `msgpack:"error_message,omitempty"`
}

// QueueHealth is the derived snapshot published by the queue monitor.
type QueueHealth struct {
	DepthEstimate   int       `msgpack:"depth_estimate"`
	IngressRate     float64   `msgpack:"ingress_rate"`
	EgressRate      float64   `msgpack:"egress_rate"`
	HasBackpressure bool      `msgpack:"has_backpressure"`
	ActiveWorkers   int       `msgpack:"active_workers"`
	LastUpdated     time.Time `msgpack:"last_updated"`
}

// IsHealthy reports overall queue health per spec §4.3.
func (h QueueHealth) IsHealthy() bool {
	return !h.HasBackpressure && h.ActiveWorkers > 0
}
