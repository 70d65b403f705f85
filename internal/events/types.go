// Package events provides an asynchronous event bus that decouples the
// dispatch components (queue, tracker, supervisor, control plane) from
// whatever is watching them (a GUI shell, a log sink, a metrics scrape).
package events

import (
	"time"
)

// Kind identifies what a Event represents, matching the UI event surface.
type Kind string

const (
	KindQueueHealth          Kind = "queue.health"
	KindWorkerStatus         Kind = "worker.status"
	KindAudioNotification    Kind = "audio.notification"
	KindTranscriptionComplete Kind = "transcription.complete"
	KindTranscriptionFailed  Kind = "transcription.failed"
)

// Event is a single notification published onto the bus. Unlike the error
// events this package started from, Event carries an explicit Kind so
// consumers can route without inspecting error internals; Err is nil for
// most kinds and set only when Kind is *.failed or the payload wraps a
// reported error.
type Event interface {
	// GetKind returns the event's routing key.
	GetKind() Kind

	// GetComponent returns the component that generated the event.
	GetComponent() string

	// GetPayload returns the kind-specific payload (a QueueHealth,
	// WorkerStatus, Transcript, or TranscriptionError from internal/protocol).
	GetPayload() any

	// GetContext returns additional context data.
	GetContext() map[string]any

	// GetTimestamp returns when the event occurred.
	GetTimestamp() time.Time

	// GetError returns the underlying error, or nil.
	GetError() error

	// GetMessage returns a human-readable summary.
	GetMessage() string

	// IsReported returns whether this event has already been delivered to a
	// telemetry hook.
	IsReported() bool

	// MarkReported marks the event as delivered.
	MarkReported()
}

// BasicEvent is a ready-to-publish Event implementation.
type BasicEvent struct {
	Kind      Kind
	Component string
	Payload   any
	Context   map[string]any
	Timestamp time.Time
	Err       error
	Message   string
	reported  bool
}

func (e *BasicEvent) GetKind() Kind               { return e.Kind }
func (e *BasicEvent) GetComponent() string        { return e.Component }
func (e *BasicEvent) GetPayload() any              { return e.Payload }
func (e *BasicEvent) GetContext() map[string]any  { return e.Context }
func (e *BasicEvent) GetTimestamp() time.Time     { return e.Timestamp }
func (e *BasicEvent) GetError() error              { return e.Err }
func (e *BasicEvent) GetMessage() string          { return e.Message }
func (e *BasicEvent) IsReported() bool            { return e.reported }
func (e *BasicEvent) MarkReported()               { e.reported = true }

// New builds a BasicEvent with the timestamp set to now.
func New(kind Kind, component string, payload any, message string) *BasicEvent {
	return &BasicEvent{
		Kind:      kind,
		Component: component,
		Payload:   payload,
		Timestamp: time.Now(),
		Message:   message,
	}
}

// EventConsumer represents a consumer that processes events.
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent processes a single event
	ProcessEvent(event Event) error

	// ProcessBatch processes multiple events at once (for efficiency)
	ProcessBatch(events []Event) error

	// SupportsBatching returns true if this consumer supports batch processing
	SupportsBatching() bool
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
