package events

import (
	"time"

	"github.com/arach/transcribe-dispatch/internal/errors"
)

// ErrorEventAdapter wraps an *errors.EnhancedError so it can flow through the
// event bus as an Event. This is how internal/errors reaches the bus without
// importing this package: the adapter is registered as the global event
// publisher and does the wrapping at the boundary.
type ErrorEventAdapter struct {
	err *errors.EnhancedError
}

func (a *ErrorEventAdapter) GetKind() Kind {
	switch errors.ErrorCategory(a.err.GetCategory()) {
	case errors.CategoryWorker:
		return KindWorkerStatus
	case errors.CategoryQueue:
		return KindQueueHealth
	default:
		return KindTranscriptionFailed
	}
}

func (a *ErrorEventAdapter) GetComponent() string       { return a.err.GetComponent() }
func (a *ErrorEventAdapter) GetPayload() any            { return a.err }
func (a *ErrorEventAdapter) GetContext() map[string]any { return a.err.GetContext() }
func (a *ErrorEventAdapter) GetTimestamp() time.Time    { return a.err.GetTimestamp() }
func (a *ErrorEventAdapter) GetError() error            { return a.err.GetError() }
func (a *ErrorEventAdapter) GetMessage() string         { return a.err.GetMessage() }
func (a *ErrorEventAdapter) IsReported() bool           { return a.err.IsReported() }
func (a *ErrorEventAdapter) MarkReported()              { a.err.MarkReported() }

// errorPublisher implements errors.EventPublisher by wrapping EnhancedError
// values in ErrorEventAdapter before forwarding to the EventBus.
type errorPublisher struct {
	bus *EventBus
}

func (p *errorPublisher) TryPublish(event any) bool {
	ee, ok := event.(*errors.EnhancedError)
	if !ok {
		return false
	}
	return p.bus.TryPublish(&ErrorEventAdapter{err: ee})
}

// WireErrorReporting registers the event bus as the errors package's async
// event publisher, so EnhancedError.Build() forwards to this bus instead of
// calling telemetry hooks synchronously.
func WireErrorReporting(bus *EventBus) {
	if bus == nil {
		return
	}
	errors.SetEventPublisher(&errorPublisher{bus: bus})
}
