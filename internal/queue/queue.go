// Package queue implements the typed FIFO transport (C1): a durable
// bbolt-backed backend and a volatile TCP-wire backend, behind one contract.
// Callers program to Queue[T]; the binding is chosen once at startup from
// configuration, per the "tagged capability" design note.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arach/transcribe-dispatch/internal/errors"
)

// Sentinel errors surfaced by Queue implementations.
var (
	ErrFull = errors.Newf("queue is full").
		Component("queue").
		Category(errors.CategoryQueue).
		Build()

	ErrClosed = errors.Newf("queue is closed").
			Component("queue").
			Category(errors.CategoryQueue).
			Build()
)

// IDFunc extracts the identity used for the uuid index from an item of type T.
type IDFunc[T any] func(item T) uuid.UUID

// Queue is the single contract both the durable and volatile backends
// satisfy. FIFO is by insertion order, ties broken by sequence number. An
// item popped is not visible to any other consumer (at-most-once delivery
// per pop).
type Queue[T any] interface {
	// Push enqueues item, assigning it the next monotonic sequence.
	// Returns ErrFull or ErrClosed as appropriate.
	Push(item T) error

	// Pop removes and returns the oldest item, or ok=false if empty.
	Pop() (item T, ok bool, err error)

	// PopWait polls Pop until an item is available or the deadline elapses
	// or ctx is cancelled.
	PopWait(ctx context.Context, deadline time.Duration) (item T, ok bool, err error)

	// Get looks up an item by id without removing it.
	Get(id uuid.UUID) (item T, ok bool)

	// Remove deletes an item by id. Returns whether anything was removed.
	Remove(id uuid.UUID) bool

	// Len returns the current number of items in the queue.
	Len() int

	// IsEmpty reports whether the queue currently holds no items.
	IsEmpty() bool

	// Clear removes all items.
	Clear() error

	// Close releases backend resources.
	Close() error
}

// popPollInterval governs how often PopWait retries a non-blocking Pop.
const popPollInterval = 20 * time.Millisecond

// pollForItem is the shared PopWait loop: poll `pop` at popPollInterval
// until it succeeds, ctx is cancelled, or deadline elapses.
func pollForItem[T any](ctx context.Context, deadline time.Duration, pop func() (T, bool, error)) (T, bool, error) {
	var zero T
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	ticker := time.NewTicker(popPollInterval)
	defer ticker.Stop()

	for {
		item, ok, err := pop()
		if err != nil {
			return zero, false, err
		}
		if ok {
			return item, true, nil
		}

		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-timer.C:
			return zero, false, nil
		case <-ticker.C:
			continue
		}
	}
}
