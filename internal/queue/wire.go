package queue

import (
	"bufio"
	"container/list"
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arach/transcribe-dispatch/internal/errors"
	"github.com/arach/transcribe-dispatch/internal/logging"
	"github.com/arach/transcribe-dispatch/internal/protocol"
)

var wireLogger = logging.ForService("queue.wire")

// WireQueue is the volatile backend: an in-memory FIFO exposed over a pair
// of loopback TCP sockets (push in, pull out), matching the wire protocol in
// §6. It holds no durability guarantee across restart. Because remote
// producers/consumers can't observe its depth directly over the wire, depth
// for those parties is estimated by the queue monitor's rate differential;
// WireQueue itself reports the exact in-memory length to local callers.
type WireQueue[T any] struct {
	mu     sync.Mutex
	items  *list.List // of wireEntry[T]
	byID   map[uuid.UUID]*list.Element
	idFunc IDFunc[T]
	maxLen int

	closed bool
}

type wireEntry[T any] struct {
	id   uuid.UUID
	item T
}

// NewWire constructs an in-memory volatile queue. maxLen of 0 means unbounded.
func NewWire[T any](idFunc IDFunc[T], maxLen int) *WireQueue[T] {
	return &WireQueue[T]{
		items:  list.New(),
		byID:   make(map[uuid.UUID]*list.Element),
		idFunc: idFunc,
		maxLen: maxLen,
	}
}

func (q *WireQueue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.maxLen > 0 && q.items.Len() >= q.maxLen {
		return ErrFull
	}

	id := q.idFunc(item)
	el := q.items.PushBack(wireEntry[T]{id: id, item: item})
	q.byID[id] = el
	return nil
}

func (q *WireQueue[T]) Pop() (T, bool, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return zero, false, ErrClosed
	}

	front := q.items.Front()
	if front == nil {
		return zero, false, nil
	}
	entry := front.Value.(wireEntry[T])
	q.items.Remove(front)
	delete(q.byID, entry.id)
	return entry.item, true, nil
}

func (q *WireQueue[T]) PopWait(ctx context.Context, deadline time.Duration) (T, bool, error) {
	return pollForItem(ctx, deadline, q.Pop)
}

func (q *WireQueue[T]) Get(id uuid.UUID) (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()

	el, ok := q.byID[id]
	if !ok {
		return zero, false
	}
	return el.Value.(wireEntry[T]).item, true
}

func (q *WireQueue[T]) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	el, ok := q.byID[id]
	if !ok {
		return false
	}
	q.items.Remove(el)
	delete(q.byID, id)
	return true
}

func (q *WireQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *WireQueue[T]) IsEmpty() bool {
	return q.Len() == 0
}

func (q *WireQueue[T]) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Init()
	q.byID = make(map[uuid.UUID]*list.Element)
	return nil
}

func (q *WireQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// ServePush accepts connections on addr and hands every decoded frame to
// onItem, until ctx is cancelled. One frame per AudioChunk/Transcript per
// the wire protocol; a push socket never replies. If onItem is nil, items
// are pushed directly onto the queue; callers that need every wire-ingested
// item to pass through additional bookkeeping (tracking, ingress counters)
// should pass a hook that does so before/instead of calling q.Push.
func (q *WireQueue[T]) ServePush(ctx context.Context, addr string, onItem func(item T) error) error {
	if onItem == nil {
		onItem = q.Push
	}
	return q.serve(ctx, addr, func(conn net.Conn) {
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			if ctx.Err() != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pollInterval))

			var item T
			if err := protocol.ReadFrame(reader, &item); err != nil {
				if isTimeout(err) {
					continue
				}
				return
			}
			if err := onItem(item); err != nil {
				wireLogger.Warn("push from wire rejected", "error", err)
			}
		}
	})
}

// ServePull accepts connections on addr and serves each one in a loop that
// blocks (with poll-interval wakeups) waiting for an item, then writes it to
// the peer as one frame. Nothing is read from the peer.
func (q *WireQueue[T]) ServePull(ctx context.Context, addr string) error {
	return q.serve(ctx, addr, func(conn net.Conn) {
		defer conn.Close()
		for {
			item, ok, err := q.PopWait(ctx, pollInterval)
			if err != nil {
				return
			}
			if !ok {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := protocol.WriteFrame(conn, item); err != nil {
				// Peer is gone; the item is lost for this connection (volatile
				// backend, no restart durability) — log and move on.
				wireLogger.Warn("pull write failed, dropping connection", "error", err)
				return
			}
		}
	})
}

func (q *WireQueue[T]) serve(ctx context.Context, addr string, handle func(net.Conn)) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Newf("listen on %s", addr).
			Component("queue.wire").
			Category(errors.CategoryNetwork).
			Build()
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wireLogger.Error("accept failed", "addr", addr, "error", err)
			continue
		}
		go handle(conn)
	}
}

const pollInterval = 100 * time.Millisecond

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
