package queue

import (
	"bufio"
	"net"
	"time"

	"github.com/arach/transcribe-dispatch/internal/errors"
	"github.com/arach/transcribe-dispatch/internal/protocol"
)

// PushClient is a thin network adapter for a process that is not the broker
// itself (the audio capture process, or a remote worker) to push items onto
// a WireQueue's push socket.
type PushClient[T any] struct {
	conn net.Conn
}

// DialPush connects to a WireQueue's push listener.
func DialPush[T any](addr string) (*PushClient[T], error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, errors.Newf("dial push socket at %s", addr).
			Component("queue.wire").
			Category(errors.CategoryNetwork).
			Build()
	}
	return &PushClient[T]{conn: conn}, nil
}

// Push writes one frame to the broker.
func (c *PushClient[T]) Push(item T) error {
	return protocol.WriteFrame(c.conn, item)
}

// Close closes the underlying connection.
func (c *PushClient[T]) Close() error {
	return c.conn.Close()
}

// PullClient is a thin network adapter for a worker process to pull items
// from a WireQueue's pull socket.
type PullClient[T any] struct {
	conn   net.Conn
	reader *bufio.Reader
}

// DialPull connects to a WireQueue's pull listener.
func DialPull[T any](addr string) (*PullClient[T], error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, errors.Newf("dial pull socket at %s", addr).
			Component("queue.wire").
			Category(errors.CategoryNetwork).
			Build()
	}
	return &PullClient[T]{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Pop blocks for one frame from the broker.
func (c *PullClient[T]) Pop() (T, error) {
	var item T
	err := protocol.ReadFrame(c.reader, &item)
	return item, err
}

// Close closes the underlying connection.
func (c *PullClient[T]) Close() error {
	return c.conn.Close()
}
