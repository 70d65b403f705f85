package controlplane

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"github.com/arach/transcribe-dispatch/internal/protocol"
)

// pollInterval bounds how long a blocked accept/read can delay noticing
// ctx cancellation, per the ≤100ms shutdown responsiveness requirement.
const pollInterval = 100 * time.Millisecond

// Listen binds a TCP control-plane socket at addr and feeds every decoded
// WorkerStatus frame to Ingest until ctx is cancelled. One connection per
// worker process is expected, but the loop accepts any number.
func (c *ControlPlaneMonitor) Listen(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	logger.Info("control plane listening", "addr", addr)

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
			logger.Error("control plane accept failed", "error", err)
			continue
		}
		go c.serveConn(ctx, conn)
	}
}

func (c *ControlPlaneMonitor) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		if ctx.Err() != nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(pollInterval))

		var status protocol.WorkerStatus
		err := protocol.ReadFrame(reader, &status)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue // poll boundary: re-check ctx and retry
			}
			return // connection closed or corrupt frame
		}

		c.Ingest(status)
	}
}
