package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sleepConfig(count int) Config {
	return Config{
		WorkerCount:    count,
		BinaryPath:     "/bin/sh",
		Args:           []string{"-c", "sleep 5"},
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		StopTimeout:    2 * time.Second,
	}
}

func TestSupervisorStartStopLifecycle(t *testing.T) {
	s := New(sleepConfig(2))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.ActiveCount() == 2 }, time.Second, 10*time.Millisecond)

	// Start again is a no-op, not an error.
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 2, s.ActiveCount())

	require.NoError(t, s.Stop())
	assert.Equal(t, 0, s.ActiveCount())

	// Stop again is a no-op.
	require.NoError(t, s.Stop())
}

func TestSupervisorRestartsFailingWorkerUntilMaxRestarts(t *testing.T) {
	restarts := 0
	cfg := Config{
		WorkerCount:       1,
		BinaryPath:        "/bin/sh",
		Args:              []string{"-c", "exit 1"},
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxRestarts:       2,
		StopTimeout:       time.Second,
	}
	s := New(cfg, WithRestartHook(func(slotID string) { restarts++ }))

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.slots[0].dead
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, s.ActiveCount())
	assert.GreaterOrEqual(t, restarts, 2)

	require.NoError(t, s.Stop())
}

func TestSupervisorFiresExitHookBeforeRestart(t *testing.T) {
	var exits, restarts int
	cfg := Config{
		WorkerCount:       1,
		BinaryPath:        "/bin/sh",
		Args:              []string{"-c", "exit 1"},
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxRestarts:       2,
		StopTimeout:       time.Second,
	}
	s := New(cfg,
		WithExitHook(func(slotID string) { exits++ }),
		WithRestartHook(func(slotID string) { restarts++ }),
	)

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.slots[0].dead
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, restarts, exits)
	assert.GreaterOrEqual(t, exits, 2)

	require.NoError(t, s.Stop())
}

func TestSupervisorMaxRestartsZeroParksOnFirstExit(t *testing.T) {
	cfg := Config{
		WorkerCount:    1,
		BinaryPath:     "/bin/sh",
		Args:           []string{"-c", "exit 1"},
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		MaxRestarts:    0,
		StopTimeout:    time.Second,
	}
	var restarts int
	s := New(cfg, WithRestartHook(func(slotID string) { restarts++ }))

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.slots[0].dead
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, restarts)

	require.NoError(t, s.Stop())
}

func TestNextWorkerRoundRobin(t *testing.T) {
	s := New(Config{WorkerCount: 3, BinaryPath: "/bin/true"})

	got := []string{s.NextWorker(), s.NextWorker(), s.NextWorker(), s.NextWorker()}
	assert.Equal(t, []string{"worker-0", "worker-1", "worker-2", "worker-0"}, got)
}

func TestResetBackoffClearsSlotState(t *testing.T) {
	s := New(Config{WorkerCount: 1, BinaryPath: "/bin/true", InitialBackoff: 200 * time.Millisecond})
	sl := s.slots[0]
	sl.count = 5
	sl.delay = 10 * time.Second

	s.ResetBackoff("worker-0")

	assert.Equal(t, 0, sl.count)
	assert.Equal(t, 200*time.Millisecond, sl.delay)

	// Unknown slot IDs are a no-op, not a panic.
	s.ResetBackoff("does-not-exist")
}

func TestProbeHealthRejectsClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s := New(Config{WorkerCount: 1, HealthPorts: []int{port}, HealthTimeout: 100 * time.Millisecond})
	assert.False(t, s.ProbeHealth())
}

func TestProbeHealthAcceptsOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	s := New(Config{WorkerCount: 1, HealthPorts: []int{port}, HealthTimeout: 500 * time.Millisecond})
	assert.True(t, s.ProbeHealth())
}
