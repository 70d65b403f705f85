package servicemgr

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallRejectsMissingBinary(t *testing.T) {
	m := New(Config{Name: "test", BinaryPath: "/nonexistent/binary", PIDFile: filepath.Join(t.TempDir(), "test.pid")})
	err := m.Install()
	assert.Error(t, err)
}

func TestInstallAcceptsExecutableBinary(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{Name: "test", BinaryPath: "/bin/sh", PIDFile: filepath.Join(dir, "sub", "test.pid")})
	require.NoError(t, m.Install())

	_, err := os.Stat(filepath.Join(dir, "sub"))
	assert.NoError(t, err, "Install should create the pid file's parent directory")
}

func TestStartStopLifecycle(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "test.pid")
	m := New(Config{
		Name:       "sleeper",
		BinaryPath: "/bin/sleep",
		Args:       []string{"5"},
		PIDFile:    pidFile,
	})

	pid, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	status := m.Status()
	assert.True(t, status.Running)
	assert.Equal(t, pid, status.PID)

	require.NoError(t, m.Stop())

	require.Eventually(t, func() bool { return !m.Status().Running }, time.Second, 10*time.Millisecond)
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "test.pid")
	m := New(Config{Name: "sleeper", BinaryPath: "/bin/sleep", Args: []string{"5"}, PIDFile: pidFile})

	pid1, err := m.Start(context.Background())
	require.NoError(t, err)

	pid2, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pid1, pid2)

	require.NoError(t, m.Stop())
}

func TestStatusUnhealthyWhenPortClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	pidFile := filepath.Join(t.TempDir(), "test.pid")
	m := New(Config{
		Name:          "sleeper",
		BinaryPath:    "/bin/sleep",
		Args:          []string{"5"},
		PIDFile:       pidFile,
		HealthPorts:   []int{port},
		HealthTimeout: 100 * time.Millisecond,
	})

	_, err = m.Start(context.Background())
	require.NoError(t, err)
	defer m.Stop()

	assert.False(t, m.Status().Healthy)
}

func TestStatusNotRunningWithNoPIDFile(t *testing.T) {
	m := New(Config{Name: "none", BinaryPath: "/bin/sleep", PIDFile: filepath.Join(t.TempDir(), "missing.pid")})
	assert.False(t, m.Status().Running)
}
