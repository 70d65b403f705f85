// Package servicemgr installs and supervises the worker binary as a
// background service: writing its config, starting/stopping it, and
// reporting {running, pid, healthy} status. It works alongside, not on top
// of, internal/supervisor, for callers (CLI commands, a future platform
// service descriptor) that want simple install/start/stop/status verbs
// rather than the supervisor's full restart-loop API.
package servicemgr

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/arach/transcribe-dispatch/internal/errors"
	"github.com/arach/transcribe-dispatch/internal/logging"
)

var logger = logging.ForService("servicemgr")

// Config describes the service to manage.
type Config struct {
	Name          string        // service name, used for logging and the pid file name
	BinaryPath    string        // path to the worker binary
	Args          []string      // arguments passed on start
	PIDFile       string        // path the running PID is recorded to
	HealthPorts   []int         // ports that must all be open for the service to be "healthy"
	HealthTimeout time.Duration // per-port dial timeout during a status probe
}

// Status is the result of a status check.
type Status struct {
	Running bool
	PID     int
	Healthy bool
	Error   string
}

// Manager is a thin process lifecycle bridge: install writes the PID file's
// parent directory structure, start/stop manage a single long-running
// process (not a restart-supervised pool — that's internal/supervisor's
// job), and status reports on it.
type Manager struct {
	cfg Config
}

// New constructs a Manager for cfg.
func New(cfg Config) *Manager {
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = 500 * time.Millisecond
	}
	return &Manager{cfg: cfg}
}

// Install ensures the PID file's directory exists. It does not write a
// platform service descriptor (launchd/systemd unit) — Non-goal per
// spec.md: "no packaging/signing/installer" — but does validate the
// binary is present and executable so Start fails fast with a clear error
// instead of a generic exec.Command failure.
func (m *Manager) Install() error {
	if m.cfg.PIDFile != "" {
		if err := os.MkdirAll(filepath.Dir(m.cfg.PIDFile), 0o755); err != nil {
			return errors.New(err).
				Component("servicemgr").
				Category(errors.CategoryFileIO).
				Context("operation", "install").
				Context("pid_file", m.cfg.PIDFile).
				Build()
		}
	}

	info, err := os.Stat(m.cfg.BinaryPath)
	if err != nil {
		return errors.New(err).
			Component("servicemgr").
			Category(errors.CategoryConfiguration).
			Context("operation", "install").
			Context("binary", m.cfg.BinaryPath).
			Build()
	}
	if info.Mode()&0o111 == 0 {
		return errors.Newf("binary is not executable: %s", m.cfg.BinaryPath).
			Component("servicemgr").
			Category(errors.CategoryConfiguration).
			Context("binary", m.cfg.BinaryPath).
			Build()
	}

	logger.Info("service installed", "name", m.cfg.Name, "binary", m.cfg.BinaryPath)
	return nil
}

// Start spawns the binary detached from this process and records its PID.
// Returns immediately once the process has started; it does not wait for
// the service to become healthy (use Status for that).
func (m *Manager) Start(ctx context.Context) (int, error) {
	if running, pid, _ := m.readPIDFile(); running {
		logger.Info("service already running", "name", m.cfg.Name, "pid", pid)
		return pid, nil
	}

	proc, err := startDetached(ctx, m.cfg.BinaryPath, m.cfg.Args)
	if err != nil {
		return 0, errors.New(err).
			Component("servicemgr").
			Category(errors.CategoryCommandExecution).
			Context("operation", "start").
			Context("name", m.cfg.Name).
			Build()
	}

	if err := m.writePIDFile(proc.Pid); err != nil {
		logger.Warn("failed to write pid file", "name", m.cfg.Name, "error", err)
	}

	logger.Info("service started", "name", m.cfg.Name, "pid", proc.Pid)
	return proc.Pid, nil
}

// Stop signals the recorded PID to terminate and removes the PID file.
func (m *Manager) Stop() error {
	running, pid, err := m.readPIDFile()
	if err != nil {
		return err
	}
	if !running {
		return nil
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		// Process already gone; clean up the stale PID file.
		_ = os.Remove(m.cfg.PIDFile)
		return nil
	}
	if err := proc.Terminate(); err != nil {
		logger.Warn("terminate failed, escalating to kill", "name", m.cfg.Name, "pid", pid, "error", err)
		if err := proc.Kill(); err != nil {
			return errors.New(err).
				Component("servicemgr").
				Category(errors.CategoryCommandExecution).
				Context("operation", "stop").
				Context("pid", strconv.Itoa(pid)).
				Build()
		}
	}

	_ = os.Remove(m.cfg.PIDFile)
	logger.Info("service stopped", "name", m.cfg.Name, "pid", pid)
	return nil
}

// Status reports {running, pid, healthy}. healthy requires the recorded
// PID to be alive AND every configured health port to accept a connection
// within HealthTimeout.
func (m *Manager) Status() Status {
	running, pid, err := m.readPIDFile()
	if err != nil || !running {
		return Status{Running: false}
	}

	healthy := true
	for _, port := range m.cfg.HealthPorts {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		conn, err := net.DialTimeout("tcp", addr, m.cfg.HealthTimeout)
		if err != nil {
			healthy = false
			break
		}
		conn.Close()
	}

	return Status{Running: true, PID: pid, Healthy: healthy}
}

// readPIDFile reports whether the recorded PID names a live process.
func (m *Manager) readPIDFile() (running bool, pid int, err error) {
	if m.cfg.PIDFile == "" {
		return false, 0, nil
	}
	data, err := os.ReadFile(m.cfg.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, errors.New(err).
			Component("servicemgr").
			Category(errors.CategoryFileIO).
			Context("operation", "read-pid-file").
			Build()
	}

	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil {
		return false, 0, nil
	}

	alive, _ := process.PidExists(int32(pid))
	return alive, pid, nil
}

func (m *Manager) writePIDFile(pid int) error {
	if m.cfg.PIDFile == "" {
		return nil
	}
	return os.WriteFile(m.cfg.PIDFile, []byte(strconv.Itoa(pid)), 0o644)
}
