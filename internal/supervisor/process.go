package supervisor

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/arach/transcribe-dispatch/internal/errors"
	"github.com/arach/transcribe-dispatch/internal/logging"
)

var logger = logging.ForService("supervisor")

// workerProcess is a single spawn attempt for a worker slot. A fresh
// workerProcess is created on every restart — exec.Cmd is single-use.
type workerProcess struct {
	slotID    string
	cmd       *exec.Cmd
	running   atomic.Bool
	startTime time.Time

	waitOnce sync.Once
	waitDone chan struct{}
	waitErr  error
}

func newWorkerProcess(slotID string) *workerProcess {
	return &workerProcess{slotID: slotID}
}

func (p *workerProcess) start(ctx context.Context, cfg Config) error {
	cmd := exec.CommandContext(ctx, cfg.BinaryPath, cfg.Args...)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.New(err).
			Component("supervisor").
			Category(errors.CategoryCommandExecution).
			Context("operation", "create-stdout-pipe").
			Context("slot", p.slotID).
			Build()
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.New(err).
			Component("supervisor").
			Category(errors.CategoryCommandExecution).
			Context("operation", "create-stderr-pipe").
			Context("slot", p.slotID).
			Build()
	}

	if err := cmd.Start(); err != nil {
		return errors.New(err).
			Component("supervisor").
			Category(errors.CategoryCommandExecution).
			Context("operation", "start-worker").
			Context("slot", p.slotID).
			Context("binary", cfg.BinaryPath).
			Build()
	}

	p.cmd = cmd
	p.startTime = time.Now()
	p.running.Store(true)

	go p.pipeOutput(stdout, "stdout")
	go p.pipeOutput(stderr, "stderr")

	logger.Info("worker started", "slot", p.slotID, "pid", cmd.Process.Pid)
	return nil
}

func (p *workerProcess) pipeOutput(r io.ReadCloser, stream string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("worker output", "slot", p.slotID, "stream", stream, "line", scanner.Text())
	}
}

// waitChan returns a channel closed once the process exits, starting the
// wait goroutine on first call so at most one goroutine ever calls cmd.Wait.
func (p *workerProcess) waitChan() <-chan struct{} {
	p.waitOnce.Do(func() {
		p.waitDone = make(chan struct{})
		go func() {
			p.waitErr = p.cmd.Wait()
			p.running.Store(false)
			close(p.waitDone)
		}()
	})
	return p.waitDone
}

func (p *workerProcess) pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// stop signals graceful shutdown: TERM to the process group, wait up to
// graceTimeout, then KILL the group and sweep any descendants that escaped
// it. Safe to call on a process that already exited.
func (p *workerProcess) stop(graceTimeout time.Duration) {
	if p.cmd == nil || p.cmd.Process == nil || !p.running.Load() {
		return
	}
	pid := p.pid()

	if err := terminateProcessGroup(pid); err != nil {
		logger.Warn("term process group failed", "slot", p.slotID, "pid", pid, "error", err)
	}

	select {
	case <-p.waitChan():
		return
	case <-time.After(graceTimeout):
	}

	if err := killProcessGroup(pid); err != nil {
		logger.Error("kill process group failed", "slot", p.slotID, "pid", pid, "error", err)
	}
	killDescendants(pid)
	<-p.waitChan()
}

// killDescendants walks the process tree rooted at pid post-order and kills
// whatever is left, covering a child that escaped the process group.
func killDescendants(pid int) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	children, err := proc.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		killDescendants(int(child.Pid))
		if err := child.Kill(); err != nil {
			logger.Debug("descendant kill failed", "pid", child.Pid, "error", err)
		}
	}
}
