//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child in a new process group so a TERM/KILL to
// -pid reaches it and every descendant that didn't escape the group.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcessGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGTERM)
}

func killProcessGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}
