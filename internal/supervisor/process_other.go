//go:build !unix

package supervisor

import "os/exec"

// setProcessGroup is a no-op outside Unix; the platform lacks process
// groups, so termination falls back to killing the single process.
func setProcessGroup(cmd *exec.Cmd) {}

func terminateProcessGroup(pid int) error {
	return nil
}

func killProcessGroup(pid int) error {
	return nil
}
