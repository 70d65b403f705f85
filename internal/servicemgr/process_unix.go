//go:build unix

package servicemgr

import (
	"os/exec"
	"syscall"
)

// setDetached puts the child in its own session so it survives this
// process exiting (a plain `servicemgr start` CLI invocation shouldn't
// take the worker down with it).
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
