//go:build !unix

package servicemgr

import "os/exec"

func setDetached(cmd *exec.Cmd) {}
