package servicemgr

import (
	"context"
	"os"
	"os/exec"
)

// startDetached spawns cmd without attaching this process's stdio, and
// without waiting for it — the caller tracks it by PID via the PID file,
// not by holding the *exec.Cmd.
func startDetached(ctx context.Context, binaryPath string, args []string) (*os.Process, error) {
	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setDetached(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Process, nil
}
