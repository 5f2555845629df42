//go:build unix

package jobs

import (
	"os/exec"
	"syscall"
)

// setProcessGroup runs the command in its own process group and makes
// context cancellation kill the whole group, so a timed-out job cannot
// leave descendants holding the output pipes.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
