//go:build !windows

package command

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr puts the render command in its own process group so
// a timeout kills any helpers it spawned too.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
