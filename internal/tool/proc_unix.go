//go:build !windows

package tool

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// prepare puts the tool in its own process group and makes context
// cancellation kill the whole group.
func prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		killTree(cmd)
		return nil
	}
}

// killTree sends SIGKILL to the tool's process group. ESRCH (group already
// gone) is expected and ignored.
func killTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}
