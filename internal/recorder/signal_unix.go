//go:build !windows

package recorder

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func sysProcAttr() *syscall.SysProcAttr { return nil }

// ffmpeg treats the first SIGINT like "q": stop capturing and finalize the
// container before exiting.
func interrupt(cmd *exec.Cmd) error {
	return cmd.Process.Signal(unix.SIGINT)
}
