//go:build windows

package recorder

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// ffmpeg gets its own process group so CTRL_BREAK reaches it alone.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// CTRL_BREAK is the only deliverable console signal on windows; ffmpeg
// handles it like "q" and finalizes the mp4 index before exiting.
func interrupt(cmd *exec.Cmd) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(cmd.Process.Pid))
}
