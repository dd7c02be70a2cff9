//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr starts the child in its own process group; Windows
// console control events are delivered per group.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
