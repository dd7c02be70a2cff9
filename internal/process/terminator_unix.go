//go:build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// groupKill sends SIGKILL to the child's process group so helper processes
// spawned by the script die with it.
type groupKill struct{}

func newTerminator() terminator { return groupKill{} }

func (groupKill) terminate(p *os.Process) error {
	if p == nil || p.Pid <= 0 {
		return nil
	}
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	// Group kill can fail when the child changed its own group; fall back
	// to killing just the process.
	if kerr := p.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
		return kerr
	}
	return nil
}
