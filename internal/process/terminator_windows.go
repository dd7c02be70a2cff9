//go:build windows

package process

import (
	"errors"
	"os"
)

// handleClose terminates a Windows child by closing its process handle
// (TerminateProcess under the hood). Already-gone processes are common
// during rapid teardown and are not an error.
type handleClose struct{}

func newTerminator() terminator { return handleClose{} }

func (handleClose) terminate(p *os.Process) error {
	if p == nil || p.Pid <= 0 {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
