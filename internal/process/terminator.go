package process

import "os"

// terminator is the platform-conditional kill strategy. Unix kills the
// whole process group with SIGKILL; Windows closes the process handle.
// The variant is selected once at build time, not branched inline.
type terminator interface {
	terminate(p *os.Process) error
}
