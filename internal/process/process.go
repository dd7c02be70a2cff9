package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/arlert/devmon/internal/script"
)

// Status is the termination status of a supervised process.
type Status struct {
	Success bool `json:"success"`
}

// Proc is a live child process handle. It exposes exactly what the
// supervision core needs: the pid, a best-effort forced termination, and a
// single await of the exit status. The process runs in its own group on
// Unix so Terminate takes down grandchildren too.
type Proc struct {
	cmd  *exec.Cmd
	term terminator

	mu        sync.Mutex
	reaped    bool
	outCloser io.WriteCloser
	errCloser io.WriteCloser
}

// Start spawns one command of a script chain. name is the script name and
// is used only for log file naming. When no log destination is configured
// the child inherits the supervisor's stdio.
func Start(name string, args []string, o script.Options) (*Proc, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	// ok: intentional execution of the configured script command
	// #nosec G204
	cmd := exec.Command(args[0], args[1:]...)
	if o.WorkDir != "" {
		cmd.Dir = o.WorkDir
	}
	if len(o.Env) > 0 {
		cmd.Env = append(os.Environ(), o.Env...)
	}
	configureSysProcAttr(cmd)

	p := &Proc{cmd: cmd, term: newTerminator()}
	if o.Log.Configured() {
		if o.Log.Dir != "" {
			_ = os.MkdirAll(o.Log.Dir, 0o750)
		}
		outW, errW, err := o.Log.Writers(name)
		if err != nil {
			return nil, err
		}
		p.outCloser, p.errCloser = outW, errW
		cmd.Stdout = stdioOr(outW)
		cmd.Stderr = stdioOr(errW)
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		p.closeWriters()
		return nil, fmt.Errorf("start %q: %w", args[0], err)
	}
	return p, nil
}

func stdioOr(w io.WriteCloser) io.Writer {
	if w != nil {
		return w
	}
	null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	return null
}

// PID returns the child's process id.
func (p *Proc) PID() int { return p.cmd.Process.Pid }

// Terminate forcibly ends the process through the platform terminator.
// It is best-effort and never errors for an already-dead process.
func (p *Proc) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.term.terminate(p.cmd.Process)
}

// Wait blocks until the process terminates and returns its status. A
// non-zero exit is a valid status, not an error; an error means the status
// could not be retrieved (the handle was already reaped or invalidated).
// Wait may be called at most once per handle.
func (p *Proc) Wait() (Status, error) {
	p.mu.Lock()
	if p.reaped {
		p.mu.Unlock()
		return Status{}, errors.New("process already reaped")
	}
	p.reaped = true
	p.mu.Unlock()

	err := p.cmd.Wait()
	p.closeWriters()
	if err == nil {
		return Status{Success: true}, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return Status{Success: false}, nil
	}
	return Status{}, err
}

func (p *Proc) closeWriters() {
	p.mu.Lock()
	if p.outCloser != nil {
		_ = p.outCloser.Close()
		p.outCloser = nil
	}
	if p.errCloser != nil {
		_ = p.errCloser.Close()
		p.errCloser = nil
	}
	p.mu.Unlock()
}
