//go:build !windows

package daemon

import (
	"os"
	"os/signal"
	"syscall"
)

// listenSignals installs the shutdown signal listener: the first of
// SIGHUP, SIGINT, SIGTERM or SIGTSTP triggers a kill of all tracked
// processes followed by process exit 0. The goroutine is owned by the
// daemon and unwinds on Stop.
func (d *Daemon) listenSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case sig := <-ch:
			d.logger.Debug("termination signal received", "signal", sig.String())
			d.killAll()
			d.exit(0)
		case <-d.ctx.Done():
			signal.Stop(ch)
		}
	}()
}
