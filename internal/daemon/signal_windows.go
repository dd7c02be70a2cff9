//go:build windows

package daemon

// listenSignals is a no-op on Windows; console control events are handled
// by the host's own process group semantics.
func (d *Daemon) listenSignals() {}
