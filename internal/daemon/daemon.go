package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arlert/devmon/internal/history"
	"github.com/arlert/devmon/internal/metrics"
	"github.com/arlert/devmon/internal/process"
	"github.com/arlert/devmon/internal/script"
	"github.com/arlert/devmon/internal/watcher"
)

// Handle is what the core needs from a live child process: its pid, a
// best-effort forced termination, and a single await of the exit status.
// *process.Proc is the production implementation.
type Handle interface {
	PID() int
	Terminate() error
	Wait() (process.Status, error)
}

// Command is one step of a resolved chain together with its spawn
// capability. Spawn produces a fresh live handle each time it is invoked.
type Command struct {
	Args    []string
	Options script.Options
	Spawn   func() (Handle, error)
}

// Source resolves a script name into its ordered command chain. It must
// produce a fresh chain on every call; reloads call it again.
type Source func(name string) ([]Command, error)

// NewSource adapts a script.Resolver into a Source whose commands spawn
// real child processes.
func NewSource(r *script.Resolver) Source {
	return func(name string) ([]Command, error) {
		cmds, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		out := make([]Command, len(cmds))
		for i, c := range cmds {
			c := c
			out[i] = Command{
				Args:    c.Args,
				Options: c.Options,
				Spawn: func() (Handle, error) {
					return process.Start(name, c.Args, c.Options)
				},
			}
		}
		return out, nil
	}
}

// Config is the small typed configuration the core reads.
type Config struct {
	Script     string
	Fullscreen bool
	WatchPaths []string
	WatchExts  []string
}

// Snapshot is a point-in-time view of the daemon for the status API.
type Snapshot struct {
	Script    string    `json:"script"`
	PID       int       `json:"pid"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Reloads   int       `json:"reloads"`
	Watching  bool      `json:"watching"`
}

// Daemon supervises one script's command chain: it executes the chain,
// daemonizes the last command, and restarts it on file changes. Its sole
// output is the event stream returned by Events; all failures are absorbed,
// logged, and converted into supervisory decisions.
//
// A Daemon is single-use. Construct a new one to restart from scratch.
type Daemon struct {
	cfg    Config
	source Source
	feed   <-chan watcher.Batch
	logger *slog.Logger
	hist   history.Sink
	screen io.Writer
	exit   func(code int)

	reg    *registry
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool

	mu   sync.Mutex
	snap Snapshot
}

// Option configures optional daemon collaborators.
type Option func(*Daemon)

// WithHistory records lifecycle events to the given sink.
func WithHistory(s history.Sink) Option {
	return func(d *Daemon) { d.hist = s }
}

// WithExitFunc replaces os.Exit for the shutdown signal path.
func WithExitFunc(f func(code int)) Option {
	return func(d *Daemon) { d.exit = f }
}

// WithScreen replaces the writer used to clear the display in fullscreen
// mode.
func WithScreen(w io.Writer) Option {
	return func(d *Daemon) { d.screen = w }
}

func New(cfg Config, source Source, feed <-chan watcher.Batch, logger *slog.Logger, opts ...Option) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:    cfg,
		source: source,
		feed:   feed,
		logger: logger,
		screen: os.Stdout,
		exit:   os.Exit,
		reg:    newRegistry(),
		events: make(chan Event),
		ctx:    ctx,
		cancel: cancel,
	}
	d.snap = Snapshot{Script: cfg.Script}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Events starts supervision and returns the lifecycle stream. The stream
// carries start, reload and exit events and closes when iteration
// terminates. Events may be called once per Daemon.
func (d *Daemon) Events() (<-chan Event, error) {
	if !d.started.CompareAndSwap(false, true) {
		return nil, errors.New("daemon already started")
	}
	d.wg.Add(1)
	go d.run()
	return d.events, nil
}

// Stop tears the daemon down: kills tracked processes, cancels the
// internal tasks and waits for them. Safe to call concurrently with a
// consumer draining Events.
func (d *Daemon) Stop() {
	d.cancel()
	d.killAll()
	d.wg.Wait()
}

// Snapshot returns the current supervision state.
func (d *Daemon) Snapshot() Snapshot {
	d.mu.Lock()
	s := d.snap
	d.mu.Unlock()
	return s
}

func (d *Daemon) run() {
	defer d.wg.Done()
	defer close(d.events)

	if !d.emit(Event{Type: EventStart}) {
		return
	}
	opts, err := d.execute()
	if err != nil {
		d.logger.Error("script failed to start", "script", d.cfg.Script, "err", err)
	}
	d.listenSignals()

	if !opts.Watch {
		d.setWatching(false)
		d.record(history.EventExit, 0, "")
		d.emit(Event{Type: EventExit})
		return
	}
	d.setWatching(true)

	for {
		select {
		case <-d.ctx.Done():
			return
		case batch, ok := <-d.feed:
			if !ok {
				// Host watcher closed; end the stream gracefully.
				d.record(history.EventExit, 0, "")
				d.emit(Event{Type: EventExit})
				return
			}
			if !batch.HasModify() {
				continue
			}
			if !d.emit(Event{Type: EventReload, Change: batch}) {
				return
			}
			d.reload(batch)
		}
	}
}

// execute runs the chain strictly in order: every command but the last is
// awaited to completion, the last is registered and monitored without
// waiting. It returns the last command's options, which are authoritative
// for the run; an empty chain yields non-watching defaults.
func (d *Daemon) execute() (script.Options, error) {
	cmds, err := d.source(d.cfg.Script)
	if err != nil || len(cmds) == 0 {
		return script.Options{}, err
	}
	opts := cmds[len(cmds)-1].Options
	for i, c := range cmds {
		h, err := c.Spawn()
		if err != nil {
			return opts, fmt.Errorf("spawn %q: %w", c.Args[0], err)
		}
		if i < len(cmds)-1 {
			d.logger.Debug("running setup command", "cmd", c.Args)
			// The exit status of setup commands is deliberately not
			// inspected; the chain proceeds regardless.
			_, _ = h.Wait()
			continue
		}
		d.logger.Debug("daemonizing main command", "cmd", c.Args, "pid", h.PID())
		d.reg.put(h)
		d.setMain(h.PID())
		d.watchExit(h, c.Options)
		metrics.IncStart(d.cfg.Script)
		d.record(history.EventStart, h.PID(), "")
	}
	return opts, nil
}

// watchExit is the exit monitor: it awaits the main process's status and
// disambiguates "exited on its own" from "killed by the supervisor" via
// the registry membership check. killAll's atomic clear guarantees exactly
// one of the two paths claims the handle.
func (d *Daemon) watchExit(h Handle, opts script.Options) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		st, err := h.Wait()
		if err != nil {
			d.logger.Debug("exit status unavailable, process was killed", "pid", h.PID(), "err", err)
			return
		}
		if !d.reg.remove(h.PID()) {
			// Already taken by killAll; the reload/shutdown path owns
			// what happens next.
			d.logger.Debug("process killed by supervisor", "pid", h.PID())
			return
		}
		d.clearMain(h.PID())
		metrics.IncExit(d.cfg.Script, st.Success)
		switch {
		case st.Success && opts.Watch:
			d.logger.Info("script exited cleanly, waiting for changes", "pid", h.PID())
		case st.Success:
			d.logger.Info("script exited cleanly", "pid", h.PID())
		case opts.Watch:
			d.logger.Warn("script crashed, waiting for changes before restart", "pid", h.PID())
		default:
			d.logger.Error("script crashed", "pid", h.PID())
		}
	}()
}

// killAll atomically drains the registry and force-terminates every
// snapshotted handle. Idempotent and safe under concurrent triggers
// (signal and reload racing); termination is best-effort.
func (d *Daemon) killAll() {
	for pid, h := range d.reg.takeAll() {
		d.logger.Debug("killing process", "pid", pid)
		_ = h.Terminate()
		metrics.IncKill(d.cfg.Script)
		d.clearMain(pid)
	}
}

// reload kills everything tracked and re-runs the whole chain, setup
// commands included. There is no build/serve distinction at the reload
// boundary.
func (d *Daemon) reload(batch watcher.Batch) {
	if d.cfg.Fullscreen {
		d.clearScreen()
	}
	d.logger.Info("watching", "paths", d.cfg.WatchPaths, "exts", d.cfg.WatchExts)
	d.logger.Warn("restarting due to changes")
	metrics.IncReload(d.cfg.Script)
	d.record(history.EventReload, 0, changeSummary(batch))
	d.killAll()
	d.bumpReloads()
	if _, err := d.execute(); err != nil {
		d.logger.Error("restart failed", "script", d.cfg.Script, "err", err)
	}
}

func (d *Daemon) emit(e Event) bool {
	select {
	case d.events <- e:
		return true
	case <-d.ctx.Done():
		return false
	}
}

func (d *Daemon) record(t history.EventType, pid int, detail string) {
	if d.hist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r := history.Record{Type: t, OccurredAt: time.Now(), Script: d.cfg.Script, PID: pid, Detail: detail}
	if err := d.hist.Send(ctx, r); err != nil {
		d.logger.Warn("history write failed", "err", err)
	}
}

func (d *Daemon) clearScreen() {
	_, _ = fmt.Fprint(d.screen, "\x1b[2J\x1b[H")
}

func (d *Daemon) setMain(pid int) {
	d.mu.Lock()
	d.snap.PID = pid
	d.snap.Running = true
	d.snap.StartedAt = time.Now()
	d.mu.Unlock()
}

func (d *Daemon) clearMain(pid int) {
	d.mu.Lock()
	if d.snap.PID == pid {
		d.snap.Running = false
	}
	d.mu.Unlock()
}

func (d *Daemon) bumpReloads() {
	d.mu.Lock()
	d.snap.Reloads++
	d.mu.Unlock()
}

func (d *Daemon) setWatching(v bool) {
	d.mu.Lock()
	d.snap.Watching = v
	d.mu.Unlock()
}

func changeSummary(b watcher.Batch) string {
	if len(b) == 0 {
		return ""
	}
	s := b[0].Path
	if len(b) > 1 {
		s = fmt.Sprintf("%s (+%d more)", s, len(b)-1)
	}
	return s
}
