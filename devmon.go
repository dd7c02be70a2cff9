// Package devmon supervises one script's command chain during development:
// it runs the chain, daemonizes the last command, and restarts it whenever a
// watched file changes.
package devmon

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arlert/devmon/internal/config"
	"github.com/arlert/devmon/internal/daemon"
	"github.com/arlert/devmon/internal/history"
	"github.com/arlert/devmon/internal/history/sqlite"
	"github.com/arlert/devmon/internal/logger"
	"github.com/arlert/devmon/internal/metrics"
	"github.com/arlert/devmon/internal/script"
	"github.com/arlert/devmon/internal/server"
	"github.com/arlert/devmon/internal/watcher"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.FileConfig

type ScriptDef = script.Def

type Event = daemon.Event

type EventType = daemon.EventType

const (
	EventStart  = daemon.EventStart
	EventReload = daemon.EventReload
	EventExit   = daemon.EventExit
)

type Snapshot = daemon.Snapshot

// NewLogger builds the supervisor's colored stderr logger.
func NewLogger(level slog.Level) *slog.Logger { return logger.New(level) }

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// LoadDefaultConfig loads ./devmon.toml when present.
func LoadDefaultConfig() (*Config, error) { return config.LoadDefault() }

// Supervisor wires the daemon together with its collaborators: the
// command builder, the change feed, the optional history sink and the
// optional status API.
type Supervisor struct {
	daemon  *daemon.Daemon
	watcher *watcher.Watcher
	hist    *sqlite.Sink
	api     *http.Server
}

// NewSupervisor assembles a supervisor for one named script. The watcher
// is only created when the script requests watching.
func NewSupervisor(fc *Config, name string, logger *slog.Logger) (*Supervisor, error) {
	def, ok := fc.Scripts[name]
	if !ok {
		return nil, fmt.Errorf("script %q is not configured", name)
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	s := &Supervisor{}
	var feed <-chan watcher.Batch
	if def.Watch {
		w, err := watcher.New(fc.Watcher, logger)
		if err != nil {
			return nil, err
		}
		if err := w.Start(); err != nil {
			return nil, err
		}
		s.watcher = w
		feed = w.Batches()
	}

	var hist history.Sink
	if fc.History.DSN != "" {
		sink, err := sqlite.New(fc.History.DSN)
		if err != nil {
			if s.watcher != nil {
				_ = s.watcher.Stop()
			}
			return nil, err
		}
		s.hist = sink
		hist = sink
	}

	cfg := daemon.Config{
		Script:     name,
		Fullscreen: fc.Fullscreen,
		WatchPaths: fc.Watcher.Paths,
		WatchExts:  fc.Watcher.Exts,
	}
	source := daemon.NewSource(script.NewResolver(fc.Scripts, fc.Log))
	opts := []daemon.Option{}
	if hist != nil {
		opts = append(opts, daemon.WithHistory(hist))
	}
	s.daemon = daemon.New(cfg, source, feed, logger, opts...)

	if fc.API.Listen != "" {
		var q history.Querier
		if s.hist != nil {
			q = s.hist
		}
		s.api = server.NewServer(fc.API.Listen, s.daemon, q)
	}
	return s, nil
}

// Events starts supervision and returns the single-use lifecycle stream.
func (s *Supervisor) Events() (<-chan Event, error) { return s.daemon.Events() }

// Snapshot returns the daemon's current state.
func (s *Supervisor) Snapshot() Snapshot { return s.daemon.Snapshot() }

// Stop tears everything down: the change feed, the daemon and its tracked
// processes, then the optional API and history sink.
func (s *Supervisor) Stop() {
	if s.watcher != nil {
		_ = s.watcher.Stop()
	}
	s.daemon.Stop()
	s.closeCollaborators()
}

func (s *Supervisor) closeCollaborators() {
	if s.api != nil {
		_ = s.api.Close()
		s.api = nil
	}
	if s.hist != nil {
		_ = s.hist.Close()
		s.hist = nil
	}
}
