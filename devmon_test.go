//go:build !windows

package devmon

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arlert/devmon/internal/config"
	"github.com/arlert/devmon/internal/script"
	"github.com/arlert/devmon/internal/watcher"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSupervisorOneShotScript(t *testing.T) {
	fc := &config.FileConfig{
		Scripts: map[string]script.Def{
			"check": {Cmd: "sh -c 'exit 0'"},
		},
	}
	sup, err := NewSupervisor(fc, "check", quietLogger())
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	defer sup.Stop()

	events, err := sup.Events()
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	var got []EventType
	for ev := range events {
		got = append(got, ev.Type)
	}
	if len(got) != 2 || got[0] != EventStart || got[1] != EventExit {
		t.Fatalf("want [start exit], got %v", got)
	}
}

func TestSupervisorUnknownScript(t *testing.T) {
	fc := &config.FileConfig{Scripts: map[string]script.Def{}}
	if _, err := NewSupervisor(fc, "missing", quietLogger()); err == nil {
		t.Fatalf("expected error for unknown script")
	}
}

func TestSupervisorWatchReloadEndToEnd(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.go")
	if err := os.WriteFile(file, []byte("package main\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fc := &config.FileConfig{
		Watcher: watcher.Config{Paths: []string{dir}, Interval: 50 * time.Millisecond},
		Scripts: map[string]script.Def{
			"serve": {Cmd: "sleep 60", Watch: true},
		},
	}
	sup, err := NewSupervisor(fc, "serve", quietLogger())
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	defer sup.Stop()

	events, err := sup.Events()
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	first := <-events
	if first.Type != EventStart {
		t.Fatalf("first event %s", first.Type)
	}

	// Let the main process come up, then touch the watched file.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := sup.Snapshot(); snap.Running {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	firstPID := sup.Snapshot().PID
	if firstPID == 0 {
		t.Fatalf("main process did not start")
	}
	if err := os.WriteFile(file, []byte("package main // touch\n"), 0o600); err != nil {
		t.Fatalf("touch: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != EventReload {
			t.Fatalf("want reload, got %s", ev.Type)
		}
		if !ev.Change.HasModify() {
			t.Fatalf("reload batch carries no modify record: %+v", ev.Change)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload after file change")
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := sup.Snapshot()
		if snap.Running && snap.PID != firstPID {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("main process was not restarted, snapshot %+v", sup.Snapshot())
}
