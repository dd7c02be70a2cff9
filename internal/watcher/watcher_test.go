package watcher

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()
	w, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func awaitBatch(t *testing.T, w *Watcher) Batch {
	t.Helper()
	select {
	case b, ok := <-w.Batches():
		if !ok {
			t.Fatalf("feed closed unexpectedly")
		}
		return b
	case <-time.After(3 * time.Second):
		t.Fatalf("no batch delivered")
	}
	return nil
}

func TestBatchHasModify(t *testing.T) {
	if (Batch{{Op: OpCreate}, {Op: OpRemove}}).HasModify() {
		t.Fatalf("batch without modify records reported HasModify")
	}
	if !(Batch{{Op: OpRemove}, {Op: OpModify}}).HasModify() {
		t.Fatalf("batch with a modify record reported no modify")
	}
	if (Batch{}).HasModify() {
		t.Fatalf("empty batch reported HasModify")
	}
}

func TestWriteProducesModifyBatch(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.go")
	if err := os.WriteFile(file, []byte("package main\n"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	w := startWatcher(t, Config{Paths: []string{dir}, Interval: 50 * time.Millisecond})

	if err := os.WriteFile(file, []byte("package main // changed\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	b := awaitBatch(t, w)
	if !b.HasModify() {
		t.Fatalf("write did not classify as modify: %+v", b)
	}
}

func TestExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, Config{
		Paths:    []string{dir},
		Exts:     []string{".go"},
		Interval: 50 * time.Millisecond,
	})

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case b := <-w.Batches():
		t.Fatalf("filtered extension delivered a batch: %+v", b)
	case <-time.After(300 * time.Millisecond):
	}

	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	b := awaitBatch(t, w)
	if len(b) == 0 || filepath.Ext(b[0].Path) != ".go" {
		t.Fatalf("expected .go change, got %+v", b)
	}
}

func TestSkipPattern(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, Config{
		Paths:    []string{dir},
		Skip:     []string{"*.tmp"},
		Interval: 50 * time.Millisecond,
	})

	if err := os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case b := <-w.Batches():
		t.Fatalf("skipped file delivered a batch: %+v", b)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDebounceGroupsEvents(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, Config{Paths: []string{dir}, Interval: 150 * time.Millisecond})

	for i := 0; i < 3; i++ {
		name := filepath.Join(dir, "f"+string(rune('a'+i))+".go")
		if err := os.WriteFile(name, []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	b := awaitBatch(t, w)
	if len(b) < 2 {
		t.Fatalf("rapid writes not grouped, batch %+v", b)
	}
}

func TestStopClosesFeed(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Paths: []string{dir}, Interval: 50 * time.Millisecond}, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = w.Stop()
	select {
	case _, ok := <-w.Batches():
		if ok {
			t.Fatalf("expected closed feed")
		}
	case <-time.After(time.Second):
		t.Fatalf("feed not closed after Stop")
	}
}
