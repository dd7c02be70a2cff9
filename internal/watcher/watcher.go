package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultInterval is the debounce window for grouping raw filesystem
// events into one batch.
const DefaultInterval = 350 * time.Millisecond

// Op classifies one change record.
type Op string

const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpRemove Op = "remove"
)

// Change is one classified filesystem change.
type Change struct {
	Path string `json:"path"`
	Op   Op     `json:"op"`
}

// IsModify reports whether this record's classification counts as a
// content modification for reload purposes.
func (c Change) IsModify() bool { return c.Op == OpModify }

// Batch is one delivery of the change feed.
type Batch []Change

// HasModify reports whether any record in the batch is a modification.
func (b Batch) HasModify() bool {
	for _, c := range b {
		if c.IsModify() {
			return true
		}
	}
	return false
}

// Config selects what to watch.
type Config struct {
	Paths    []string      `json:"paths" mapstructure:"paths"`
	Exts     []string      `json:"exts" mapstructure:"exts"`
	Skip     []string      `json:"skip" mapstructure:"skip"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// Watcher turns raw fsnotify events into debounced, filtered batches on an
// output channel. The channel closes when the watcher is stopped; the feed
// is otherwise infinite. Restart only by constructing a new Watcher.
type Watcher struct {
	cfg    Config
	logger *slog.Logger
	fw     *fsnotify.Watcher
	out    chan Batch
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"."}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		cfg:    cfg,
		logger: logger,
		fw:     fw,
		out:    make(chan Batch),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start registers the configured paths (directories recursively) and begins
// delivering batches on Batches().
func (w *Watcher) Start() error {
	for _, p := range w.cfg.Paths {
		if err := w.addRecursive(p); err != nil {
			_ = w.fw.Close()
			return err
		}
	}
	w.logger.Debug("watcher started", "paths", w.cfg.Paths, "interval", w.cfg.Interval)
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Batches returns the change feed.
func (w *Watcher) Batches() <-chan Batch { return w.out }

// Stop tears the watcher down and closes the feed.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.fw.Close()
	w.wg.Wait()
	return err
}

// Paths returns the watched roots for display.
func (w *Watcher) Paths() []string { return w.cfg.Paths }

// Exts returns the extension filter for display.
func (w *Watcher) Exts() []string { return w.cfg.Exts }

func (w *Watcher) addRecursive(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.fw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipped(path) {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	defer close(w.out)

	var pending Batch
	timer := time.NewTimer(w.cfg.Interval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				// Host watcher closed: flush what we have and end the feed.
				if len(pending) > 0 {
					w.deliver(pending)
				}
				return
			}
			c, ok := w.classify(ev)
			if !ok {
				continue
			}
			pending = append(pending, c)
			timer.Reset(w.cfg.Interval)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "err", err)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := pending
			pending = nil
			if !w.deliver(batch) {
				return
			}
		}
	}
}

func (w *Watcher) deliver(b Batch) bool {
	select {
	case w.out <- b:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// classify maps an fsnotify event onto a change record, applying the
// extension and skip filters. New directories join the watch set here.
func (w *Watcher) classify(ev fsnotify.Event) (Change, bool) {
	if w.skipped(ev.Name) {
		return Change{}, false
	}
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return Change{}, false
		}
		if !w.extMatch(ev.Name) {
			return Change{}, false
		}
		return Change{Path: ev.Name, Op: OpCreate}, true
	}
	if !w.extMatch(ev.Name) {
		return Change{}, false
	}
	switch {
	case ev.Op.Has(fsnotify.Write):
		return Change{Path: ev.Name, Op: OpModify}, true
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		return Change{Path: ev.Name, Op: OpRemove}, true
	}
	return Change{}, false // chmod and friends
}

func (w *Watcher) extMatch(path string) bool {
	if len(w.cfg.Exts) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range w.cfg.Exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func (w *Watcher) skipped(path string) bool {
	base := filepath.Base(path)
	for _, pat := range w.cfg.Skip {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if strings.Contains(path, pat) {
			return true
		}
	}
	return false
}
