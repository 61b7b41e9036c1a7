package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/codesearch/internal/scanner"
)

// Filter decides which paths are worth reporting. Both methods are satisfied
// by *scanner.Scanner.
type Filter interface {
	IsIndexable(rel string) bool
	SkipsDir(name string) bool
}

var _ Filter = (*scanner.Scanner)(nil)

// Watcher watches a project tree recursively with fsnotify and emits
// debounced batches of events for indexable files.
type Watcher struct {
	fs        *fsnotify.Watcher
	filter    Filter
	debouncer *Debouncer
	opts      Options
	root      string

	events chan []FileEvent
	errors chan error

	mu      sync.Mutex
	stopped bool
}

// New creates a Watcher. filter may be nil to report every file.
func New(filter Filter, opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fs:        fsw,
		filter:    filter,
		debouncer: NewDebouncer(opts.Debounce),
		opts:      opts,
		events:    make(chan []FileEvent, opts.BufferSize),
		errors:    make(chan error, 10),
	}, nil
}

// Start watches root until ctx is done or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root is not a directory: %s", abs)
	}
	w.root = abs

	if err := w.addTree(abs); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	slog.Info("watch_started", slog.String("root", abs), slog.Int("watched_dirs", len(w.fs.WatchList())))

	go w.forward(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// addTree registers dir and every non-skipped directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fs.Add(p)
	})
}

func (w *Watcher) skipDir(name string) bool {
	return w.filter != nil && w.filter.SkipsDir(name)
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	if isDir {
		if op != OpCreate || w.skipDir(filepath.Base(ev.Name)) {
			return
		}
		if err := w.addTree(ev.Name); err != nil {
			w.emitError(err)
		}
		// Files created before the watch was registered are found by the
		// next pass, which the directory event itself triggers.
		w.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: true, Timestamp: time.Now()})
		return
	}

	// A removed path can no longer be stat'ed; a removed directory still
	// has to trigger a pass, so only filter paths that look like files.
	if w.filter != nil && filepath.Ext(rel) != "" && !w.filter.IsIndexable(rel) {
		return
	}
	w.debouncer.Add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		slog.Warn("watch_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Events returns the channel of debounced batches. It is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop releases the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	w.debouncer.Stop()
	err := w.fs.Close()
	close(w.events)
	close(w.errors)
	return err
}
