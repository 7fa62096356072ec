// Package watcher recompiles CoffeeScript sources as they change on disk
// during development, so the next request is already a cache hit and open
// browsers can reload.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/roaster/internal/build"
	"github.com/conneroisu/roaster/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// EventType classifies a source change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

var eventTypeNames = [...]string{
	EventTypeCreated:  "created",
	EventTypeModified: "modified",
	EventTypeDeleted:  "deleted",
	EventTypeRenamed:  "renamed",
}

func (e EventType) String() string {
	if e < 0 || int(e) >= len(eventTypeNames) {
		return "unknown"
	}
	return eventTypeNames[e]
}

// Gone reports whether the file no longer exists under its old name.
func (e EventType) Gone() bool {
	return e == EventTypeDeleted || e == EventTypeRenamed
}

// ChangeEvent is one coalesced change to a watched file. Path is absolute.
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
}

// FileFilter reports whether changes to path are of interest.
type FileFilter func(path string) bool

// ChangeHandler receives each batch of coalesced changes.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// FileWatcher follows directory trees below a root and hands debounced
// batches of file changes to its handlers.
type FileWatcher struct {
	root     string
	fsw      *fsnotify.Watcher
	batches  *coalescer
	logger   logging.Logger
	mu       sync.RWMutex
	filters  []FileFilter
	handlers []ChangeHandler
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewFileWatcher creates a watcher confined to root. Nothing is watched
// until AddRecursive is called.
func NewFileWatcher(root string, delay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &FileWatcher{
		root:    abs,
		fsw:     fsw,
		batches: newCoalescer(delay),
		logger:  logger.WithComponent("watcher"),
	}, nil
}

// AddFilter registers a filter. A change is delivered only when every
// filter accepts its path.
func (w *FileWatcher) AddFilter(f FileFilter) {
	w.mu.Lock()
	w.filters = append(w.filters, f)
	w.mu.Unlock()
}

// AddHandler registers a handler for change batches.
func (w *FileWatcher) AddHandler(h ChangeHandler) {
	w.mu.Lock()
	w.handlers = append(w.handlers, h)
	w.mu.Unlock()
}

// AddRecursive watches dir and every non-hidden directory below it. A
// relative dir is taken relative to the root.
func (w *FileWatcher) AddRecursive(dir string) error {
	top, err := w.within(dir)
	if err != nil {
		return fmt.Errorf("invalid watch path: %w", err)
	}
	return filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case !d.IsDir():
			return nil
		case path != top && strings.HasPrefix(d.Name(), "."):
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// within resolves path against the root, refusing paths that escape it.
func (w *FileWatcher) within(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside %s", path, w.root)
	}
	return path, nil
}

// Start begins delivering changes. Delivery ends when ctx is cancelled or
// Stop is called.
func (w *FileWatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.batches.run(ctx)
	go w.dispatch(ctx)
	go w.listen(ctx)
	return nil
}

// Stop releases the underlying fsnotify watcher. It is safe to call more
// than once, and before Start.
func (w *FileWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.mu.RLock()
		cancel := w.cancel
		w.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
		err = w.fsw.Close()
	})
	return err
}

func (w *FileWatcher) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.translate(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

// translate turns a raw fsnotify event into a ChangeEvent. Directories
// created under a watched tree are watched in turn.
func (w *FileWatcher) translate(ctx context.Context, ev fsnotify.Event) {
	info, statErr := os.Stat(ev.Name)
	if statErr == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := w.AddRecursive(ev.Name); err != nil {
				w.logger.Warn(ctx, err, "Cannot watch new directory", "dir", ev.Name)
			}
		}
		return
	}

	typ, ok := classify(ev.Op)
	if !ok || !w.accepts(ev.Name) {
		return
	}

	change := ChangeEvent{Type: typ, Path: ev.Name}
	if statErr == nil {
		change.ModTime = info.ModTime()
	}
	if !w.batches.offer(change) {
		w.logger.Warn(ctx, nil, "Dropping file event, queue is full", "path", ev.Name)
	}
}

func (w *FileWatcher) accepts(path string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, f := range w.filters {
		if !f(path) {
			return false
		}
	}
	return true
}

// classify maps an fsnotify op to an EventType. Permission changes are
// not content changes and are dropped.
func classify(op fsnotify.Op) (EventType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated, true
	case op.Has(fsnotify.Write):
		return EventTypeModified, true
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted, true
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed, true
	case op.Has(fsnotify.Chmod):
		return 0, false
	}
	return EventTypeModified, true
}

func (w *FileWatcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-w.batches.out:
			w.mu.RLock()
			handlers := append([]ChangeHandler(nil), w.handlers...)
			w.mu.RUnlock()

			for _, h := range handlers {
				if err := h(ctx, batch); err != nil {
					w.logger.Error(ctx, err, "File watcher handler error", "changes", len(batch))
				}
			}
		}
	}
}

// CoffeeFilter accepts CoffeeScript sources.
func CoffeeFilter(path string) bool {
	return filepath.Ext(path) == build.SourceExt
}

// NoHiddenFilter rejects dotfiles such as editor lock and swap files.
func NoHiddenFilter(path string) bool {
	return !strings.HasPrefix(filepath.Base(path), ".")
}
