// Package watcher keeps the index in sync with a directory by re-indexing
// Python files as they change.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"semdex/internal/config"
	"semdex/internal/index"
)

// Watcher re-indexes changed files. Events are debounced so that a burst of
// writes to one file becomes a single re-index.
type Watcher struct {
	root string
	idx  *index.Indexer
	cfg  config.Config

	debounceMu   sync.Mutex
	debounce     map[string]fsnotify.Op
	debounceTime time.Duration

	onEvent func(event, path string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets how long events are batched before processing.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) { w.debounceTime = d }
}

// WithEventCallback sets a callback invoked after each processed file.
func WithEventCallback(fn func(event, path string)) Option {
	return func(w *Watcher) { w.onEvent = fn }
}

// New creates a watcher over root feeding the given indexer.
func New(root string, idx *index.Indexer, cfg config.Config, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:         absRoot,
		idx:          idx,
		cfg:          cfg,
		debounce:     make(map[string]fsnotify.Op),
		debounceTime: 500 * time.Millisecond,
		onEvent:      func(string, string) {},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirectories(fw); err != nil {
		return err
	}

	log.Info("Watching for file changes", "root", w.root)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, fw)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) addDirectories(fw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != w.root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

var skipDirs = map[string]bool{
	"__pycache__":  true,
	"node_modules": true,
	"venv":         true,
	"build":        true,
	"dist":         true,
	"vendor":       true,
}

func (w *Watcher) handleEvent(event fsnotify.Event, fw *fsnotify.Watcher) {
	path := event.Name
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	// New directories get watched too.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !skipDirs[filepath.Base(path)] {
				fw.Add(path)
			}
			return
		}
	}

	if !w.indexable(path) {
		return
	}

	w.debounceMu.Lock()
	w.debounce[path] |= event.Op
	w.debounceMu.Unlock()
}

func (w *Watcher) indexable(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".py" && ext != ".pyi" {
		return false
	}
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return false
		}
		if w.cfg.Index.MaxFileSize > 0 && info.Size() > int64(w.cfg.Index.MaxFileSize) {
			return false
		}
	}
	return true
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDebounced(ctx)
		}
	}
}

func (w *Watcher) flushDebounced(ctx context.Context) {
	w.debounceMu.Lock()
	if len(w.debounce) == 0 {
		w.debounceMu.Unlock()
		return
	}
	events := w.debounce
	w.debounce = make(map[string]fsnotify.Op)
	w.debounceMu.Unlock()

	for path, op := range events {
		if ctx.Err() != nil {
			return
		}
		relPath, _ := filepath.Rel(w.root, path)

		// The index is append-only; deletions take effect at the next full
		// re-index. Writes and creates re-embed the file immediately.
		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			log.Debug("File removed, pending next full index", "file", relPath)
			continue
		}
		if !op.Has(fsnotify.Create) && !op.Has(fsnotify.Write) {
			continue
		}

		n, err := w.idx.IndexFile(ctx, w.root, path)
		if err != nil {
			log.Warn("Failed to re-index file", "path", relPath, "error", err)
			continue
		}

		if err := w.idx.Save(); err != nil {
			log.Error("Failed to persist index", "error", err)
			continue
		}

		w.onEvent("index", relPath)
		log.Info("Re-indexed", "file", relPath, "chunks", n)
	}
}
