package templates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/Benny93/mermaid-mcp/internal/storage"
)

// DefaultBatchDelay is how long the watcher waits after the last change
// before reloading.
const DefaultBatchDelay = 500 * time.Millisecond

// Watcher reloads catalog files into a store when they change on disk.
type Watcher struct {
	dir        string
	store      storage.TemplateStore
	logger     *log.Logger
	batchDelay time.Duration
	onReload   func(changed []string)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger used for reload reports.
func WithWatchLogger(logger *log.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithBatchDelay sets the quiet period before a batch of changes is applied.
func WithBatchDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.batchDelay = d
	}
}

// WithReloadHook registers a function called after each applied batch with
// the catalog files that changed.
func WithReloadHook(fn func(changed []string)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher creates a watcher for the catalog files under dir.
func NewWatcher(dir string, store storage.TemplateStore, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:        dir,
		store:      store,
		logger:     log.New(io.Discard),
		batchDelay: DefaultBatchDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run monitors the directory and applies changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	matcher, err := loadIgnoreMatcher(w.dir)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && ignored(matcher, w.dir, path, true) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("setting up watcher: %w", err)
	}

	// Batch changed files so editors writing in several steps cause one reload
	changed := make(map[string]bool)
	batchTimer := time.NewTimer(w.batchDelay)
	batchTimer.Stop()
	defer batchTimer.Stop()

	w.logger.Info("watching templates", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !ignored(matcher, w.dir, event.Name, true) {
						if err := watcher.Add(event.Name); err != nil {
							w.logger.Warn("watching new directory", "path", event.Name, "err", err)
						}
					}
					continue
				}
			}

			if !IsCatalogFile(event.Name) || ignored(matcher, w.dir, event.Name, false) {
				continue
			}

			changed[event.Name] = true
			batchTimer.Reset(w.batchDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)

		case <-batchTimer.C:
			if len(changed) == 0 {
				continue
			}
			paths := make([]string, 0, len(changed))
			for path := range changed {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			changed = make(map[string]bool)

			if err := w.Apply(ctx, paths); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("reloading templates", "err", err)
			}
			if w.onReload != nil {
				w.onReload(paths)
			}
		}
	}
}

// Apply reloads the given catalog files. Templates previously loaded from a
// file are removed first; a file that no longer exists or fails to parse
// contributes nothing. Built-in templates that were shadowed by a removed
// template are restored.
func (w *Watcher) Apply(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		removed, err := w.store.RemoveBySource(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("removing templates from %s: %w", path, err))
			continue
		}

		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			w.logger.Info("template file removed", "path", path, "templates", removed)
			continue
		}

		loaded, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := w.store.Put(ctx, loaded...); err != nil {
			errs = append(errs, fmt.Errorf("storing templates from %s: %w", path, err))
			continue
		}
		w.logger.Info("template file reloaded", "path", path, "templates", len(loaded))
	}

	if err := restoreBuiltins(ctx, w.store); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func restoreBuiltins(ctx context.Context, store storage.TemplateStore) error {
	var missing []storage.Template
	for _, t := range Builtin() {
		_, err := store.Get(ctx, t.ID)
		switch {
		case errors.Is(err, storage.ErrTemplateNotFound):
			missing = append(missing, t)
		case err != nil:
			return fmt.Errorf("checking built-in template %s: %w", t.ID, err)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return store.Put(ctx, missing...)
}
