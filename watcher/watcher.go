// Package watcher turns filesystem changes under the media root into
// targeted re-scan requests.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"imagecleanse/logging"
	"imagecleanse/utils"
)

// Target receives batches of changed root-relative paths.
type Target interface {
	Trigger(paths []string)
}

// Options configures a watcher.
type Options struct {
	Root          string
	IgnoreFolders []string
	// Debounce is how long the tree must stay quiet before a batch is sent.
	Debounce time.Duration
}

// Watcher registers every non-ignored directory under Root and batches
// created or modified files.
type Watcher struct {
	fs       *fsnotify.Watcher
	root     string
	ignore   map[string]struct{}
	debounce time.Duration
	target   Target
	logger   *slog.Logger

	pending map[string]struct{}
}

// New starts watching opts.Root. Call Run to consume events.
func New(opts Options, target Target, logger *slog.Logger) (*Watcher, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	w := &Watcher{
		fs:       fw,
		root:     root,
		ignore:   utils.SetOf(utils.CleanList(opts.IgnoreFolders)),
		debounce: opts.Debounce,
		target:   target,
		logger:   logging.NewComponentLogger(logger, "watcher"),
		pending:  make(map[string]struct{}),
	}
	if err := w.watchTree(root, false); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// Run delivers batches until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	w.logger.Info("watching media root", logging.String(logging.FieldFolder, w.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", logging.Error(err))
		case evt, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.handle(evt) {
				timer.Reset(w.debounce)
			}
		case <-timer.C:
			w.flush()
		}
	}
}

// handle records evt and reports whether anything was queued.
func (w *Watcher) handle(evt fsnotify.Event) bool {
	if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) {
		return false
	}
	path := filepath.Clean(evt.Name)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if w.ignored(filepath.Base(path)) {
			return false
		}
		before := len(w.pending)
		// Directories moved in arrive whole; collect their files too.
		if err := w.watchTree(path, true); err != nil {
			w.logger.Warn("watch new directory", logging.String(logging.FieldPath, path), logging.Error(err))
		}
		return len(w.pending) > before
	}
	if !info.Mode().IsRegular() {
		return false
	}
	return w.queue(path)
}

func (w *Watcher) queue(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	return true
}

func (w *Watcher) flush() {
	if len(w.pending) == 0 {
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	w.pending = make(map[string]struct{})

	w.logger.Debug("changes detected", logging.Int("paths", len(paths)))
	w.target.Trigger(paths)
}

func (w *Watcher) ignored(name string) bool {
	_, ok := w.ignore[name]
	return ok
}

// watchTree adds dir and every non-ignored subdirectory. With collect set,
// regular files found on the way are queued.
func (w *Watcher) watchTree(dir string, collect bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != dir && w.ignored(d.Name()) {
				return fs.SkipDir
			}
			if err := w.fs.Add(p); err != nil {
				return fmt.Errorf("watch %s: %w", p, err)
			}
			return nil
		}
		if collect && d.Type().IsRegular() {
			w.queue(p)
		}
		return nil
	})
}
