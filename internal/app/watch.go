package app

import (
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"fsv-go/internal/fs"
	"fsv-go/internal/fsv"
)

// Watcher turns filesystem events under a root into debounced triggers.
// fsnotify is not recursive, so every directory is watched individually and
// directories created later are added as their events arrive. Paths the walk
// would skip are neither watched nor trigger.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	extra    []string
	ignore   *fs.IgnoreMatcher
	logger   fsv.Logger
}

// NewWatcher watches every directory under root that the walk's ignore rules
// (defaults, extra and root's ignore file) do not match.
func NewWatcher(root string, debounce time.Duration, extra []string, logger fsv.Logger) (*Watcher, error) {
	ignore, err := fs.NewTreeMatcher(root, extra)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: debounce,
		extra:    extra,
		ignore:   ignore,
		logger:   logger,
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			w.logger.Warn("cannot watch directory", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, p); rel != "." && w.ignore.Match(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

// Run calls trigger once events have been quiet for the debounce interval.
// Triggers run on the calling goroutine, so they never overlap. Run returns
// when ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, trigger func(context.Context)) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-fire:
			fire = nil
			trigger(ctx)
		}
	}
}

// relevant reports whether a change at p can alter the next walk. A change
// to the root's ignore file reloads the rules and counts as relevant.
func (w *Watcher) relevant(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == "." {
		return true
	}
	if rel == fs.IgnoreFileName {
		ignore, err := fs.NewTreeMatcher(w.root, w.extra)
		if err != nil {
			w.logger.Warn("cannot reload ignore file", "error", err)
			return true
		}
		w.ignore = ignore
		if err := w.addTree(w.root); err != nil {
			w.logger.Warn("cannot rewatch tree", "error", err)
		}
		return true
	}
	return !w.ignore.Match(rel)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Watch syncs once, then again after every debounced burst of changes
// under the stored root, until ctx is cancelled.
func (a *FSVApp) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		d, err := time.ParseDuration(a.cfg.Schedule.Debounce)
		if err != nil {
			return fmt.Errorf("schedule.debounce: %w", err)
		}
		debounce = d
	}

	if _, err := a.Sync(ctx); err != nil {
		return err
	}
	root, err := a.service.RootPath(ctx)
	if err != nil {
		return err
	}

	w, err := NewWatcher(root, debounce, a.cfg.Filesystem.Ignore, a.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	a.logger.Info("watching", "root", root, "debounce", debounce)
	return w.Run(ctx, a.syncAndLog)
}
