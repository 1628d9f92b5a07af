// Package watch keeps a cleaned tree in step with its export while the
// export is being edited.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notionclean/internal/cleaner"
	"github.com/starford/notionclean/internal/models"
)

const reconcileDelay = 200 * time.Millisecond

var _ Target = (*cleaner.Cleaner)(nil)

// Target is what the watcher drives. *cleaner.Cleaner implements it.
type Target interface {
	ProcessFile(ctx context.Context, rel string) (models.FileRecord, error)
	RemoveFile(rel string) (models.FileRecord, error)
	Run(ctx context.Context) (cleaner.Summary, error)
}

// RunCallback is called after every reconciliation run.
type RunCallback func(sum cleaner.Summary, err error)

// Watch starts an fsnotify watcher on the export root and carries every
// change over until ctx is cancelled.
//
// Created and written files are processed again in full; removed files
// have their cleaned counterpart deleted. New directories are added to the
// watch list and their files processed. fsnotify reports a rename on the
// old path only, so renames also schedule a debounced full run that picks
// up whatever the individual events missed.
func Watch(ctx context.Context, target Target, root string, logger *slog.Logger, onRun RunCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			sum, runErr := target.Run(ctx)
			if runErr != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", runErr.Error()))
			}
			if onRun != nil {
				onRun(sum, runErr)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			handle(ctx, w, target, root, ev, logger, scheduleReconcile)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func handle(ctx context.Context, w *fsnotify.Watcher, target Target, root string, ev fsnotify.Event, logger *slog.Logger, scheduleReconcile func()) {
	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
				logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", addErr.Error()))
			} else {
				logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
			}
			processDir(ctx, target, root, ev.Name, logger)
			return
		}
	}

	rel, relErr := filepath.Rel(root, ev.Name)
	if relErr != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if _, err := target.ProcessFile(ctx, rel); err != nil {
			logger.Warn("watcher: clean failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case ev.Op&fsnotify.Remove != 0:
		if _, err := target.RemoveFile(rel); err != nil {
			logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case ev.Op&fsnotify.Rename != 0:
		if _, err := target.RemoveFile(rel); err != nil {
			logger.Warn("watcher: rename remove failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		scheduleReconcile()
	}
}

// processDir carries over every file already inside a new directory.
func processDir(ctx context.Context, target Target, root, dir string, logger *slog.Logger) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if _, err := target.ProcessFile(ctx, filepath.ToSlash(rel)); err != nil {
			logger.Warn("watcher: clean failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
