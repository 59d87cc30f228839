// Package reconcile keeps the hybrid store synchronized with a watched
// filesystem root: change notifications are debounced, mapped onto
// coordinator operations, and backstopped by a periodic consistency
// audit.
package reconcile

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/munin/internal/models"
	"github.com/starford/munin/internal/storage"
)

// Watch starts an fsnotify watcher on the watched root and forwards
// document-file change events to out until ctx is cancelled.
//
// New directories created at runtime are automatically added to the
// watch list; document files already inside them are emitted as
// Created events. fsnotify fires Rename on the old path only: the new
// path arrives as a separate Create event, and the periodic audit
// catches any stragglers.
func Watch(ctx context.Context, root string, out chan<- models.ChangeEvent, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories: add to the watch list and emit the
			// document files already inside.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					emitNewDir(ctx, root, absPath, out)
					continue
				}
			}

			if !storage.IsDocFile(absPath) {
				continue
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}

			var kind models.ChangeKind
			switch {
			case ev.Op&fsnotify.Create != 0:
				kind = models.ChangeCreated
			case ev.Op&fsnotify.Write != 0:
				kind = models.ChangeModified
			case ev.Op&fsnotify.Remove != 0:
				kind = models.ChangeDeleted
			case ev.Op&fsnotify.Rename != 0:
				kind = models.ChangeRenamed
			default:
				continue
			}

			select {
			case out <- models.ChangeEvent{Path: rel, Kind: kind, DetectedAt: time.Now()}:
			case <-ctx.Done():
				return nil
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// emitNewDir emits Created events for document files found in a newly
// created directory.
func emitNewDir(ctx context.Context, root, dirPath string, out chan<- models.ChangeEvent) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsDocFile(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		select {
		case out <- models.ChangeEvent{Path: rel, Kind: models.ChangeCreated, DetectedAt: time.Now()}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
