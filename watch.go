package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phobologic/surfaceaudit/internal/discover"
)

const debounce = 300 * time.Millisecond

// watch re-runs fn after every burst of file changes under root, ignoring
// skipped directories and outputDir, until ctx is done. fn runs on the
// calling goroutine, so runs never overlap.
func watch(ctx context.Context, root, outputDir string, log *slog.Logger, fn func(context.Context) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addWatchRecursive(w, root, outputDir); err != nil {
		return err
	}
	log.Info("watching for changes", "root", root)

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(root, outputDir, ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addWatchRecursive(w, ev.Name, outputDir)
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			log.Info("change detected, re-running")
			if err := fn(ctx); err != nil {
				log.Error("run failed", "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		}
	}
}

func addWatchRecursive(w *fsnotify.Watcher, dir, outputDir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && discover.SkipDir(d.Name()) || within(outputDir, path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// ignored reports whether a change at path cannot affect a run.
func ignored(root, outputDir, path string) bool {
	if within(outputDir, path) {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg != "." && seg != ".." && discover.SkipDir(seg) {
			return true
		}
	}
	return false
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
