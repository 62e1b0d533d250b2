package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Editors and the web API replace the file in several steps, so events
// are collected for a short while before onChange runs.
const watchSettleTime = 500 * time.Millisecond

// Watch calls onChange whenever the config file has been written,
// created or replaced. It watches the parent directory so that atomic
// renames are noticed too. Watch blocks until ctx is done.
func Watch(ctx context.Context, cfile string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(cfile)
	if err != nil {
		return fmt.Errorf("failed to resolve config path %s: %w", cfile, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				slog.Debug("Config file changed", "file", event.Name, "op", event.Op.String())
				settle = time.After(watchSettleTime)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", "error", err)
		case <-settle:
			settle = nil
			slog.Info("Config file modified, reloading", "file", abs)
			onChange()
		}
	}
}
