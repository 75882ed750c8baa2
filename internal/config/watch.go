package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"chorus/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config file whenever it changes on disk and hands the
// new value to onChange. It watches the parent directory so that editors
// which replace the file by rename are still seen. Watch blocks until ctx
// is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	if path == "" {
		return fmt.Errorf("config path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	logging.Get(logging.CategoryConfig).Info("watching config file %s", abs)

	var pending <-chan time.Time
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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryConfig).Warn("config watcher error: %v", err)

		case <-pending:
			pending = nil
			cfg, err := Load(abs)
			if err != nil {
				logging.Get(logging.CategoryConfig).Warn("config reload failed, keeping previous: %v", err)
				continue
			}
			logging.Get(logging.CategoryConfig).Info("config reloaded from %s", abs)
			onChange(cfg)
		}
	}
}
