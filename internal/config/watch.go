package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alexisbeaulieu97/keyglow/internal/logger"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
)

const watchDebounce = 100 * time.Millisecond

// Watch reloads the store whenever its file is edited externally and calls
// onChange with the new configuration. It watches the parent directory so
// editors that replace the file by rename are seen. Watch blocks until ctx
// is done.
func Watch(ctx context.Context, store *Store, log *logger.Logger, onChange func(model.DeviceConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(store.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(store.Path())
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	entry := log.WithFields(map[string]any{"path": target})

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			entry.WarnErr(err, "config watcher error")

		case <-timer.C:
			cfg, changed, err := store.Reload()
			if err != nil {
				entry.WarnErr(err, "device config reload failed")
				continue
			}
			if !changed {
				continue
			}
			entry.Info("device config reloaded")
			if onChange != nil {
				onChange(cfg)
			}
		}
	}
}
