package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"whatbeats/internal/logging"
)

// Watch reloads the config file whenever it changes and hands the new value
// to onChange. It blocks until ctx is done. Reload errors are logged and the
// previous config stays in effect.
//
// The parent directory is watched rather than the file so editors that
// replace the file via rename are still observed.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	log := logging.Get(logging.CategoryConfig)
	log.Info("Watching config file %s", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				log.Warn("Config reload failed, keeping previous config: %v", err)
				continue
			}
			log.Info("Config reloaded after %s", ev.Op)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Config watcher error: %v", err)
		}
	}
}
