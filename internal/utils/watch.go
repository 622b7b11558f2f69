package utils

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatchConfig monitors path for changes and calls onChange with the newly
// loaded Config each time the file is rewritten. It runs until ctx is
// cancelled. If a reload fails validation the previous config stays active
// and onChange is not called.
func WatchConfig(ctx context.Context, path string, logger *logrus.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	logger.Infof("Watching config file %s for changes", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so catch Create as well.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadConfig(path)
			if err != nil {
				logger.Errorf("Config reload failed, keeping previous config: %v", err)
				continue
			}

			logger.Infof("Config reloaded from %s", path)
			onChange(cfg)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("Config watcher error: %v", err)
		}
	}
}
