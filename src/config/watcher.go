package config

import (
	"context"
	"path/filepath"
	"time"

	"commission-observer/src/logger"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 200 * time.Millisecond

// Watch reloads the config file whenever it changes and hands every valid
// result to onChange. Invalid edits are logged and skipped. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, log *logger.Logger, configPath string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return err
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := func() {
		cfg, err := NewConfig(configPath)
		if err != nil {
			log.Warning("Ignoring config change: %v", err)
			return
		}
		log.Info("Configuration reloaded from %s", configPath)
		onChange(cfg)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, reload)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warning("Config watcher error: %v", err)

		case <-ctx.Done():
			return nil
		}
	}
}
