// config/watcher.go
package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// UpdatableFilter is implemented by every component that can swap its
// configuration at runtime.
type UpdatableFilter interface {
	Name() string
	UpdateConfig(cfg *Config) error
}

const defaultDebounceDelay = 500 * time.Millisecond

// Reload loads the file at configPath and pushes it to every filter. A file
// that fails to load leaves all filters on their current configuration.
func Reload(configPath string, filters []UpdatableFilter) error {
	newCfg, _, err := Load(configPath, false)
	if err != nil {
		return err
	}

	for _, f := range filters {
		if err := f.UpdateConfig(newCfg); err != nil {
			slog.Error("Failed to update filter configuration",
				"path", configPath, "filter", f.Name(), "error", err)
		} else {
			slog.Debug("Filter configuration updated successfully", "filter", f.Name())
		}
	}
	return nil
}

// StartWatcher watches the config file and reloads it, debounced, on change.
// It blocks until ctx is done.
func StartWatcher(ctx context.Context, configPath string, filters []UpdatableFilter, debounceDelay time.Duration) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Error("Failed to close watcher", "error", err)
		}
	}()

	// Editors replace files by rename, so watch the directory.
	configDir := filepath.Dir(configPath)
	if err := watcher.Add(configDir); err != nil {
		slog.Error("Failed to add config path to watcher", "path", configDir, "error", err)
		return
	}

	delay := debounceDelay
	if delay <= 0 {
		delay = defaultDebounceDelay
	}

	slog.Info("Started configuration watcher", "path", configPath, "debounce", delay)

	var debounceTimer *time.Timer
	var mu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			mu.Unlock()
			slog.Info("Stopping configuration watcher...")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				slog.Warn("Watcher events channel closed unexpectedly, stopping watcher.")
				return
			}

			relevant := filepath.Clean(event.Name) == filepath.Clean(configPath) &&
				(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename))
			if !relevant {
				continue
			}

			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(delay, func() {
				slog.Info("Config file changed, attempting to reload...", "path", configPath)
				if err := Reload(configPath, filters); err != nil {
					slog.Error("Failed to reload config file, keeping old configuration", "path", configPath, "error", err)
					return
				}
				slog.Info("Configuration reloaded successfully", "path", configPath)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				slog.Warn("Watcher errors channel closed unexpectedly, stopping watcher.")
				return
			}
			slog.Error("Error watching config file", "error", err)
		}
	}
}
