package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file and invokes onChange with the freshly
// loaded configuration whenever it is rewritten. The parent directory is
// watched rather than the file itself so that editors and configuration
// managers that replace the file atomically are still observed.
// Blocks until ctx is canceled.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close() //nolint:errcheck

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	logger = logger.With(slog.String("component", "config-watcher"))
	logger.Debug("watching config file", "path", path)

	// Debounce: editors often emit several events for one save.
	var pending *time.Timer
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			logger.Error("reloading config after change", "error", err)
			return
		}
		logger.Info("config file changed, reloaded")
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(250*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
