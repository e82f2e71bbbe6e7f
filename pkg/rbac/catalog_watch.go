package rbac

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/hearth/pkg/observability"
)

// WatchCatalogFile reapplies the catalog file whenever it changes until ctx is
// cancelled. The parent directory is watched so editors that replace the file
// by rename are picked up. A file that fails validation leaves the previous
// defaults in place.
func WatchCatalogFile(ctx context.Context, c *Catalog, path string, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to resolve catalog path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch catalog directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.ApplyFile(abs); err != nil {
					logger.WithError(err).Warn("catalog reload rejected")
					continue
				}
				logger.WithField("path", abs).Info("catalog reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Error("catalog watcher error")
			}
		}
	}()
	return nil
}
