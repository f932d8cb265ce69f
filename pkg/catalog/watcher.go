package catalog

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/geodds/geodds/pkg/observability"
)

// Watcher reloads the catalog whenever one of its files changes.
type Watcher struct {
	catalog *Catalog
	watcher *fsnotify.Watcher
	logger  *observability.Logger
}

// NewWatcher starts watching the catalog's directory.
func NewWatcher(catalog *Catalog, logger *observability.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(catalog.path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{catalog: catalog, watcher: fsw, logger: logger}, nil
}

// Run processes filesystem events until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if err := w.catalog.Reload(); err != nil {
				// keep serving the previous catalog
				w.logger.WithError(err).WithField("file", event.Name).Error("catalog reload failed")
				continue
			}
			w.logger.WithField("file", event.Name).Info("catalog reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("catalog watcher error")
		}
	}
}
