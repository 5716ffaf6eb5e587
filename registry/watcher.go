package registry

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the agent catalog when the YAML file changes. A failed
// reload keeps the previous catalog and reports through onReloadError.
type Watcher struct {
	registry      *Registry
	path          string
	log           *logrus.Logger
	watcher       *fsnotify.Watcher
	onReloadError func(error)
}

// NewWatcher creates a catalog watcher. onReloadError may be nil.
func NewWatcher(reg *Registry, path string, log *logrus.Logger, onReloadError func(error)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the parent directory so editor rename-replace writes are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	return &Watcher{
		registry:      reg,
		path:          path,
		log:           log,
		watcher:       watcher,
		onReloadError: onReloadError,
	}, nil
}

// Start blocks processing filesystem events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.log.WithField("path", w.path).Info("Watching agent catalog")

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("Catalog watcher error")
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if err := w.registry.LoadFile(w.path); err != nil {
		w.log.WithError(err).WithField("path", w.path).Error("Agent catalog reload failed, keeping previous catalog")
		if w.onReloadError != nil {
			w.onReloadError(err)
		}
		return
	}
	w.log.WithField("agents", len(w.registry.List())).Info("Agent catalog reloaded")
}
