package rbac

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chitragupt/chitragupt/pkg/observability"
)

// debounce window for editors that write a file in several events
const watchDebounce = 250 * time.Millisecond

// RulesWatcher reloads the rules document when it changes on disk, so
// operators can edit role grants without a restart. A malformed edit is
// logged and the previous rules stay live.
type RulesWatcher struct {
	store  *Store
	engine *Engine
	logger *observability.Logger
}

func NewRulesWatcher(store *Store, engine *Engine, logger *observability.Logger) *RulesWatcher {
	return &RulesWatcher{store: store, engine: engine, logger: logger}
}

// Run watches the rules file until ctx is done. Watching the parent
// directory rather than the file itself survives atomic rename-in-place
// writes, which replace the inode the file watcher would otherwise hold.
func (w *RulesWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path := w.store.RulesPath()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	w.logger.WithField("path", path).Info("watching role rules for changes")

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := w.store.ReloadRules(); err != nil {
				w.logger.WithError(err).Error("rules reload failed, keeping previous rules")
				continue
			}
			w.engine.InvalidateCache()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("rules watcher error")
		}
	}
}
