package shardstore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher invalidates cached shards when the backing files of a DirSource
// change. It only makes sense for the dir source, where a developer edits
// shard files in place; published object-storage shards are immutable.
type Watcher struct {
	watcher *fsnotify.Watcher
	store   *Store
	logger  *zap.Logger
	done    chan struct{}
}

// NewWatcher starts watching the source directory. Close releases the
// watcher.
func NewWatcher(source *DirSource, store *Store, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(source.Dir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", source.Dir(), err)
	}

	w := &Watcher{
		watcher: fw,
		store:   store,
		logger:  logger.Named("shardwatch"),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			base := filepath.Base(event.Name)
			if !strings.HasSuffix(base, ".json") {
				continue
			}
			name := strings.TrimSuffix(base, ".json")
			w.store.Invalidate(name)
			w.logger.Info("shard file changed, cache invalidated",
				zap.String("shard", name),
				zap.String("op", event.Op.String()))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
