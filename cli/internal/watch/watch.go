// Package watch provides file watching functionality for schema changes.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/internal/debug"
)

// Debounce is how long a file must stay unchanged before the callback runs.
var Debounce = 500 * time.Millisecond

var log = debug.New("prisma:cli:watch")

// Watcher watches a file for changes
type Watcher struct {
	file     string
	callback func() error
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a new file watcher
func NewWatcher(file string, callback func() error) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}

	absPath, err := filepath.Abs(file)
	if err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "failed to get absolute path")
	}

	// editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "failed to watch directory")
	}

	return &Watcher{
		file:     absPath,
		callback: callback,
		watcher:  watcher,
	}, nil
}

// Run calls the callback after each burst of changes to the file until ctx
// is done. Callback errors are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	debounceTimer := time.NewTimer(Debounce)
	debounceTimer.Stop()
	var debounceCh <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if eventPath, err := filepath.Abs(event.Name); err == nil && eventPath == w.file {
				debounceTimer.Reset(Debounce)
				debounceCh = debounceTimer.C
			}

		case <-debounceCh:
			debounceCh = nil
			if err := w.callback(); err != nil {
				log.Warn("watch callback failed", zap.String("file", w.file), zap.Error(err))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}
