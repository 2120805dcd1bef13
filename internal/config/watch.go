package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc receives the reloaded configuration, or the error that made the
// new file unusable. On error the caller should keep its current settings.
type ReloadFunc func(cfg Config, err error)

// Watcher reloads a configuration file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc
	fs       *fsnotify.Watcher
}

// NewWatcher watches the directory holding path rather than the file itself,
// since editors often replace the file instead of writing it in place.
func NewWatcher(path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if onReload == nil {
		return nil, errors.New("config: watcher needs a reload callback")
	}
	if _, err := DetectFormat(path); err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("config: watch %s: %w", dir, err), fw.Close())
	}

	return &Watcher{
		path:     path,
		debounce: debounce,
		onReload: onReload,
		fs:       fw,
	}, nil
}

// Run delivers reloads until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	name := filepath.Base(w.path)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.onReload(Config{}, fmt.Errorf("config: watch %s: %w", w.path, err))

		case <-timer.C:
			w.onReload(Load(w.path))
		}
	}
}
