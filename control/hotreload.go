// control/hotreload.go
// Watches the configuration file and reloads the store on change.

package control

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a ConfigStore whenever its file is written or replaced.
type Watcher struct {
	store *ConfigStore
	path  string
	w     *fsnotify.Watcher
}

// NewWatcher watches path's directory so that editors which replace the file
// by rename are still observed.
func NewWatcher(store *ConfigStore, path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	return &Watcher{store: store, path: abs, w: w}, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (rw *Watcher) Run(ctx context.Context) {
	defer rw.w.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-rw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != rw.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := rw.store.LoadFile(rw.path); err != nil {
				log.Printf("[control] reload %s: %v", rw.path, err)
			}
		case err, ok := <-rw.w.Errors:
			if !ok {
				return
			}
			log.Printf("[control] watcher: %v", err)
		}
	}
}

// Watch loads path once and keeps the store in sync until ctx is done.
func Watch(ctx context.Context, store *ConfigStore, path string) error {
	if err := store.LoadFile(path); err != nil {
		return err
	}
	rw, err := NewWatcher(store, path)
	if err != nil {
		return err
	}
	go rw.Run(ctx)
	return nil
}
