// Package watcher detects deletion of the local store file (a user wiping
// app data) and triggers reopening so the engine never runs against a
// dangling file handle. fsnotify cannot watch a non-existent file, so the
// parent data directory is watched instead.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// StoreWatcher monitors the store file and calls onDelete when it is removed.
type StoreWatcher struct {
	storePath string
	dataDir   string
	onDelete  func()
	watcher   *fsnotify.Watcher
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   bool
	debounce  time.Duration
}

// New creates a watcher for the store file at storePath.
func New(storePath string, onDelete func()) (*StoreWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &StoreWatcher{
		storePath: storePath,
		dataDir:   filepath.Dir(storePath),
		onDelete:  onDelete,
		watcher:   fsw,
		ctx:       ctx,
		cancel:    cancel,
		debounce:  100 * time.Millisecond,
	}, nil
}

// Start begins watching for deletion events.
func (w *StoreWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatch(); err != nil {
		log.Warn().Err(err).Str("path", w.dataDir).Msg("failed to add initial store watch")
		// Keep running; the loop re-establishes the watch when the
		// directory reappears.
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *StoreWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

func (w *StoreWatcher) addWatch() error {
	if _, err := os.Stat(w.dataDir); os.IsNotExist(err) {
		return err
	}
	return w.watcher.Add(w.dataDir)
}

func (w *StoreWatcher) watchLoop() {
	var (
		debounceTimer *time.Timer
		pendingDelete bool
	)

	for {
		select {
		case <-w.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			eventPath := filepath.Clean(event.Name)
			storePath := filepath.Clean(w.storePath)

			// Whole data directory removed.
			if eventPath == w.dataDir && event.Op&fsnotify.Remove != 0 {
				log.Info().Str("path", w.dataDir).Msg("data directory deleted")
				pendingDelete = true
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, w.handleDeletion)
				continue
			}

			// Store file removed.
			if eventPath == storePath && event.Op&fsnotify.Remove != 0 {
				log.Info().Str("path", w.storePath).Msg("store file deleted")
				pendingDelete = true
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, w.handleDeletion)
				continue
			}

			// Data directory recreated: re-establish the watch.
			if eventPath == w.dataDir && event.Op&fsnotify.Create != 0 {
				log.Info().Str("path", w.dataDir).Msg("data directory recreated, re-establishing watch")
				_ = w.addWatch()
				continue
			}

			// Store recreated before the debounce fired: cancel the callback.
			if pendingDelete && eventPath == storePath && event.Op&fsnotify.Create != 0 {
				log.Info().Str("path", w.storePath).Msg("store file recreated, cancelling deletion callback")
				pendingDelete = false
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("store watcher error")
		}
	}
}

func (w *StoreWatcher) handleDeletion() {
	log.Info().Str("path", w.storePath).Msg("store deleted, triggering reopen")

	if w.onDelete != nil {
		w.onDelete()
	}

	// The data directory may be recreated shortly after deletion; retry the
	// watch once it can succeed.
	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := w.addWatch(); err != nil {
			log.Warn().Err(err).Str("path", w.dataDir).Msg("failed to re-establish store watch")
		}
	}()
}
