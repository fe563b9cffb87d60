package config

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/moolen/faultline/internal/logging"
)

// ReloadFunc applies a changed rules file. An error keeps the previous rules.
type ReloadFunc func(path string) error

// RulesWatcher reloads the rules file when it changes. Bursts of events from editors
// and atomic renames are coalesced by a debounce timer. It implements
// lifecycle.Component.
type RulesWatcher struct {
	path     string
	debounce time.Duration
	reload   ReloadFunc
	logger   *logging.Logger

	mu      sync.Mutex
	timer   *time.Timer
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewRulesWatcher creates a watcher for path.
func NewRulesWatcher(path string, debounceMillis int, reload ReloadFunc) (*RulesWatcher, error) {
	if path == "" {
		return nil, errors.New("rules path cannot be empty")
	}
	if reload == nil {
		return nil, errors.New("reload func cannot be nil")
	}
	if debounceMillis <= 0 {
		debounceMillis = 500
	}
	return &RulesWatcher{
		path:     path,
		debounce: time.Duration(debounceMillis) * time.Millisecond,
		reload:   reload,
		logger:   logging.GetLogger("config.rules"),
	}, nil
}

// Name implements lifecycle.Component.
func (w *RulesWatcher) Name() string {
	return "rules-watcher"
}

// Start begins watching and returns once the fsnotify watch is registered.
func (w *RulesWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.stopped = make(chan struct{})
	go w.loop(loopCtx, watcher)

	w.logger.Info("Watching %s for changes (debounce %s)", w.path, w.debounce)
	return nil
}

func (w *RulesWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(w.stopped)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			// Atomic replaces unlink the watched inode.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.path); err != nil {
					w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error: %v", err)
		}
	}
}

func (w *RulesWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.apply)
}

func (w *RulesWatcher) apply() {
	if err := w.reload(w.path); err != nil {
		w.logger.Error("Rules reload failed, keeping previous rules: %v", err)
		return
	}
	w.logger.Info("Rules reloaded from %s", w.path)
}

// Stop ends the watch loop.
func (w *RulesWatcher) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
