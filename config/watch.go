package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a config file on disk and reloads an OrchestratorConfig
// whenever it changes, delivering the reloaded value on the channel Watch
// returns.
type Watcher struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewWatcher creates a Watcher for the config file at path.
func NewWatcher(path string) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	return &Watcher{path: absPath}, nil
}

// Watch starts watching the file and returns a channel of successfully
// reloaded, validated configs. Load errors triggered by a transient partial
// write are logged and skipped rather than delivered.
func (w *Watcher) Watch(ctx context.Context) (<-chan *OrchestratorConfig, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("watcher is closed")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fsw

	configDir := filepath.Dir(w.path)
	configFile := filepath.Base(w.path)
	if err := fsw.Add(configDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", configDir, err)
	}

	ch := make(chan *OrchestratorConfig, 1)
	go w.watchLoop(ctx, fsw, configFile, ch)

	slog.Info("watching config file", "path", w.path)
	return ch, nil
}

func (w *Watcher) watchLoop(ctx context.Context, fsw *fsnotify.Watcher, configFile string, ch chan<- *OrchestratorConfig) {
	defer close(ch)
	defer fsw.Close()

	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	reload := func() {
		cfg, err := LoadConfig(w.path)
		if err != nil {
			slog.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
			return
		}
		select {
		case ch <- cfg:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, reload)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
