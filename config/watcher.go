package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

type watcherLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopWatcherLogger struct{}

func (nopWatcherLogger) Info(string, ...any)  {}
func (nopWatcherLogger) Error(string, ...any) {}

// Watcher reloads the config file when it changes on disk and hands each
// valid result to the OnChange callbacks.
//
// The parent directory is watched rather than the file so editors that
// save by renaming a temp file over the original are still seen.
type Watcher struct {
	loader    *Loader
	path      string
	overrides map[string]interface{}
	debounce  time.Duration
	logger    watcherLogger
	fs        *fsnotify.Watcher

	mu        sync.RWMutex
	callbacks []func(*Config)
	running   bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the file must stay quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger for reload results.
func WithWatcherLogger(l watcherLogger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOverrides reapplies the command line overrides on every reload.
func WithOverrides(overrides map[string]interface{}) WatcherOption {
	return func(w *Watcher) { w.overrides = overrides }
}

// NewWatcher creates a watcher for configPath.
func NewWatcher(configPath string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if configPath == "" {
		return nil, errors.New("config path is required for watching")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		loader:   loader,
		path:     filepath.Clean(configPath),
		debounce: defaultDebounce,
		logger:   nopWatcherLogger{},
		fs:       fsw,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch blocks until ctx is done or Stop is called. A burst of events is
// collapsed into one reload after the debounce interval.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if _, err := os.Stat(w.path); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", w.path, err)
	}
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", w.path, err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}
		case <-timer.C:
			w.reloadConfig(ctx)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// reloadConfig loads the file and runs the callbacks in registration
// order. An invalid file is logged and the callbacks are skipped.
func (w *Watcher) reloadConfig(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cfg, err := w.loader.Load(w.path, w.overrides)
	if err != nil {
		w.logger.Error("failed to reload config", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)

	w.mu.RLock()
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.RUnlock()
	for _, cb := range callbacks {
		w.notify(cb, cfg)
	}
}

func (w *Watcher) notify(cb func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("config callback panic", "panic", r)
		}
	}()
	cb(cfg)
}

// OnChange registers a callback for reloaded configs. Callbacks run on
// the Watch goroutine and should not block.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Stop ends Watch and releases the fsnotify handle. It is safe to call
// more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fs.Close()
	})
	return err
}

// IsRunning reports whether Watch is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// ConfigPath returns the watched file.
func (w *Watcher) ConfigPath() string {
	return w.path
}

// HotReloadableConfig contains configuration values that can be hot-reloaded.
type HotReloadableConfig struct {
	LogLevel         string
	LogFormat        string
	DefaultProvider  string
	DefaultModel     string
	Temperature      float64
	HistoryLimit     int
	RAGEnabled       bool
	Learn            bool
	MaxContextTokens int
}

// ExtractHotReloadable extracts hot-reloadable values from Config.
func ExtractHotReloadable(cfg *Config) HotReloadableConfig {
	return HotReloadableConfig{
		LogLevel:         cfg.Log.Level,
		LogFormat:        cfg.Log.Format,
		DefaultProvider:  cfg.Chat.DefaultProvider,
		DefaultModel:     cfg.Chat.DefaultModel,
		Temperature:      cfg.Chat.Temperature,
		HistoryLimit:     cfg.Chat.HistoryLimit,
		RAGEnabled:       cfg.Chat.RAGEnabled,
		Learn:            cfg.Chat.Learn,
		MaxContextTokens: cfg.RAG.MaxContextTokens,
	}
}

// Changed checks if hot-reloadable configuration has changed.
func (h HotReloadableConfig) Changed(other HotReloadableConfig) bool {
	return h != other
}
