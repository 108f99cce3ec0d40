package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestNewWatcher(t *testing.T) {
	loader := NewLoader()

	t.Run("valid config path", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, loader)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		if watcher.ConfigPath() != configPath {
			t.Errorf("expected config path %s, got %s", configPath, watcher.ConfigPath())
		}
	})

	t.Run("empty config path", func(t *testing.T) {
		if _, err := NewWatcher("", loader); err == nil {
			t.Fatal("expected error for empty config path")
		}
	})

	t.Run("with debounce option", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, loader, WithDebounce(100*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		if watcher.debounce != 100*time.Millisecond {
			t.Errorf("expected debounce 100ms, got %v", watcher.debounce)
		}
	})
}

func TestWatcher_Watch(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "chat:\n  default_model: llama3.2\nlog:\n  level: info\n")

	watcher, err := NewWatcher(configPath, NewLoader())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	reloaded := make(chan *Config, 4)
	watcher.OnChange(func(cfg *Config) {
		reloaded <- cfg
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go watcher.Watch(ctx)

	// Wait a bit for watcher to start
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, configPath, "chat:\n  default_model: qwen2.5\nlog:\n  level: debug\n")

	for {
		select {
		case cfg := <-reloaded:
			if cfg.Chat.DefaultModel == "qwen2.5" {
				if cfg.Log.Level != "debug" {
					t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
				}
				return
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for config reload")
		}
	}
}

func TestWatcher_OnChange(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "app:\n  name: test\n")

	watcher, err := NewWatcher(configPath, NewLoader())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	watcher.OnChange(func(cfg *Config) { wg.Done() })
	watcher.OnChange(func(cfg *Config) { wg.Done() })

	watcher.reloadConfig(context.Background())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected both callbacks to run")
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Info(msg string, args ...any) {}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func TestWatcher_InvalidReloadKeepsCallbacksQuiet(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "rag:\n  chunk_size: 0\n")

	logger := &recordingLogger{}
	watcher, err := NewWatcher(configPath, NewLoader(), WithWatcherLogger(logger))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	called := make(chan struct{}, 1)
	watcher.OnChange(func(cfg *Config) { called <- struct{}{} })
	watcher.reloadConfig(context.Background())

	select {
	case <-called:
		t.Fatal("callback must not run for an invalid config")
	case <-time.After(100 * time.Millisecond):
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 || logger.errors[0] != "failed to reload config" {
		t.Errorf("expected one reload error, got %v", logger.errors)
	}
}

func TestWatcher_Stop(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "app:\n  name: test\n")

	watcher, err := NewWatcher(configPath, NewLoader())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	go watcher.Watch(context.Background())

	// Wait for watcher to start
	time.Sleep(100 * time.Millisecond)
	if !watcher.IsRunning() {
		t.Error("expected watcher to be running")
	}

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	// Wait for watcher to stop
	time.Sleep(100 * time.Millisecond)
	if watcher.IsRunning() {
		t.Error("expected watcher to not be running after Stop")
	}
}

func TestWatcher_RenameOverAndOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, configPath, "chat:\n  default_model: llama3.2\n")

	watcher, err := NewWatcher(configPath, NewLoader(),
		WithDebounce(50*time.Millisecond),
		WithOverrides(map[string]interface{}{"server.port": 9393}))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	reloaded := make(chan *Config, 4)
	watcher.OnChange(func(cfg *Config) { reloaded <- cfg })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go watcher.Watch(ctx)
	time.Sleep(100 * time.Millisecond)

	// Editors often save by writing a sibling file and renaming it over.
	tmp := filepath.Join(dir, ".config.yaml.swp")
	writeConfig(t, tmp, "chat:\n  default_model: mistral\n")
	if err := os.Rename(tmp, configPath); err != nil {
		t.Fatalf("rename: %v", err)
	}

	for {
		select {
		case cfg := <-reloaded:
			if cfg.Chat.DefaultModel != "mistral" {
				continue
			}
			if cfg.Server.Port != 9393 {
				t.Errorf("override lost on reload: port %d", cfg.Server.Port)
			}
			return
		case <-ctx.Done():
			t.Fatal("timed out waiting for config reload")
		}
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "app:\n  name: test\n")

	watcher, err := NewWatcher(configPath, NewLoader())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op, got %v", err)
	}
}

func TestWatcher_NonExistentFile(t *testing.T) {
	watcher, err := NewWatcher("/nonexistent/config.yaml", NewLoader())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := watcher.Watch(ctx); err == nil {
		t.Error("expected error when watching non-existent file")
	}
}

func TestHotReloadableConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "debug"
	cfg.Chat.DefaultModel = "qwen2.5"
	cfg.Chat.RAGEnabled = false
	cfg.RAG.MaxContextTokens = 500

	hot := ExtractHotReloadable(cfg)
	if hot.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", hot.LogLevel)
	}
	if hot.DefaultModel != "qwen2.5" {
		t.Errorf("expected default model 'qwen2.5', got '%s'", hot.DefaultModel)
	}
	if hot.RAGEnabled {
		t.Error("expected rag disabled")
	}
	if hot.MaxContextTokens != 500 {
		t.Errorf("expected max context tokens 500, got %d", hot.MaxContextTokens)
	}

	if hot.Changed(ExtractHotReloadable(cfg)) {
		t.Error("expected identical configs to be unchanged")
	}
	other := *cfg
	other.Chat.Temperature = 0.1
	if !hot.Changed(ExtractHotReloadable(&other)) {
		t.Error("expected temperature change to be detected")
	}
}
