package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RuFFyGTLP/TC/pkg/agent"
	"github.com/RuFFyGTLP/TC/pkg/chat"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.App.Name != "tc" {
		t.Errorf("expected app name 'tc', got %s", cfg.App.Name)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("expected storage type 'memory', got %s", cfg.Storage.Type)
	}
	if cfg.RAG.ChunkSize != 500 || cfg.RAG.ChunkOverlap != 100 {
		t.Errorf("expected chunking 500/100, got %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.Memory.MaxFacts != 100 || cfg.Memory.PruneTo != 80 {
		t.Errorf("expected memory cap 100/80, got %d/%d", cfg.Memory.MaxFacts, cfg.Memory.PruneTo)
	}
	if cfg.Chat.DefaultProvider != chat.ProviderOllama {
		t.Errorf("expected default provider ollama, got %s", cfg.Chat.DefaultProvider)
	}
	if cfg.Chat.Providers.Ollama.Endpoint != chat.DefaultOllamaEndpoint {
		t.Errorf("expected ollama endpoint %s, got %s", chat.DefaultOllamaEndpoint, cfg.Chat.Providers.Ollama.Endpoint)
	}
	if cfg.Models.RefreshInterval != 5*time.Minute {
		t.Errorf("expected refresh interval 5m, got %v", cfg.Models.RefreshInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{"valid config", func(cfg *Config) {}, false},
		{"missing app name", func(cfg *Config) { cfg.App.Name = "" }, true},
		{"invalid port", func(cfg *Config) { cfg.Server.Port = 99999 }, true},
		{"invalid log level", func(cfg *Config) { cfg.Log.Level = "trace" }, true},
		{"invalid environment", func(cfg *Config) { cfg.App.Environment = "invalid" }, true},
		{"invalid storage type", func(cfg *Config) { cfg.Storage.Type = "postgres" }, true},
		{"overlap not below chunk size", func(cfg *Config) { cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize }, true},
		{"zero chunk size", func(cfg *Config) { cfg.RAG.ChunkSize = 0 }, true},
		{"prune above cap", func(cfg *Config) { cfg.Memory.PruneTo = cfg.Memory.MaxFacts + 1 }, true},
		{"unknown provider", func(cfg *Config) { cfg.Chat.DefaultProvider = "anthropic" }, true},
		{"temperature too high", func(cfg *Config) { cfg.Chat.Temperature = 2.5 }, true},
		{"missing model", func(cfg *Config) { cfg.Chat.DefaultModel = "" }, true},
		{"invalid endpoint", func(cfg *Config) { cfg.Chat.Providers.Ollama.Endpoint = "not a url" }, true},
		{"empty endpoint", func(cfg *Config) { cfg.Chat.Providers.LMStudio.Endpoint = "" }, false},
		{"invalid tracing exporter", func(cfg *Config) { cfg.Tracing.Exporter = "zipkin" }, true},
		{"sample rate above one", func(cfg *Config) { cfg.Tracing.SampleRate = 1.5 }, true},
		{"known agent override", func(cfg *Config) {
			cfg.Chat.Agents = map[string]AgentConfig{agent.Implementador: {Provider: chat.ProviderGroq}}
		}, false},
		{"unknown agent override", func(cfg *Config) {
			cfg.Chat.Agents = map[string]AgentConfig{"tester": {Model: "x"}}
		}, true},
		{"invalid agent provider", func(cfg *Config) {
			cfg.Chat.Agents = map[string]AgentConfig{agent.Orquestador: {Provider: "bard"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "server.port", Message: "must be at most 65535", Value: 99999},
		{Field: "log.level", Message: "must be one of [debug info warn error]", Value: "trace"},
	}

	errMsg := errs.Error()
	if !strings.HasPrefix(errMsg, "configuration validation failed:\n") {
		t.Errorf("unexpected header: %q", errMsg)
	}
	if !strings.Contains(errMsg, "  - server.port: must be at most 65535 (got 99999)\n") {
		t.Errorf("expected port detail, got %q", errMsg)
	}
	if (ValidationErrors{}).Error() != "no validation errors" {
		t.Error("expected empty message for no errors")
	}
}

func TestConfig_String(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chat.Providers.OpenAI.APIKey = "sk-secret"

	s := cfg.String()
	if s != "Config{App: tc, Server: :8080, Env: development, Storage: memory, Provider: ollama}" {
		t.Errorf("unexpected string: %s", s)
	}
}

func TestLoader_Get(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.Load("", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if loader.Get("app.name") == nil {
		t.Error("expected non-nil value for app.name")
	}
	if str := loader.GetString("chat.default_model"); str != "llama3.2" {
		t.Errorf("expected 'llama3.2', got '%s'", str)
	}
	if loader.Print() == "" {
		t.Error("expected non-empty print output")
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.App.Name != "tc" {
		t.Errorf("expected defaults, got app name %q", cfg.App.Name)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, `
app:
  name: yaml-test
  environment: production
server:
  port: 9999
  http:
    write_timeout: 5m
log:
  level: debug
  format: text
storage:
  type: sqlite
  sqlite:
    path: /tmp/tc.db
rag:
  chunk_size: 800
chat:
  default_provider: groq
  default_model: llama-3.1-8b-instant
  agents:
    implementador:
      provider: ollama
      model: qwen2.5-coder
      temperature: 0.2
`)

	cfg, err := NewLoader().Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "yaml-test" {
		t.Errorf("expected 'yaml-test', got '%s'", cfg.App.Name)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected 9999, got %d", cfg.Server.Port)
	}
	if cfg.Server.HTTP.WriteTimeout != 5*time.Minute {
		t.Errorf("expected write timeout 5m, got %v", cfg.Server.HTTP.WriteTimeout)
	}
	if cfg.Server.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("expected default read timeout to survive, got %v", cfg.Server.HTTP.ReadTimeout)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLite.Path != "/tmp/tc.db" {
		t.Errorf("unexpected storage: %+v", cfg.Storage)
	}
	if cfg.RAG.ChunkSize != 800 || cfg.RAG.ChunkOverlap != 100 {
		t.Errorf("expected chunking 800/100, got %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.Chat.DefaultProvider != chat.ProviderGroq {
		t.Errorf("expected groq, got %s", cfg.Chat.DefaultProvider)
	}
	impl, ok := cfg.Chat.Agents[agent.Implementador]
	if !ok {
		t.Fatal("expected implementador override")
	}
	if impl.Model != "qwen2.5-coder" || impl.Temperature != 0.2 {
		t.Errorf("unexpected override: %+v", impl)
	}
}

func TestLoader_LoadJSONFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, configPath, `{
		"app": {"name": "json-test", "environment": "staging"},
		"server": {"port": 8888},
		"log": {"level": "warn"}
	}`)

	cfg, err := NewLoader().Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.App.Name != "json-test" {
		t.Errorf("expected 'json-test', got '%s'", cfg.App.Name)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("expected 8888, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected 'warn', got '%s'", cfg.Log.Level)
	}
}

func TestLoader_LoadTOMLFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, configPath, `
[server]
port = 7070

[memory]
max_facts = 50
prune_to = 40
recency_window = "72h"

[chat.providers.lmstudio]
endpoint = "http://127.0.0.1:1235"
`)

	cfg, err := NewLoader().Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected 7070, got %d", cfg.Server.Port)
	}
	if cfg.Memory.MaxFacts != 50 || cfg.Memory.PruneTo != 40 {
		t.Errorf("expected memory cap 50/40, got %d/%d", cfg.Memory.MaxFacts, cfg.Memory.PruneTo)
	}
	if cfg.Memory.RecencyWindow != 72*time.Hour {
		t.Errorf("expected recency window 72h, got %v", cfg.Memory.RecencyWindow)
	}
	if cfg.Chat.Providers.LMStudio.Endpoint != "http://127.0.0.1:1235" {
		t.Errorf("unexpected lmstudio endpoint %s", cfg.Chat.Providers.LMStudio.Endpoint)
	}
}

func TestLoader_LoadInvalidFile(t *testing.T) {
	if _, err := NewLoader().Load("/nonexistent/config.yaml", nil); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoader_LoadUnsupportedFormat(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.ini")
	writeConfig(t, configPath, "app=test")

	if _, err := NewLoader().Load(configPath, nil); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoader_ValidationDetails(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "rag:\n  chunk_size: 50\n")

	_, err := NewLoader().Load(configPath, nil)
	var details ValidationErrors
	if !errors.As(err, &details) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(details) != 1 || details[0].Field != "Config.RAG.ChunkOverlap" {
		t.Fatalf("expected one overlap error, got %v", details)
	}
	if details[0].Message != "must be less than ChunkSize" {
		t.Errorf("unexpected message %q", details[0].Message)
	}
}

func TestLoader_EnvVars(t *testing.T) {
	t.Setenv("TC_SERVER__PORT", "7777")
	t.Setenv("TC_LOG__LEVEL", "error")
	t.Setenv("TC_RAG__CHUNK_SIZE", "900")
	t.Setenv("TC_CHAT__PROVIDERS__GROQ__API_KEY", "gsk_live")

	cfg, err := NewLoader().Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected 7777, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected 'error', got '%s'", cfg.Log.Level)
	}
	if cfg.RAG.ChunkSize != 900 {
		t.Errorf("expected chunk size 900, got %d", cfg.RAG.ChunkSize)
	}
	if cfg.Chat.Providers.Groq.APIKey != "gsk_live" {
		t.Errorf("expected groq key from env, got %q", cfg.Chat.Providers.Groq.APIKey)
	}
}

func TestLoader_EnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	writeConfig(t, envPath, `# provider settings
OLLAMA_ENDPOINT=http://ollama.internal:11434
OPENAI_API_KEY=sk-...
GROQ_API_KEY=gsk_real
DEFAULT_PROVIDER=groq
DEFAULT_MODEL=
`)

	cfg, err := NewLoader(WithEnvFile(envPath)).Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chat.Providers.Ollama.Endpoint != "http://ollama.internal:11434" {
		t.Errorf("unexpected ollama endpoint %s", cfg.Chat.Providers.Ollama.Endpoint)
	}
	if cfg.Chat.Providers.OpenAI.APIKey != "" {
		t.Errorf("placeholder key must be ignored, got %q", cfg.Chat.Providers.OpenAI.APIKey)
	}
	if cfg.Chat.Providers.Groq.APIKey != "gsk_real" {
		t.Errorf("expected groq key, got %q", cfg.Chat.Providers.Groq.APIKey)
	}
	if cfg.Chat.DefaultProvider != chat.ProviderGroq {
		t.Errorf("expected groq, got %s", cfg.Chat.DefaultProvider)
	}
	if cfg.Chat.DefaultModel != "llama3.2" {
		t.Errorf("empty model must keep the default, got %q", cfg.Chat.DefaultModel)
	}
}

func TestLoader_EnvFileMissing(t *testing.T) {
	_, err := NewLoader(WithEnvFile(filepath.Join(t.TempDir(), "missing.env"))).Load("", nil)
	if err == nil {
		t.Error("expected error for a missing env file")
	}
}

func TestLoader_Precedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, configPath, "chat:\n  default_model: from-file\nserver:\n  port: 8001\n")
	envPath := filepath.Join(dir, ".env")
	writeConfig(t, envPath, "DEFAULT_MODEL=from-dotenv\n")
	t.Setenv("TC_SERVER__PORT", "8002")

	loader := NewLoader(WithEnvFile(envPath))
	cfg, err := loader.Load(configPath, map[string]interface{}{"log.level": "debug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chat.DefaultModel != "from-dotenv" {
		t.Errorf("expected .env to override the file, got %s", cfg.Chat.DefaultModel)
	}
	if cfg.Server.Port != 8002 {
		t.Errorf("expected env to override the file, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected override, got %s", cfg.Log.Level)
	}

	// A reload with nil overrides keeps the previous ones.
	writeConfig(t, configPath, "log:\n  level: warn\n")
	cfg, err = loader.Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected overrides to survive a reload, got %s", cfg.Log.Level)
	}
	if cfg.Chat.DefaultModel != "from-dotenv" {
		t.Errorf("expected fresh load, got %s", cfg.Chat.DefaultModel)
	}
}

func TestDump(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chat.Providers.OpenAI.APIKey = "sk-secret"
	cfg.Storage.Redis.Password = "hunter2"
	cfg.Tracing.Headers = map[string]string{"authorization": "Bearer abc"}

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Dump(cfg, &buf, "yaml"); err != nil {
			t.Fatalf("Dump failed: %v", err)
		}
		out := buf.String()
		for _, secret := range []string{"sk-secret", "hunter2", "Bearer abc"} {
			if strings.Contains(out, secret) {
				t.Errorf("dump leaks %q", secret)
			}
		}
		if !strings.Contains(out, "read_timeout: 30s") {
			t.Errorf("expected durations as strings, got:\n%s", out)
		}
		if !strings.Contains(out, "authorization:") {
			t.Error("expected redacted header names to stay visible")
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Dump(cfg, &buf, "json"); err != nil {
			t.Fatalf("Dump failed: %v", err)
		}
		var tree map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &tree); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		key := tree["chat"].(map[string]interface{})["providers"].(map[string]interface{})["openai"].(map[string]interface{})["api_key"]
		if key != redacted {
			t.Errorf("expected redacted key, got %v", key)
		}
		groq := tree["chat"].(map[string]interface{})["providers"].(map[string]interface{})["groq"].(map[string]interface{})["api_key"]
		if groq != "" {
			t.Errorf("empty secrets stay empty, got %v", groq)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dump.toml")
		f, err := os.Create(path)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := Dump(DefaultConfig(), f, "toml"); err != nil {
			t.Fatalf("Dump failed: %v", err)
		}
		f.Close()

		loaded, err := NewLoader().Load(path, nil)
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if loaded.Server.HTTP.WriteTimeout != 180*time.Second {
			t.Errorf("expected write timeout 3m, got %v", loaded.Server.HTTP.WriteTimeout)
		}
		if loaded.Memory.RecencyWindow != 30*24*time.Hour {
			t.Errorf("expected recency window 720h, got %v", loaded.Memory.RecencyWindow)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		if err := Dump(cfg, &bytes.Buffer{}, "xml"); err == nil {
			t.Error("expected error for xml")
		}
	})
}

func TestAdapters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chat.Providers.Groq.APIKey = "gsk_x"
	cfg.Chat.RateLimit = 2
	cfg.Chat.Agents = map[string]AgentConfig{
		agent.Implementador: {Provider: chat.ProviderGroq, Model: "m", Temperature: 0.1},
	}

	reg := cfg.Chat.ToRegistryConfig()
	if reg.Groq.APIKey != "gsk_x" || reg.Ollama.Endpoint != chat.DefaultOllamaEndpoint {
		t.Errorf("unexpected registry config: %+v", reg)
	}
	if reg.Retry.MaxRetries != 2 || reg.Retry.RequestsPerSecond != 2 {
		t.Errorf("unexpected retry policy: %+v", reg.Retry)
	}

	ac := cfg.ToAgentConfig()
	if ac.HistoryWindow != 10 || ac.MaxContextTokens != 2000 || !ac.RAGEnabled || !ac.Learn {
		t.Errorf("unexpected agent config: %+v", ac)
	}
	if ac.Agents[agent.Implementador] != (agent.Settings{Provider: chat.ProviderGroq, Model: "m", Temperature: 0.1}) {
		t.Errorf("unexpected agent settings: %+v", ac.Agents)
	}

	mc := cfg.Memory.ToMemoryConfig()
	if mc.MaxFacts != 100 || mc.RecencyWindow != 30*24*time.Hour {
		t.Errorf("unexpected memory config: %+v", mc)
	}

	if n := len(cfg.RAG.IndexOptions()); n != 2 {
		t.Errorf("expected 2 index options, got %d", n)
	}

	dc := cfg.Models.ToDetectorConfig()
	if dc.Interval != 5*time.Minute || dc.Timeout != 5*time.Second {
		t.Errorf("unexpected detector config: %+v", dc)
	}
}
