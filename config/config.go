// Package config provides configuration management for tc.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for tc.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage is the persistence configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// RAG is the document index configuration.
	RAG RAGConfig `mapstructure:"rag"`

	// Memory is the agent memory configuration.
	Memory MemoryConfig `mapstructure:"memory"`

	// Chat is the chat provider and agent configuration.
	Chat ChatConfig `mapstructure:"chat"`

	// Models is the local model detection configuration.
	Models ModelsConfig `mapstructure:"models"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`

	// WebSocket is the event stream configuration.
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	// Streaming chat responses are bounded by it.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout bounds one API request, chat calls included.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`

	// MaxUploadBytes limits document uploads.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"min=0"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// WebSocketConfig holds the /ws settings.
type WebSocketConfig struct {
	// Enabled mounts the /ws endpoint.
	Enabled bool `mapstructure:"enabled"`

	// MaxConnections caps concurrent clients. Zero means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// PingInterval is the keepalive ping period.
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Type is the storage backend (noop, memory, badger, redis, sqlite).
	Type string `mapstructure:"type" validate:"oneof=noop memory badger redis sqlite"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`

	// Redis is the Redis configuration.
	Redis RedisConfig `mapstructure:"redis"`

	// SQLite is the SQLite configuration.
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password" redact:"true"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// KeyPrefix namespaces every key.
	KeyPrefix string `mapstructure:"key_prefix"`

	// DialTimeout bounds the initial connection.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `mapstructure:"path"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers" redact:"true"`

	// Timeout bounds one export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is always_on, always_off or parentbased_traceidratio.
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// RAGConfig holds document index settings.
type RAGConfig struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `mapstructure:"chunk_size" validate:"min=1"`

	// ChunkOverlap is the number of trailing characters carried into the next chunk.
	ChunkOverlap int `mapstructure:"chunk_overlap" validate:"min=0,ltfield=ChunkSize"`

	// SearchTopK is the default number of search results.
	SearchTopK int `mapstructure:"search_top_k" validate:"min=1"`

	// ContextTopK is the number of candidates considered for a context block.
	ContextTopK int `mapstructure:"context_top_k" validate:"min=1"`

	// MaxContextTokens bounds a context block in whitespace tokens.
	MaxContextTokens int `mapstructure:"max_context_tokens" validate:"min=1"`
}

// MemoryConfig holds long-term memory settings.
type MemoryConfig struct {
	// MaxFacts is the cap above which the store is pruned.
	MaxFacts int `mapstructure:"max_facts" validate:"min=1"`

	// PruneTo is the number of facts kept by a prune.
	PruneTo int `mapstructure:"prune_to" validate:"min=1,ltefield=MaxFacts"`

	// RecallLimit is the default number of recalled facts.
	RecallLimit int `mapstructure:"recall_limit" validate:"min=1"`

	// ContextLimit is the number of facts in a memory context block.
	ContextLimit int `mapstructure:"context_limit" validate:"min=1"`

	// RecencyWindow is the age at which the recency boost reaches zero.
	RecencyWindow time.Duration `mapstructure:"recency_window"`
}

// ChatConfig holds chat provider and agent settings.
type ChatConfig struct {
	// DefaultProvider is used by agents without their own provider.
	DefaultProvider string `mapstructure:"default_provider" validate:"oneof=ollama lmstudio openai groq"`

	// DefaultModel is used by agents without their own model.
	DefaultModel string `mapstructure:"default_model" validate:"required"`

	// Temperature is the default sampling temperature.
	Temperature float64 `mapstructure:"temperature" validate:"min=0,max=2"`

	// Timeout bounds one provider call.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxRetries is the number of retries of rate-limit and server errors.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0,max=10"`

	// RateLimit paces provider calls in requests per second. Zero disables it.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`

	// RateBurst is the burst allowed by the rate limiter.
	RateBurst int `mapstructure:"rate_burst" validate:"min=0"`

	// HistoryLimit is the number of past messages sent with each request.
	HistoryLimit int `mapstructure:"history_limit" validate:"min=0"`

	// RAGEnabled adds document context to user messages.
	RAGEnabled bool `mapstructure:"rag_enabled"`

	// Learn extracts facts from every exchange.
	Learn bool `mapstructure:"learn"`

	// Agents holds per-agent overrides keyed by agent name.
	Agents map[string]AgentConfig `mapstructure:"agents" validate:"dive,keys,agent_name,endkeys"`

	// Providers holds the provider connection settings.
	Providers ProvidersConfig `mapstructure:"providers"`
}

// AgentConfig overrides the chat defaults for one agent.
type AgentConfig struct {
	Provider    string  `mapstructure:"provider" validate:"omitempty,oneof=ollama lmstudio openai groq"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature" validate:"min=0,max=2"`
}

// ProvidersConfig holds the connection settings of every provider.
type ProvidersConfig struct {
	Ollama   EndpointConfig `mapstructure:"ollama"`
	LMStudio EndpointConfig `mapstructure:"lmstudio"`
	OpenAI   APIKeyConfig   `mapstructure:"openai"`
	Groq     APIKeyConfig   `mapstructure:"groq"`
}

// EndpointConfig locates a local provider.
type EndpointConfig struct {
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
}

// APIKeyConfig authenticates a hosted provider.
type APIKeyConfig struct {
	APIKey string `mapstructure:"api_key" redact:"true"`
}

// ModelsConfig holds local model detection settings.
type ModelsConfig struct {
	// AutoRefresh re-probes the local servers periodically.
	AutoRefresh bool `mapstructure:"auto_refresh"`

	// RefreshInterval is the probe period.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// DetectTimeout bounds one probe.
	DetectTimeout time.Duration `mapstructure:"detect_timeout"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Storage: %s, Provider: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Storage.Type, c.Chat.DefaultProvider)
}
