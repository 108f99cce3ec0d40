package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "tc",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    180 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 15 * time.Second,
				RequestTimeout:  150 * time.Second,
				MaxHeaderBytes:  1 << 20,  // 1MB
				MaxUploadBytes:  10 << 20, // 10MB
			},
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
				ExposedHeaders: []string{"X-Request-ID"},
				MaxAge:         300,
			},
			WebSocket: WebSocketConfig{
				Enabled:        true,
				MaxConnections: 100,
				PingInterval:   30 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        true,
				ValueLogFileSize:  1 << 28, // 256MB
				NumVersionsToKeep: 1,
			},
			Redis: RedisConfig{
				Address:     "localhost:6379",
				DB:          0,
				KeyPrefix:   "tc",
				DialTimeout: 5 * time.Second,
			},
			SQLite: SQLiteConfig{
				Path: "./data/tc.db",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "parentbased_traceidratio",
			SampleRate: 0.1,
		},
		RAG: RAGConfig{
			ChunkSize:        500,
			ChunkOverlap:     100,
			SearchTopK:       5,
			ContextTopK:      10,
			MaxContextTokens: 2000,
		},
		Memory: MemoryConfig{
			MaxFacts:      100,
			PruneTo:       80,
			RecallLimit:   5,
			ContextLimit:  3,
			RecencyWindow: 30 * 24 * time.Hour,
		},
		Chat: ChatConfig{
			DefaultProvider: "ollama",
			DefaultModel:    "llama3.2",
			Temperature:     0.7,
			Timeout:         120 * time.Second,
			MaxRetries:      2,
			RateLimit:       0,
			RateBurst:       1,
			HistoryLimit:    10,
			RAGEnabled:      true,
			Learn:           true,
			Providers: ProvidersConfig{
				Ollama:   EndpointConfig{Endpoint: "http://localhost:11434"},
				LMStudio: EndpointConfig{Endpoint: "http://localhost:1234"},
			},
		},
		Models: ModelsConfig{
			AutoRefresh:     true,
			RefreshInterval: 5 * time.Minute,
			DetectTimeout:   5 * time.Second,
		},
	}
}
