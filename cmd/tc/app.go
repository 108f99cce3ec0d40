package main

import (
	"context"
	"fmt"
	"time"

	"github.com/RuFFyGTLP/TC/config"
	"github.com/RuFFyGTLP/TC/pkg/agent"
	"github.com/RuFFyGTLP/TC/pkg/api"
	"github.com/RuFFyGTLP/TC/pkg/api/events"
	"github.com/RuFFyGTLP/TC/pkg/api/handlers"
	"github.com/RuFFyGTLP/TC/pkg/chat"
	"github.com/RuFFyGTLP/TC/pkg/logger"
	"github.com/RuFFyGTLP/TC/pkg/memory"
	"github.com/RuFFyGTLP/TC/pkg/metrics"
	"github.com/RuFFyGTLP/TC/pkg/rag"
	"github.com/RuFFyGTLP/TC/pkg/storage"
	"github.com/RuFFyGTLP/TC/pkg/storage/badger"
	memstore "github.com/RuFFyGTLP/TC/pkg/storage/memory"
	"github.com/RuFFyGTLP/TC/pkg/storage/noop"
	"github.com/RuFFyGTLP/TC/pkg/storage/redis"
	"github.com/RuFFyGTLP/TC/pkg/storage/sqlite"
)

// app owns every long-lived component of the service.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	backend storage.Backend
	metrics *metrics.Manager
	bus     *events.Broadcaster

	index    *rag.Index
	memory   *memory.Store
	history  *chat.History
	registry *chat.Registry
	service  *agent.Service
	detector *chat.Detector

	health *handlers.HealthHandler
	ws     *handlers.WebSocketHandler
	server *api.HTTPServer
}

// openStorage opens the backend selected by cfg.Storage.Type.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Type {
	case "noop":
		return noop.New(), nil
	case "", "memory":
		return memstore.NewMemoryStorage(), nil
	case "badger":
		return badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
	case "redis":
		return redis.Open(ctx, redis.Config{
			Addr:        cfg.Redis.Address,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			KeyPrefix:   cfg.Redis.KeyPrefix,
			DialTimeout: cfg.Redis.DialTimeout,
		})
	case "sqlite":
		return sqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// newApp wires the components together. Nothing is loaded or started yet.
func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	backend, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Type, err)
	}

	m := metrics.NewManager(metrics.Config{
		Enabled:               cfg.Metrics.Enabled,
		Port:                  cfg.Metrics.Port,
		Path:                  cfg.Metrics.Path,
		SearchDurationBuckets: metrics.DefaultConfig().SearchDurationBuckets,
		ChatDurationBuckets:   metrics.DefaultConfig().ChatDurationBuckets,
		HTTPDurationBuckets:   metrics.DefaultConfig().HTTPDurationBuckets,
	})

	a := &app{
		cfg:     cfg,
		log:     log,
		backend: backend,
		metrics: m,
		bus:     events.NewBroadcaster(),
	}

	indexOpts := append(cfg.RAG.IndexOptions(),
		rag.WithLogger(log.With("component", "rag")),
		rag.WithRecorder(m),
		rag.WithChangeListener(func(c rag.Change) {
			a.bus.BroadcastIndex(string(c.Kind), c.Source, c.Chunks, c.Total)
		}),
	)
	a.index = rag.NewIndex(backend, indexOpts...)

	a.memory = memory.NewStore(backend, cfg.Memory.ToMemoryConfig(),
		memory.WithLogger(log.With("component", "memory")),
		memory.WithRecorder(m),
		memory.WithChangeListener(func(c memory.Change) {
			a.bus.BroadcastMemory(string(c.Kind), c.Facts, c.Agent, c.Key)
		}),
	)

	chatLog := log.With("component", "chat")
	a.history = chat.NewHistory(backend, chat.WithHistoryLogger(chatLog))
	a.registry = chat.BuildRegistry(cfg.Chat.ToRegistryConfig(),
		chat.WithLogger(chatLog),
		chat.WithRecorder(m),
		chat.WithTimeout(cfg.Chat.Timeout),
	)
	a.service = agent.NewService(a.registry, a.history, a.memory, a.index, cfg.ToAgentConfig(),
		agent.WithLogger(log.With("component", "agent")),
	)

	ollama, _ := a.registry.Get(chat.ProviderOllama)
	lmstudio, _ := a.registry.Get(chat.ProviderLMStudio)
	a.detector = chat.NewDetector(
		chat.Target{Endpoint: cfg.Chat.Providers.Ollama.Endpoint, Lister: ollama},
		chat.Target{Endpoint: cfg.Chat.Providers.LMStudio.Endpoint, Lister: lmstudio},
		cfg.Models.ToDetectorConfig(),
		chat.WithDetectorLogger(chatLog),
	)
	a.detector.OnDetected(func(d chat.Detection) { a.bus.BroadcastModels(d) })

	a.health = handlers.NewHealthHandler(a.index, a.memory, a.detector, cfg.Storage.Type)
	a.ws = handlers.NewWebSocketHandler(log.With("component", "websocket"), handlers.WebSocketConfig{
		MaxConnections: cfg.Server.WebSocket.MaxConnections,
		PingInterval:   cfg.Server.WebSocket.PingInterval,
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		Chat:           a.service,
		Metrics:        m,
	})
	a.ws.Attach(a.bus)

	apiHandlers := &api.Handlers{
		Documents: handlers.NewDocumentsHandler(a.index, handlers.DocumentsConfig{
			SearchTopK:       cfg.RAG.SearchTopK,
			MaxContextTokens: cfg.RAG.MaxContextTokens,
			MaxUploadBytes:   cfg.Server.HTTP.MaxUploadBytes,
		}, log),
		Memory:    handlers.NewMemoryHandler(a.memory, log),
		Chat:      handlers.NewChatHandler(a.service, log),
		Models:    handlers.NewModelsHandler(a.detector, a.registry.Names()),
		Health:    a.health,
		WebSocket: a.ws,
	}
	if m.Enabled() {
		apiHandlers.Metrics = m
	}
	a.server = api.NewHTTPServer(cfg, log, apiHandlers, api.WithOnShutdown(a.ws.Close))

	return a, nil
}

// load restores persisted state and marks the service ready.
func (a *app) load(ctx context.Context) {
	if n, err := a.index.Load(ctx); err != nil {
		a.log.Warn("Failed to load document index", "error", err)
	} else {
		a.log.Info("Document index loaded", "chunks", n)
	}
	if n, err := a.memory.Load(ctx); err != nil {
		a.log.Warn("Failed to load memory", "error", err)
	} else {
		a.log.Info("Memory loaded", "facts", n)
	}
	if n, err := a.history.Load(ctx); err != nil {
		a.log.Warn("Failed to load chat history", "error", err)
	} else {
		a.log.Info("Chat history loaded", "entries", n)
	}
	a.health.SetReady(true)
}

// applyConfig applies the hot-reloadable part of a reloaded config.
func (a *app) applyConfig(prev config.HotReloadableConfig, cfg *config.Config) config.HotReloadableConfig {
	next := config.ExtractHotReloadable(cfg)
	if !prev.Changed(next) {
		return prev
	}

	if next.LogLevel != prev.LogLevel {
		level := logger.ParseLevel(next.LogLevel)
		if a.cfg.App.Debug {
			level = logger.DebugLevel
		}
		a.log.SetLevel(level)
	}
	a.service.SetConfig(cfg.ToAgentConfig())

	a.log.Info("Configuration applied",
		"log_level", next.LogLevel,
		"default_provider", next.DefaultProvider,
		"default_model", next.DefaultModel,
	)
	a.bus.BroadcastConfig(next)
	return next
}

// close stops the background work and releases storage.
func (a *app) close(ctx context.Context) {
	a.health.SetReady(false)
	a.detector.Stop()

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error("Error shutting down HTTP server", "error", err)
	}
	a.ws.Close()
	a.bus.Close()

	done := make(chan error, 1)
	go func() { done <- a.backend.Close() }()
	select {
	case err := <-done:
		if err != nil {
			a.log.Error("Error closing storage", "error", err)
		}
	case <-time.After(5 * time.Second):
		a.log.Warn("Timed out closing storage")
	}
}
