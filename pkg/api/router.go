// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/RuFFyGTLP/TC/config"
	"github.com/RuFFyGTLP/TC/pkg/api/handlers"
	"github.com/RuFFyGTLP/TC/pkg/api/middleware"
	"github.com/RuFFyGTLP/TC/pkg/logger"

	_ "github.com/RuFFyGTLP/TC/docs/swagger" // Import generated docs
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Documents handles the document index, search and context endpoints
	Documents *handlers.DocumentsHandler

	// Memory handles memory-related endpoints
	Memory *handlers.MemoryHandler

	// Chat handles agent conversations
	Chat *handlers.ChatHandler

	// Models reports detected local models
	Models *handlers.ModelsHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// WebSocket serves /ws. It is mounted outside the response-wrapping
	// middleware so the connection can be hijacked.
	WebSocket http.Handler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))

	if handlers.WebSocket != nil && cfg.Server.WebSocket.Enabled {
		r.Handle("/ws", handlers.WebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
		r.Use(middleware.Logger(log))

		// Add metrics middleware if provided
		if handlers.Metrics != nil {
			r.Use(middleware.Metrics(handlers.Metrics))
		}

		r.Use(middleware.CORS(&cfg.Server.CORS))
		r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout, log))

		// Register routes
		RegisterRoutes(r, handlers)
	})

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Document index routes
		if h := handlers.Documents; h != nil {
			r.Route("/documents", func(r chi.Router) {
				r.Post("/", h.IndexDocument)
				r.Delete("/", h.Clear)
				r.Post("/upload", h.Upload)
				r.Get("/stats", h.Stats)
			})
			r.Get("/search", h.Search)
			r.Get("/context", h.Context)
		}

		// Memory routes
		if h := handlers.Memory; h != nil {
			r.Route("/memory", func(r chi.Router) {
				r.Post("/facts", h.RememberFact)
				r.Get("/facts", h.RecallFacts)
				r.Get("/facts/all", h.ListFacts)
				r.Post("/prune", h.Prune)
				r.Post("/learn", h.Learn)
				r.Get("/context", h.Context)
				r.Get("/stats", h.GetStats)

				r.Route("/agents/{agent}/short-term", func(r chi.Router) {
					r.Get("/", h.ListShortTerm)
					r.Delete("/", h.ClearShortTerm)
					r.Put("/{key}", h.SetShortTerm)
					r.Get("/{key}", h.GetShortTerm)
					r.Delete("/{key}", h.DeleteShortTerm)
				})

				r.Route("/working", func(r chi.Router) {
					r.Get("/", h.WorkingContext)
					r.Delete("/", h.ClearWorking)
					r.Put("/{key}", h.SetWorking)
					r.Get("/{key}", h.GetWorking)
				})
			})
		}

		// Chat routes
		if h := handlers.Chat; h != nil {
			r.Route("/chat/{agent}", func(r chi.Router) {
				r.Post("/", h.Send)
				r.Get("/history", h.History)
				r.Delete("/history", h.ClearHistory)
			})
		}

		// Model detection routes
		if h := handlers.Models; h != nil {
			r.Get("/models", h.List)
			r.Post("/models/refresh", h.Refresh)
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
