// Package chat defines the chat-completion contract and its providers:
// Ollama over its native HTTP API and OpenAI-compatible services (OpenAI,
// Groq, LM Studio) through openai-go.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const tracerName = "tc.chat"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider names.
const (
	ProviderOllama   = "ollama"
	ProviderLMStudio = "lmstudio"
	ProviderOpenAI   = "openai"
	ProviderGroq     = "groq"
)

// DefaultTemperature is used when a request carries no temperature.
const DefaultTemperature = 0.7

var (
	// ErrUnknownProvider is returned for a provider name nobody registered.
	ErrUnknownProvider = errors.New("chat: unknown provider")
	// ErrMissingAPIKey is returned by hosted providers configured without a key.
	ErrMissingAPIKey = errors.New("chat: missing API key")
	// ErrNoMessages is returned for a request without messages.
	ErrNoMessages = errors.New("chat: request has no messages")
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

func (r Request) temperature() float64 {
	if r.Temperature <= 0 {
		return DefaultTemperature
	}
	return r.Temperature
}

// DeltaFunc receives each streamed fragment and the text accumulated so far.
type DeltaFunc func(delta, full string)

// Provider is a chat completion backend.
type Provider interface {
	// Name returns the registry name of the provider.
	Name() string

	// Complete returns the full assistant reply.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream calls onDelta for every fragment and returns the full reply.
	Stream(ctx context.Context, req Request, onDelta DeltaFunc) (string, error)

	// ListModels returns the models the provider currently serves.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelInfo describes a model served by a provider.
type ModelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	Size          string `json:"size,omitempty"`
	ModifiedAt    string `json:"modified,omitempty"`
	Family        string `json:"family,omitempty"`
	ParameterSize string `json:"parameterSize,omitempty"`
	Quantization  string `json:"quantization,omitempty"`
	OwnedBy       string `json:"ownedBy,omitempty"`
	Object        string `json:"object,omitempty"`
}

// ProviderError wraps a failure reported by a provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat: %s (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("chat: %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is a rate limit or a server error.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable reports whether err is a retryable provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}

// Recorder receives chat metrics. *metrics.Manager implements it.
type Recorder interface {
	RecordChatRequest(ctx context.Context, provider, status string, duration time.Duration)
	RecordStreamFragment(provider string)
}

type nopRecorder struct{}

func (nopRecorder) RecordChatRequest(context.Context, string, string, time.Duration) {}
func (nopRecorder) RecordStreamFragment(string)                                      {}

// chatLogger is the minimal logger interface used by this package.
type chatLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
