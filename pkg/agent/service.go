// Package agent answers chat messages for the two built-in agents. It
// combines memory and document context with the recent conversation,
// calls the configured chat provider and records the exchange.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/RuFFyGTLP/TC/pkg/chat"
	"github.com/RuFFyGTLP/TC/pkg/memory"
	"github.com/RuFFyGTLP/TC/pkg/rag"
)

// Defaults applied when neither the agent nor the service configures a value.
const (
	DefaultProvider      = chat.ProviderOllama
	DefaultModel         = "llama3.2"
	DefaultHistoryWindow = 10
)

// emptyReply stands in for a provider that answered with no content.
const emptyReply = "Sin respuesta del modelo"

var (
	// ErrUnknownAgent is returned for an agent without a system prompt.
	ErrUnknownAgent = errors.New("agent: unknown agent")
	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("agent: empty message")
)

// Settings override the provider, model and temperature of one agent.
type Settings struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// Config configures a Service.
type Config struct {
	DefaultProvider  string
	DefaultModel     string
	Temperature      float64
	HistoryWindow    int
	MaxContextTokens int
	RAGEnabled       bool
	Learn            bool
	Agents           map[string]Settings
}

// ProviderSource resolves providers by name. *chat.Registry implements it.
type ProviderSource interface {
	Get(name string) (chat.Provider, error)
}

// Retriever builds document context. *rag.Index implements it.
type Retriever interface {
	BuildContext(ctx context.Context, query string, maxTokens int) string
}

// Memory builds memory context and learns from exchanges. *memory.Store
// implements it.
type Memory interface {
	BuildContext(ctx context.Context, query string) string
	LearnFromConversation(ctx context.Context, message, response string) ([]memory.Fact, error)
}

// Reply is the outcome of one exchange.
type Reply struct {
	Agent    string     `json:"agent"`
	Provider string     `json:"provider"`
	Model    string     `json:"model"`
	Content  string     `json:"content"`
	Context  bool       `json:"usedContext"`
	Learned  int        `json:"learned"`
	Entry    chat.Entry `json:"entry"`
}

type serviceLogger interface {
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

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l serviceLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service answers agent messages.
type Service struct {
	providers ProviderSource
	history   *chat.History
	memory    Memory
	retriever Retriever
	logger    serviceLogger

	mu  sync.RWMutex
	cfg Config
}

// NewService creates a service. memory and retriever may be nil.
func NewService(providers ProviderSource, history *chat.History, mem Memory, retriever Retriever, cfg Config, opts ...Option) *Service {
	if history == nil {
		history = chat.NewHistory(nil)
	}
	s := &Service{
		providers: providers,
		history:   history,
		memory:    mem,
		retriever: retriever,
		logger:    nopLogger{},
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetConfig replaces the configuration used by later calls.
func (s *Service) SetConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Config returns the current configuration.
func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// History returns the conversation history.
func (s *Service) History() *chat.History { return s.history }

// Reply answers message with a single completion call.
func (s *Service) Reply(ctx context.Context, agent, message string) (Reply, error) {
	return s.exchange(ctx, agent, message, nil)
}

// Stream answers message with a streamed completion, calling onDelta for
// every fragment.
func (s *Service) Stream(ctx context.Context, agent, message string, onDelta chat.DeltaFunc) (Reply, error) {
	if onDelta == nil {
		onDelta = func(string, string) {}
	}
	return s.exchange(ctx, agent, message, onDelta)
}

// resolved is the effective call configuration of one agent.
type resolved struct {
	provider    string
	model       string
	temperature float64
	cfg         Config
}

func (s *Service) resolve(agent string) resolved {
	cfg := s.Config()
	set := cfg.Agents[agent]
	r := resolved{
		provider:    firstNonEmpty(set.Provider, cfg.DefaultProvider, DefaultProvider),
		model:       firstNonEmpty(set.Model, cfg.DefaultModel, DefaultModel),
		temperature: set.Temperature,
		cfg:         cfg,
	}
	if r.temperature <= 0 {
		r.temperature = cfg.Temperature
	}
	if r.temperature <= 0 {
		r.temperature = chat.DefaultTemperature
	}
	return r
}

func (s *Service) exchange(ctx context.Context, agent, message string, onDelta chat.DeltaFunc) (out Reply, err error) {
	prompt, ok := SystemPrompt(agent)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownAgent, agent)
	}
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}

	r := s.resolve(agent)
	ctx, span := otel.Tracer("tc.agent").Start(ctx, "agent.Reply")
	span.SetAttributes(
		attribute.String("agent.name", agent),
		attribute.String("chat.provider", r.provider),
		attribute.String("chat.model", r.model),
		attribute.Bool("chat.stream", onDelta != nil),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	provider, err := s.providers.Get(r.provider)
	if err != nil {
		return Reply{}, fmt.Errorf("agent: %w", err)
	}

	block := s.buildContext(ctx, message, r.cfg)
	req := chat.Request{
		Model:       r.model,
		Messages:    s.buildMessages(prompt, agent, rag.AugmentMessage(block, message), r.cfg),
		Temperature: r.temperature,
	}

	s.history.Append(ctx, chat.EntryUser, agent, message)

	var content string
	if onDelta != nil {
		content, err = provider.Stream(ctx, req, onDelta)
	} else {
		content, err = provider.Complete(ctx, req)
		if err == nil && content == "" {
			content = emptyReply
		}
	}
	if err != nil {
		s.logger.Warn("chat reply failed", "agent", agent, "provider", r.provider, "error", err)
		return Reply{}, fmt.Errorf("agent: %s reply failed: %w", r.provider, err)
	}

	out = Reply{
		Agent:    agent,
		Provider: r.provider,
		Model:    r.model,
		Content:  content,
		Context:  block != "",
		Entry:    s.history.Append(ctx, chat.EntryAgent, agent, content),
	}

	if r.cfg.Learn && s.memory != nil {
		facts, lerr := s.memory.LearnFromConversation(ctx, message, content)
		if lerr != nil {
			s.logger.Warn("failed to learn from conversation", "agent", agent, "error", lerr)
		}
		out.Learned = len(facts)
	}
	return out, nil
}

// buildContext joins the memory block and, when enabled, the document block.
func (s *Service) buildContext(ctx context.Context, message string, cfg Config) string {
	var b strings.Builder
	if s.memory != nil {
		b.WriteString(s.memory.BuildContext(ctx, message))
	}
	if cfg.RAGEnabled && s.retriever != nil {
		b.WriteString(s.retriever.BuildContext(ctx, message, cfg.MaxContextTokens))
	}
	return b.String()
}

// buildMessages returns the system prompt, the recent conversation of agent
// and the final user message.
func (s *Service) buildMessages(prompt, agent, user string, cfg Config) []chat.Message {
	window := cfg.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	recent := s.history.Recent(agent, window)

	messages := make([]chat.Message, 0, len(recent)+2)
	messages = append(messages, chat.Message{Role: chat.RoleSystem, Content: prompt})
	for _, e := range recent {
		messages = append(messages, chat.Message{Role: e.Role(), Content: e.Text})
	}
	return append(messages, chat.Message{Role: chat.RoleUser, Content: user})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
