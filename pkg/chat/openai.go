package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Endpoints of the OpenAI-compatible services.
const (
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultGroqBaseURL      = "https://api.groq.com/openai/v1"
	DefaultLMStudioEndpoint = "http://localhost:1234"
)

// lmStudioKey is sent to LM Studio, which ignores authentication.
const lmStudioKey = "lm-studio"

// OpenAIConfig configures an OpenAI-compatible provider.
type OpenAIConfig struct {
	// Name is the registry name, e.g. "openai", "groq" or "lmstudio".
	Name string
	// BaseURL is the API root including the /v1 suffix.
	BaseURL string
	// APIKey authenticates requests.
	APIKey string
	// RequireKey makes calls fail with ErrMissingAPIKey when APIKey is empty.
	RequireKey bool
	// ShortNames renders model names as the last path segment with dashes
	// replaced by spaces, as LM Studio lists them.
	ShortNames bool
}

// OpenAIProvider talks to any service that implements the OpenAI chat
// completions and models endpoints.
type OpenAIProvider struct {
	cfg      OpenAIConfig
	client   openai.Client
	logger   chatLogger
	recorder Recorder
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider from cfg.
func NewOpenAIProvider(cfg OpenAIConfig, opts ...Option) *OpenAIProvider {
	o := buildOptions(opts)
	if cfg.Name == "" {
		cfg.Name = ProviderOpenAI
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	key := cfg.APIKey
	if key == "" && !cfg.RequireKey {
		key = lmStudioKey
	}

	client := openai.NewClient(
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		option.WithAPIKey(key),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{
		cfg:      cfg,
		client:   client,
		logger:   o.logger,
		recorder: o.recorder,
	}
}

// NewOpenAI returns the hosted OpenAI provider.
func NewOpenAI(apiKey string, opts ...Option) *OpenAIProvider {
	return NewOpenAIProvider(OpenAIConfig{
		Name:       ProviderOpenAI,
		BaseURL:    DefaultOpenAIBaseURL,
		APIKey:     apiKey,
		RequireKey: true,
	}, opts...)
}

// NewGroq returns the Groq provider.
func NewGroq(apiKey string, opts ...Option) *OpenAIProvider {
	return NewOpenAIProvider(OpenAIConfig{
		Name:       ProviderGroq,
		BaseURL:    DefaultGroqBaseURL,
		APIKey:     apiKey,
		RequireKey: true,
	}, opts...)
}

// NewLMStudio returns the provider for a local LM Studio server.
func NewLMStudio(endpoint string, opts ...Option) *OpenAIProvider {
	if endpoint == "" {
		endpoint = DefaultLMStudioEndpoint
	}
	return NewOpenAIProvider(OpenAIConfig{
		Name:       ProviderLMStudio,
		BaseURL:    strings.TrimRight(endpoint, "/") + "/v1",
		ShortNames: true,
	}, opts...)
}

// Name returns the configured registry name.
func (p *OpenAIProvider) Name() string { return p.cfg.Name }

// BaseURL returns the API root.
func (p *OpenAIProvider) BaseURL() string { return p.cfg.BaseURL }

// Complete sends a chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (reply string, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "chat.Complete")
	span.SetAttributes(attribute.String("chat.provider", p.cfg.Name), attribute.String("chat.model", req.Model))
	start := time.Now()
	defer func() {
		p.recorder.RecordChatRequest(ctx, p.cfg.Name, statusOf(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	params, err := p.params(req)
	if err != nil {
		return "", err
	}
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.wrap(err)
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}

// Stream sends a streaming chat completion request.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (full string, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "chat.Stream")
	span.SetAttributes(attribute.String("chat.provider", p.cfg.Name), attribute.String("chat.model", req.Model))
	start := time.Now()
	defer func() {
		p.recorder.RecordChatRequest(ctx, p.cfg.Name, statusOf(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	params, err := p.params(req)
	if err != nil {
		return "", err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		p.recorder.RecordStreamFragment(p.cfg.Name)
		if onDelta != nil {
			onDelta(delta, sb.String())
		}
	}
	if err := stream.Err(); err != nil {
		return sb.String(), p.wrap(err)
	}
	return sb.String(), nil
}

// ListModels returns the models served by the endpoint.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if err := p.checkKey(); err != nil {
		return nil, err
	}
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, p.wrap(err)
	}

	models := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		info := ModelInfo{
			ID:       m.ID,
			Name:     m.ID,
			Provider: p.cfg.Name,
			OwnedBy:  orDefault(m.OwnedBy, "user"),
			Object:   string(m.Object),
		}
		if p.cfg.ShortNames {
			info.Name = shortModelName(m.ID)
		}
		models = append(models, info)
	}
	return models, nil
}

func (p *OpenAIProvider) checkKey() error {
	if p.cfg.RequireKey && p.cfg.APIKey == "" {
		return &ProviderError{Provider: p.cfg.Name, Err: ErrMissingAPIKey}
	}
	return nil
}

func (p *OpenAIProvider) params(req Request) (openai.ChatCompletionNewParams, error) {
	if err := p.checkKey(); err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, ErrNoMessages
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.temperature()),
	}, nil
}

func (p *OpenAIProvider) wrap(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		p.logger.Warn("chat provider returned an error", "provider", p.cfg.Name, "status", apiErr.StatusCode)
		return &ProviderError{Provider: p.cfg.Name, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &ProviderError{Provider: p.cfg.Name, Err: err}
}

func shortModelName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return strings.ReplaceAll(id, "-", " ")
}
