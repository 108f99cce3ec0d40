package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// DefaultOllamaEndpoint is the local Ollama API address.
const DefaultOllamaEndpoint = "http://localhost:11434"

var errOllamaUnavailable = errors.New("ollama is not responding")

// OllamaProvider talks to the Ollama HTTP API.
type OllamaProvider struct {
	endpoint string
	client   *http.Client
	logger   chatLogger
	recorder Recorder
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates a provider for the Ollama server at endpoint.
func NewOllamaProvider(endpoint string, opts ...Option) *OllamaProvider {
	o := buildOptions(opts)
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	return &OllamaProvider{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   o.httpClient,
		logger:   o.logger,
		recorder: o.recorder,
	}
}

// Name returns "ollama".
func (p *OllamaProvider) Name() string { return ProviderOllama }

// Endpoint returns the server address.
func (p *OllamaProvider) Endpoint() string { return p.endpoint }

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name       string `json:"name"`
		Size       int64  `json:"size"`
		ModifiedAt string `json:"modified_at"`
		Details    struct {
			Family            string `json:"family"`
			ParameterSize     string `json:"parameter_size"`
			QuantizationLevel string `json:"quantization_level"`
		} `json:"details"`
	} `json:"models"`
}

// Complete sends a non-streaming chat request.
func (p *OllamaProvider) Complete(ctx context.Context, req Request) (reply string, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "chat.Complete")
	span.SetAttributes(attribute.String("chat.provider", ProviderOllama), attribute.String("chat.model", req.Model))
	start := time.Now()
	defer func() {
		p.recorder.RecordChatRequest(ctx, ProviderOllama, statusOf(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	resp, err := p.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Provider: ProviderOllama, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Error != "" {
		return "", &ProviderError{Provider: ProviderOllama, Err: errors.New(out.Error)}
	}
	return out.Message.Content, nil
}

// Stream sends a streaming chat request and reads the NDJSON reply.
// Lines that do not decode are skipped.
func (p *OllamaProvider) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (full string, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "chat.Stream")
	span.SetAttributes(attribute.String("chat.provider", ProviderOllama), attribute.String("chat.model", req.Model))
	start := time.Now()
	defer func() {
		p.recorder.RecordChatRequest(ctx, ProviderOllama, statusOf(err), time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	resp, err := p.post(ctx, req, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var frame ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			continue
		}
		if frame.Error != "" {
			return sb.String(), &ProviderError{Provider: ProviderOllama, Err: errors.New(frame.Error)}
		}
		if frame.Message.Content != "" {
			sb.WriteString(frame.Message.Content)
			p.recorder.RecordStreamFragment(ProviderOllama)
			if onDelta != nil {
				onDelta(frame.Message.Content, sb.String())
			}
		}
		if frame.Done {
			return sb.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), &ProviderError{Provider: ProviderOllama, Err: fmt.Errorf("read stream: %w", err)}
	}
	return sb.String(), nil
}

// ListModels returns the locally pulled models from /api/tags.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("chat: create request: %w", err)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderOllama, Err: fmt.Errorf("%w: %v", errOllamaUnavailable, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: ProviderOllama, StatusCode: resp.StatusCode, Err: errOllamaUnavailable}
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, &ProviderError{Provider: ProviderOllama, Err: fmt.Errorf("decode tags: %w", err)}
	}

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, ModelInfo{
			ID:            m.Name,
			Name:          m.Name,
			Provider:      ProviderOllama,
			Size:          FormatBytes(m.Size),
			ModifiedAt:    m.ModifiedAt,
			Family:        orDefault(m.Details.Family, "unknown"),
			ParameterSize: orDefault(m.Details.ParameterSize, "N/A"),
			Quantization:  orDefault(m.Details.QuantizationLevel, "N/A"),
		})
	}
	return models, nil
}

func (p *OllamaProvider) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}
	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
		Options:  &ollamaOptions{Temperature: req.temperature()},
	})
	if err != nil {
		return nil, fmt.Errorf("chat: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.Warn("ollama request failed", "endpoint", p.endpoint, "error", err)
		return nil, &ProviderError{Provider: ProviderOllama, Err: fmt.Errorf("%w: %v", errOllamaUnavailable, err)}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cause := errOllamaUnavailable
		if text := strings.TrimSpace(string(msg)); text != "" {
			cause = errors.New(text)
		}
		return nil, &ProviderError{Provider: ProviderOllama, StatusCode: resp.StatusCode, Err: cause}
	}
	return resp, nil
}

// FormatBytes renders a model size as "X.X GB" or "N MB", or "N/A" for 0.
func FormatBytes(n int64) string {
	if n <= 0 {
		return "N/A"
	}
	gb := float64(n) / (1024 * 1024 * 1024)
	if gb >= 1 {
		return fmt.Sprintf("%.1f GB", gb)
	}
	return fmt.Sprintf("%.0f MB", float64(n)/(1024*1024))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
