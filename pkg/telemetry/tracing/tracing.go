// Package tracing installs the process-wide OpenTelemetry tracer provider.
// Components start spans through otel.Tracer with their own names.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/RuFFyGTLP/TC/config"
	"github.com/RuFFyGTLP/TC/pkg/logger"
)

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(ctx context.Context) error

type warnLogger interface {
	Warn(msg string, args ...any)
}

type options struct {
	log         warnLogger
	exporter    sdktrace.SpanExporter
	environment string
}

// Option configures Init.
type Option func(*options)

// WithLogger sets where export failures are reported.
func WithLogger(l warnLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithExporter replaces the OTLP exporter. Tests use it to capture spans.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithEnvironment tags the resource with deployment.environment.name.
func WithEnvironment(env string) Option {
	return func(o *options) { o.environment = env }
}

func propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// Init installs a tracer provider built from cfg. When tracing is
// disabled a noop provider is installed so trace context still
// propagates through chat requests.
func Init(ctx context.Context, cfg config.TracingConfig, serviceName, serviceVersion string, opts ...Option) (ShutdownFunc, error) {
	o := options{log: logger.Global()}
	for _, opt := range opts {
		opt(&o)
	}
	otel.SetTextMapPropagator(propagator())

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}

	host, secure := parseEndpoint(cfg.Endpoint)
	exp := o.exporter
	if exp == nil {
		var err error
		if exp, err = otlpExporter(ctx, cfg, host, secure); err != nil {
			return nil, fmt.Errorf("create tracing exporter: %w", err)
		}
	}
	exp = &reportingExporter{SpanExporter: exp, log: o.log, kind: strings.ToLower(cfg.Exporter), endpoint: host}

	attrs := []resource.Option{resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)}
	if o.environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironmentName(o.environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("create tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(selectSampler(cfg)),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		flushErr := tp.ForceFlush(ctx)
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracing provider: %w", errors.Join(flushErr, err))
		}
		if flushErr != nil {
			return fmt.Errorf("flush tracing provider: %w", flushErr)
		}
		return nil
	}, nil
}

func checkConfig(cfg config.TracingConfig) error {
	switch {
	case strings.TrimSpace(cfg.Exporter) == "":
		return errors.New("tracing exporter cannot be empty")
	case strings.TrimSpace(cfg.Endpoint) == "":
		return errors.New("tracing endpoint cannot be empty")
	case cfg.Timeout <= 0:
		return errors.New("tracing timeout must be > 0")
	}
	return nil
}

func otlpExporter(ctx context.Context, cfg config.TracingConfig, host string, secure bool) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(host),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if !secure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// reportingExporter logs export failures and swallows them so an
// unreachable collector never fails a chat request.
type reportingExporter struct {
	sdktrace.SpanExporter
	log      warnLogger
	kind     string
	endpoint string
}

func (e *reportingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if err := e.SpanExporter.ExportSpans(ctx, spans); err != nil {
		e.log.Warn("tracing exporter failed",
			"error", err,
			"exporter", e.kind,
			"endpoint", e.endpoint,
			"span_count", len(spans),
		)
	}
	return nil
}

func selectSampler(cfg config.TracingConfig) sdktrace.Sampler {
	switch strings.ToLower(strings.TrimSpace(cfg.Sampler)) {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}
}

// parseEndpoint reduces a collector endpoint to host:port. Only https://
// endpoints use TLS.
func parseEndpoint(endpoint string) (host string, secure bool) {
	raw := strings.TrimSpace(endpoint)
	if raw == "" || !strings.Contains(raw, "://") {
		return raw, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, false
	}
	return u.Host, strings.EqualFold(u.Scheme, "https")
}
