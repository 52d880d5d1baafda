// Package telemetry wires OpenTelemetry tracing across the dispatcher and
// egress proxy: one span per HTTP handler invocation and one per executor
// subprocess run, exported over OTLP when configured. Grounded on the
// teacher's own internal/config.TelemetryConfig (grpc/http protocol choice,
// service name, insecure flag, extra headers) — the teacher declares
// go.opentelemetry.io/otel, .../sdk, .../exporters/otlp/otlptrace/
// otlptracegrpc and .../otlptracehttp as direct go.mod dependencies but
// never wires a tracer provider anywhere in its own code; this package is
// that wiring, generalized from config shape to behavior.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config mirrors the teacher's internal/config.TelemetryConfig shape.
type Config struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // "grpc" (default) or "http"
	Insecure    bool
	ServiceName string
	Headers     map[string]string
}

// Provider wraps the configured TracerProvider, or a no-op one when tracing
// is disabled, so callers never need to branch on Config.Enabled themselves.
type Provider struct {
	tp       *sdktrace.TracerProvider
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// ConfigFromEndpoint builds a Config from the dispatcher/proxy's single
// YOLO_CAGE_OTLP_ENDPOINT env var: tracing is enabled iff endpoint is set,
// defaulting to the grpc OTLP protocol the way the teacher's
// TelemetryConfig.Protocol zero-value does.
func ConfigFromEndpoint(endpoint, serviceName string) Config {
	return Config{
		Enabled:     endpoint != "",
		Endpoint:    endpoint,
		Protocol:    "grpc",
		ServiceName: serviceName,
	}
}

// Setup builds a Provider from cfg. When cfg.Enabled is false, Setup
// returns a Provider backed by otel's global no-op tracer so instrumented
// code pays no cost and needs no nil checks.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: otel.Tracer("yolo-cage"), shutdown: func(context.Context) error { return nil }}, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "yolo-cage"
	}
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		tp:       tp,
		tracer:   tp.Tracer("yolo-cage"),
		shutdown: tp.Shutdown,
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// Shutdown flushes and stops the tracer provider. Safe to call on a
// no-op Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// StartHandlerSpan starts a span named for an HTTP route, the dispatcher's
// per-request instrumentation point. The egress proxy does not call it.
func (p *Provider) StartHandlerSpan(ctx context.Context, route string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "http."+route, trace.WithAttributes(attribute.String("route", route)))
}

// StartExecSpan starts a span around one subprocess invocation (git/gh),
// tagged with the command and caller's assigned branch.
func (p *Provider) StartExecSpan(ctx context.Context, command, branch string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "exec."+command, trace.WithAttributes(
		attribute.String("command", command),
		attribute.String("branch", branch),
	))
}

// EndSpan records the outcome and duration on span and ends it. start is
// passed in rather than read from the span so callers control the clock.
func EndSpan(span trace.Span, start time.Time, err error) {
	span.SetAttributes(attribute.Int64("duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
