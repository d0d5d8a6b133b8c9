package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// SpanTracer is satisfied by both Tracer and NoopTracer, letting callers
// accept either without nil-checking a *Tracer.
type SpanTracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
	StartAgentRun(ctx context.Context, workflowID, stepID, agent, task, phase string) (context.Context, trace.Span)
	StartMemorySearch(ctx context.Context, query string, topK int) (context.Context, trace.Span)
	AddPayload(span trace.Span, key, value string)
	RecordError(span trace.Span, err error)
	DebugExporter() *DebugExporter
	Shutdown(ctx context.Context) error
}

// Tracer wraps an OpenTelemetry TracerProvider, exposing the span helpers the
// engine and its agents use to instrument a node invocation.
type Tracer struct {
	provider        *sdktrace.TracerProvider
	tracer          trace.Tracer
	debug           *DebugExporter
	capturePayloads bool
}

// tracerOptions collects the functional options passed to NewTracer.
type tracerOptions struct {
	debugExporter   *DebugExporter
	capturePayloads bool
}

// TracerOption configures optional behavior of NewTracer.
type TracerOption func(*tracerOptions)

// WithDebugExporter registers an in-memory span exporter alongside the
// configured exporter, so a local UI/API can inspect recent spans.
func WithDebugExporter(exporter *DebugExporter) TracerOption {
	return func(o *tracerOptions) { o.debugExporter = exporter }
}

// WithCapturePayloads enables attaching full request/response bodies to
// spans via AddPayload. Off by default: spans can grow large.
func WithCapturePayloads(enabled bool) TracerOption {
	return func(o *tracerOptions) { o.capturePayloads = enabled }
}

// NewTracer builds a Tracer from TracingConfig. Only the "stdout" exporter is
// wired to a real SDK exporter in this build (go.opentelemetry.io/otel/exporters/stdout/stdouttrace);
// otlp/jaeger/zipkin are accepted by TracingConfig.Validate for forward
// compatibility with a deployment that vendors those exporter clients, but
// NewTracer itself only knows how to drive stdout.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	var to tracerOptions
	for _, opt := range opts {
		opt(&to)
	}

	exporter, err := newSpanExporter(cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if to.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(to.debugExporter))
	}

	provider := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(provider)

	return &Tracer{
		provider:        provider,
		tracer:          provider.Tracer(cfg.ServiceName),
		debug:           to.debugExporter,
		capturePayloads: to.capturePayloads,
	}, nil
}

func newSpanExporter(cfg *TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "", "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("observability: exporter %q is not vendored in this build (only %q is)", cfg.Exporter, "stdout")
	}
}

// Start opens a generic span.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartAgentRun opens a span covering one plan step's agent invocation.
func (t *Tracer) StartAgentRun(ctx context.Context, workflowID, stepID, agent, task, phase string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAgentRun, trace.WithAttributes(
		attribute.String("workflow.id", workflowID),
		attribute.String("step.id", stepID),
		attribute.String(AttrAgentName, agent),
		attribute.String("step.phase", phase),
		attribute.String("step.task", truncateString(task, maxPayloadAttrLen)),
	))
}

// StartMemorySearch opens a span covering a Memory Store lookup.
func (t *Tracer) StartMemorySearch(ctx context.Context, query string, topK int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanMemorySearch, trace.WithAttributes(
		attribute.String("memory.query", truncateString(query, maxPayloadAttrLen)),
		attribute.Int("memory.top_k", topK),
	))
}

// AddPayload attaches a request/response payload when capture is enabled.
func (t *Tracer) AddPayload(span trace.Span, key, value string) {
	if !t.capturePayloads {
		return
	}
	span.SetAttributes(attribute.String(key, truncateString(value, maxPayloadAttrLen)))
}

// RecordError marks the span as errored.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorType, err.Error()))
}

// DebugExporter returns the in-memory exporter passed via WithDebugExporter, or nil.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debug
}

// Shutdown flushes and stops the underlying TracerProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

const maxPayloadAttrLen = 4096

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// noopSpan returns a span that discards everything written to it, used by
// NoopTracer so callers never need to nil-check the returned span.
func noopSpan() trace.Span {
	_, span := noop.NewTracerProvider().Tracer("noop").Start(context.Background(), "noop")
	return span
}

var (
	_ SpanTracer = (*Tracer)(nil)
	_ SpanTracer = NoopTracer{}
)
