package tracing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/abilityd/internal/config"
)

// TracerName is the instrumentation name of every span the daemon starts
const TracerName = "github.com/harun/abilityd"

// Span names
const (
	SpanInvoke = "ability.invoke"
	SpanAudit  = "ability.audit"
)

// Trace exporters
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Provider is an installed sdk tracer provider
type Provider struct {
	mu       sync.Mutex
	tp       *sdktrace.TracerProvider
	previous trace.TracerProvider
}

// Init builds a tracer provider from cfg and installs it, together with the
// W3C trace context propagator, as the otel global. Spans are sampled by
// cfg.SampleRatio unless the caller's trace was already sampled. The stdout
// exporter writes to out, or os.Stdout when out is nil.
func Init(cfg config.TracingConfig, version string, out io.Writer) (*Provider, error) {
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	switch cfg.Exporter {
	case "", ExporterNone:
	case ExporterStdout:
		if out == nil {
			out = os.Stdout
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	default:
		return nil, fmt.Errorf("unknown trace exporter: %s", cfg.Exporter)
	}

	p := &Provider{
		tp:       sdktrace.NewTracerProvider(opts...),
		previous: otel.GetTracerProvider(),
	}
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return p, nil
}

// Shutdown flushes pending spans and reinstalls the provider that was global
// before Init. Later calls are no-ops.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tp == nil {
		return nil
	}
	otel.SetTracerProvider(p.previous)
	err := p.tp.Shutdown(ctx)
	p.tp = nil
	return err
}

// Extract continues a trace carried in inbound traceparent headers
func Extract(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

// StartSpan starts a span. When the span belongs to a real trace its id
// replaces any generated trace id in ctx, so log lines and spans agree.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
	if sc := span.SpanContext(); sc.IsValid() {
		ctx = WithTraceID(ctx, sc.TraceID().String())
	}
	return ctx, span
}

// StartInvocationSpan starts a span around one ability invocation, tagged
// with the ability, request and transport found in ctx.
func StartInvocationSpan(ctx context.Context, spanName, abilityID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("ability.id", abilityID)}
	if requestID := GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, attribute.String("ability.request_id", requestID))
	}
	if transport := GetTransport(ctx); transport != "" {
		attrs = append(attrs, attribute.String("ability.transport", transport))
	}

	return StartSpan(WithAbilityID(ctx, abilityID), spanName, attrs...)
}
