package tracing

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/harun/abilityd/internal/config"
)

func initProvider(t *testing.T, cfg config.TracingConfig, out *bytes.Buffer) *Provider {
	t.Helper()
	p, err := Init(cfg, "test", out)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func TestInit_StdoutExporter(t *testing.T) {
	var out bytes.Buffer
	p := initProvider(t, config.TracingConfig{
		ServiceName: "abilityd-test",
		Exporter:    ExporterStdout,
		SampleRatio: 1,
	}, &out)

	ctx, span := StartInvocationSpan(context.Background(), SpanInvoke, "wpv/create-post")
	span.End()

	if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
		t.Fatal("Expected a valid span context")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !strings.Contains(out.String(), SpanInvoke) {
		t.Errorf("Expected exported span %q, got %s", SpanInvoke, out.String())
	}
	if !strings.Contains(out.String(), "wpv/create-post") {
		t.Errorf("Expected ability attribute in exported span, got %s", out.String())
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(config.TracingConfig{ServiceName: "abilityd-test", Exporter: "jaeger", SampleRatio: 1}, "test", nil)
	if err == nil {
		t.Error("Expected error for unknown exporter")
	}
}

func TestShutdown_RestoresPreviousProvider(t *testing.T) {
	p := initProvider(t, config.TracingConfig{ServiceName: "abilityd-test", SampleRatio: 1}, nil)

	_, span := StartSpan(context.Background(), "inside")
	if !span.SpanContext().IsValid() {
		t.Error("Expected spans to carry trace ids while the provider is installed")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Second Shutdown should be a no-op, got %v", err)
	}

	_, span = StartSpan(context.Background(), "after")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Error("Expected the no-op provider to be restored after Shutdown")
	}
}

func TestStartSpan_ReplacesGeneratedTraceID(t *testing.T) {
	initProvider(t, config.TracingConfig{ServiceName: "abilityd-test", SampleRatio: 1}, nil)

	ctx := NewRequestContext(context.Background(), "req-1")
	generated := GetTraceID(ctx)

	ctx, span := StartSpan(ctx, "call")
	defer span.End()

	if GetTraceID(ctx) == generated {
		t.Error("Expected the span trace id to replace the generated one")
	}
	if GetTraceID(ctx) != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace id %s, got %s", span.SpanContext().TraceID(), GetTraceID(ctx))
	}
	if GetRequestID(ctx) != "req-1" {
		t.Errorf("Expected request id to survive, got %s", GetRequestID(ctx))
	}
}

func TestExtract_ContinuesInboundTrace(t *testing.T) {
	initProvider(t, config.TracingConfig{ServiceName: "abilityd-test", SampleRatio: 0}, nil)

	header := http.Header{}
	header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	ctx, span := StartSpan(Extract(context.Background(), header), "call")
	defer span.End()

	if got := GetTraceID(ctx); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("Expected inbound trace id, got %s", got)
	}
	if !span.SpanContext().IsSampled() {
		t.Error("Expected a sampled parent to keep the child sampled")
	}
}
