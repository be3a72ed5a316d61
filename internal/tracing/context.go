package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for the inbound request ID
	RequestIDKey ContextKey = "request_id"
	// AbilityIDKey is the context key for the ability being invoked
	AbilityIDKey ContextKey = "ability_id"
	// TransportKey is the context key for the transport that received the call
	TransportKey ContextKey = "transport"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RequestID string
	AbilityID string
	Transport string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRequestID generates a new request ID
func NewRequestID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithAbilityID adds an ability ID to the context
func WithAbilityID(ctx context.Context, abilityID string) context.Context {
	return context.WithValue(ctx, AbilityIDKey, abilityID)
}

// WithTransport adds a transport name to the context
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, TransportKey, transport)
}

func getString(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// GetAbilityID retrieves the ability ID from the context
func GetAbilityID(ctx context.Context) string {
	return getString(ctx, AbilityIDKey)
}

// GetTransport retrieves the transport name from the context
func GetTransport(ctx context.Context) string {
	return getString(ctx, TransportKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RequestID: GetRequestID(ctx),
		AbilityID: GetAbilityID(ctx),
		Transport: GetTransport(ctx),
	}
}

// NewRequestContext returns ctx carrying a request ID and trace ID,
// generating either when absent.
func NewRequestContext(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = GetRequestID(ctx)
	}
	if requestID == "" {
		requestID = NewRequestID()
	}
	ctx = WithRequestID(ctx, requestID)
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return ctx
}

// LoggerFromContext adds tracing fields from ctx to a zerolog logger
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.RequestID != "" {
		lc = lc.Str("request_id", tc.RequestID)
	}
	if tc.AbilityID != "" {
		lc = lc.Str("ability", tc.AbilityID)
	}
	if tc.Transport != "" {
		lc = lc.Str("transport", tc.Transport)
	}
	return lc.Logger()
}
