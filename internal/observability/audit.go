// Package observability records an append-only audit trail of ability
// invocations.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is one invocation in the audit trail
type AuditEvent struct {
	Timestamp time.Time
	AbilityID string
	Actor     string // caller user id
	Transport string
	RequestID string
	Status    string // success, failure or an engine error kind
	Duration  time.Duration
	TraceID   string
}

// AuditLogger writes audit events as JSON lines
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

// NewAuditLogger creates an audit logger writing to w
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: zerolog.New(w),
	}
}

// OpenAuditLog opens (or creates) an append-only audit file at path
func OpenAuditLog(path string) (*AuditLogger, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	a := NewAuditLogger(file)
	a.file = file
	return a, nil
}

// Record emits an audit event. When ctx carries a span its trace id wins
// over event.TraceID and the event is also attached to the span.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		event.TraceID = sc.TraceID().String()
		span.AddEvent("ability.audit", trace.WithAttributes(
			attribute.String("audit.ability_id", event.AbilityID),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("timestamp", event.Timestamp.UTC()).
		Str("ability_id", event.AbilityID).
		Str("status", event.Status).
		Int64("duration_ms", event.Duration.Milliseconds())

	if event.Actor != "" {
		entry = entry.Str("actor", event.Actor)
	}
	if event.Transport != "" {
		entry = entry.Str("transport", event.Transport)
	}
	if event.RequestID != "" {
		entry = entry.Str("request_id", event.RequestID)
	}
	if event.TraceID != "" {
		entry = entry.Str("trace_id", event.TraceID)
	}

	entry.Msg("")
}

// Close closes the audit file, if any
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
