package toolserver

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/abilityd/pkg/ability"
	"github.com/harun/abilityd/pkg/engine"
)

// Outcome labels recorded for invocations that returned output. Failed
// invocations are recorded with their engine.Kind.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ErrorHandler receives every runtime error a tool server sees. Handle must
// not block for long; a panic inside it is recovered and logged.
type ErrorHandler interface {
	Handle(abilityID string, err error, ictx ability.Context)
}

// ObservabilityHandler receives one record per invocation. Records are
// delivered asynchronously and never delay the response.
type ObservabilityHandler interface {
	Record(abilityID string, duration time.Duration, outcome string)
}

// ErrorLogHandler writes runtime errors to a zerolog logger
type ErrorLogHandler struct {
	logger zerolog.Logger
}

// NewErrorLogHandler creates an error handler logging through logger
func NewErrorLogHandler(logger zerolog.Logger) *ErrorLogHandler {
	return &ErrorLogHandler{logger: logger}
}

// Handle logs the error. Defects are logged at error level, everything else
// at warn.
func (h *ErrorLogHandler) Handle(abilityID string, err error, ictx ability.Context) {
	event := h.logger.Warn()
	if engine.KindOf(err).IsDefect() {
		event = h.logger.Error().Bool("defect", true)
	}

	event.
		Err(err).
		Str("ability_id", abilityID).
		Str("kind", codeOf(err)).
		Str("user_id", ictx.UserID).
		Str("request_id", ictx.RequestID).
		Str("transport", ictx.Transport).
		Msg("Tool invocation failed")
}

// NullErrorHandler discards errors
type NullErrorHandler struct{}

// Handle does nothing
func (NullErrorHandler) Handle(string, error, ability.Context) {}

// NullObservabilityHandler discards records
type NullObservabilityHandler struct{}

// Record does nothing
func (NullObservabilityHandler) Record(string, time.Duration, string) {}

// LogObservabilityHandler writes one debug line per invocation
type LogObservabilityHandler struct {
	logger zerolog.Logger
}

// NewLogObservabilityHandler creates an observability handler logging through logger
func NewLogObservabilityHandler(logger zerolog.Logger) *LogObservabilityHandler {
	return &LogObservabilityHandler{logger: logger}
}

// Record logs the invocation
func (h *LogObservabilityHandler) Record(abilityID string, duration time.Duration, outcome string) {
	h.logger.Debug().
		Str("ability_id", abilityID).
		Dur("duration", duration).
		Str("outcome", outcome).
		Msg("Tool invocation recorded")
}

// InvocationRecorder is satisfied by *metrics.Metrics
type InvocationRecorder interface {
	RecordInvocation(abilityID string, duration time.Duration, outcome string)
}

// MetricsObservabilityHandler forwards records to a metrics recorder
type MetricsObservabilityHandler struct {
	recorder InvocationRecorder
}

// NewMetricsObservabilityHandler creates an observability handler backed by recorder
func NewMetricsObservabilityHandler(recorder InvocationRecorder) *MetricsObservabilityHandler {
	return &MetricsObservabilityHandler{recorder: recorder}
}

// Record forwards the invocation to the recorder
func (h *MetricsObservabilityHandler) Record(abilityID string, duration time.Duration, outcome string) {
	h.recorder.RecordInvocation(abilityID, duration, outcome)
}

// ErrorHandlerByName resolves a configured error handler name
func ErrorHandlerByName(name string, logger zerolog.Logger) (ErrorHandler, error) {
	switch name {
	case "", "error_log":
		return NewErrorLogHandler(logger), nil
	case "null":
		return NullErrorHandler{}, nil
	default:
		return nil, fmt.Errorf("unknown error handler %q", name)
	}
}

// ObservabilityHandlerByName resolves a configured observability handler
// name. recorder is required for "metrics".
func ObservabilityHandlerByName(name string, logger zerolog.Logger, recorder InvocationRecorder) (ObservabilityHandler, error) {
	switch name {
	case "", "null":
		return NullObservabilityHandler{}, nil
	case "log":
		return NewLogObservabilityHandler(logger), nil
	case "metrics":
		if recorder == nil {
			return nil, fmt.Errorf("metrics observability handler requires a recorder")
		}
		return NewMetricsObservabilityHandler(recorder), nil
	default:
		return nil, fmt.Errorf("unknown observability handler %q", name)
	}
}
