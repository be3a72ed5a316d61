// Package engine invokes registered abilities inside a validation and
// permission envelope.
//
// Invariants:
// - The permission rule runs before any ability logic.
// - Execute is never called with input that failed validation.
// - Every failure is returned as *Error; nothing panics out of Invoke.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/abilityd/internal/tracing"
	"github.com/harun/abilityd/pkg/ability"
	"github.com/harun/abilityd/pkg/schema"
)

// Resolver looks up abilities by id
type Resolver interface {
	Get(id string) (*ability.Ability, error)
}

// Options configures an Engine
type Options struct {
	// Timeout bounds permission and execute per invocation. Zero disables it.
	Timeout time.Duration
	// StrictInput rejects input properties the schema does not declare.
	StrictInput bool
}

// Engine runs abilities. It holds no per-invocation state and is safe for
// concurrent use.
type Engine struct {
	resolver        Resolver
	inputValidator  *schema.Validator
	outputValidator *schema.Validator
	timeout         time.Duration
}

// New creates an engine resolving abilities through resolver
func New(resolver Resolver, opts Options) *Engine {
	return &Engine{
		resolver:        resolver,
		inputValidator:  schema.NewValidator(opts.StrictInput),
		outputValidator: schema.NewValidator(false),
		timeout:         opts.Timeout,
	}
}

// Timeout returns the configured per-invocation timeout
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// Invoke resolves, authorizes, validates and executes an ability.
func (e *Engine) Invoke(ctx context.Context, abilityID string, rawInput interface{}, ictx ability.Context) (map[string]interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartInvocationSpan(ctx, tracing.SpanInvoke, abilityID)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	a, err := e.resolver.Get(abilityID)
	if err != nil {
		return nil, e.fail(span, logger, &Error{
			Kind:      KindUnknownAbility,
			AbilityID: abilityID,
			Message:   fmt.Sprintf("unknown ability: %s", abilityID),
			Err:       err,
		})
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := e.authorize(ctx, a, ictx); err != nil {
		return nil, e.fail(span, logger, err)
	}

	if rawInput == nil {
		rawInput = map[string]interface{}{}
	}
	validated := e.inputValidator.Validate(rawInput, a.InputSchema)
	if !validated.Valid() {
		return nil, e.fail(span, logger, &Error{
			Kind:       KindInvalidInput,
			AbilityID:  a.ID,
			Message:    "invalid input",
			Violations: validated.Violations,
		})
	}
	input := validated.Value.(map[string]interface{})

	logger.Debug().Msg("Executing ability")

	output, execErr := e.execute(ctx, a, input, ictx)
	if execErr != nil {
		return nil, e.fail(span, logger, execErr)
	}

	checked := e.outputValidator.Validate(output, a.OutputSchema)
	if !checked.Valid() {
		return nil, e.fail(span, logger, &Error{
			Kind:       KindOutputContractViolation,
			AbilityID:  a.ID,
			Message:    "ability output violates its output schema",
			Violations: checked.Violations,
		})
	}

	span.SetStatus(codes.Ok, "")
	return checked.Value.(map[string]interface{}), nil
}

func (e *Engine) authorize(ctx context.Context, a *ability.Ability, ictx ability.Context) *Error {
	type result struct {
		allowed  bool
		panicked interface{}
	}

	res, err := await(ctx, func() (r result) {
		defer func() {
			if p := recover(); p != nil {
				r.panicked = p
			}
		}()
		r.allowed = a.Permission(ctx, ictx)
		return r
	})
	if err != nil {
		return e.timeoutError(a.ID, err)
	}

	if res.panicked != nil {
		log.Error().
			Str("ability", a.ID).
			Interface("panic", res.panicked).
			Msg("Permission rule panicked, denying invocation")
	}
	if !res.allowed || res.panicked != nil {
		return &Error{
			Kind:      KindPermissionDenied,
			AbilityID: a.ID,
			Message:   fmt.Sprintf("permission denied for ability %s", a.ID),
		}
	}

	return nil
}

func (e *Engine) execute(ctx context.Context, a *ability.Ability, input map[string]interface{}, ictx ability.Context) (map[string]interface{}, *Error) {
	type result struct {
		output   map[string]interface{}
		err      error
		panicked interface{}
	}

	res, err := await(ctx, func() (r result) {
		defer func() {
			if p := recover(); p != nil {
				r.panicked = p
			}
		}()
		r.output, r.err = a.Execute(ctx, input, ictx)
		return r
	})
	if err != nil {
		return nil, e.timeoutError(a.ID, err)
	}

	switch {
	case res.panicked != nil:
		return nil, &Error{
			Kind:      KindOutputContractViolation,
			AbilityID: a.ID,
			Message:   fmt.Sprintf("ability panicked: %v", res.panicked),
		}
	case res.err != nil:
		return nil, &Error{
			Kind:      KindBusinessFailure,
			AbilityID: a.ID,
			Message:   res.err.Error(),
			Err:       res.err,
		}
	case res.output == nil:
		return nil, &Error{
			Kind:      KindOutputContractViolation,
			AbilityID: a.ID,
			Message:   "ability returned no output",
		}
	}

	return res.output, nil
}

func (e *Engine) timeoutError(abilityID string, err error) *Error {
	msg := fmt.Sprintf("invocation of %s was cancelled", abilityID)
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("invocation of %s timed out", abilityID)
		if e.timeout > 0 {
			msg = fmt.Sprintf("%s after %v", msg, e.timeout)
		}
	}
	return &Error{
		Kind:      KindTimeout,
		AbilityID: abilityID,
		Message:   msg,
		Err:       err,
	}
}

func (e *Engine) fail(span trace.Span, logger zerolog.Logger, err *Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))

	event := logger.Warn()
	if err.Kind.IsDefect() {
		event = logger.Error().Bool("defect", true)
	}
	event.
		Str("kind", string(err.Kind)).
		Int("violations", len(err.Violations)).
		Err(err).
		Msg("Ability invocation failed")

	return err
}

// await runs fn in its own goroutine and returns its result, or ctx's
// error if ctx is done first. fn is not interrupted on cancellation.
func await[T any](ctx context.Context, fn func() T) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done := make(chan T, 1)
	go func() {
		done <- fn()
	}()

	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
