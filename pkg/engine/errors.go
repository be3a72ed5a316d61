package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harun/abilityd/pkg/schema"
)

// Kind classifies an invocation failure
type Kind string

const (
	KindUnknownAbility          Kind = "unknown_ability"
	KindPermissionDenied        Kind = "permission_denied"
	KindInvalidInput            Kind = "invalid_input"
	KindOutputContractViolation Kind = "output_contract_violation"
	KindTimeout                 Kind = "timeout"
	KindBusinessFailure         Kind = "business_failure"
)

// IsDefect reports whether the kind signals a bug in ability code rather
// than a caller or business error.
func (k Kind) IsDefect() bool {
	return k == KindOutputContractViolation
}

// Error is returned by Engine.Invoke for every failed invocation
type Error struct {
	Kind       Kind
	AbilityID  string
	Message    string
	Violations []schema.Violation
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Violations) > 0 {
		parts := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			parts = append(parts, v.Error())
		}
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(parts, "; "))
	}
	return msg
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of an engine error, or "" for other errors
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
