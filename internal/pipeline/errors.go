// Package pipeline implements the tool-call execution pipeline: an
// ordered middleware chain composing validation, confirmation,
// concurrency limiting, timeouts, execution, result conversion, and
// logging around the tool registry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flydevtools/flyserve/internal/limits"
	"github.com/flydevtools/flyserve/internal/prompts"
	"github.com/flydevtools/flyserve/internal/resources"
	"github.com/flydevtools/flyserve/internal/tools"
)

// Kind tags a structured call error for exhaustive handling at every
// consumption site.
type Kind string

const (
	KindToolNotFound         Kind = "tool_not_found"
	KindConfirmationRequired Kind = "confirmation_required"
	KindConcurrencyLimit     Kind = "concurrency_limit_exceeded"
	KindTimeout              Kind = "timeout_exceeded"
	KindCancelled            Kind = "cancellation_requested"
	KindSizeLimit            Kind = "size_limit_exceeded"
	KindSchemaValidation     Kind = "schema_validation_failed"
	KindResourceNotFound     Kind = "resource_not_found"
	KindOutOfSandbox         Kind = "out_of_sandbox"
	KindPromptNotFound       Kind = "prompt_not_found"
	KindUnknown              Kind = "unknown"
)

// CallError is a structured error surfaced by the pipeline. Fields
// beyond Kind and Message are populated per kind: counter state for
// concurrency rejections, measured size for size violations, operation
// and duration for timeouts, violation list for schema failures.
type CallError struct {
	Kind    Kind
	Tool    string
	Message string
	Cause   error

	// Concurrency details.
	Current int
	Limit   int

	// Size details (bytes).
	Measured  int
	SizeLimit int

	// Timeout details.
	Operation string
	Duration  time.Duration

	// Schema validation details.
	Violations []string
}

// Error implements the error interface.
func (e *CallError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Tool != "" {
		parts = append(parts, e.Tool)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Cause
}

// Classify maps any error to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}

	var limitErr *limits.LimitError
	if errors.As(err, &limitErr) {
		return KindConcurrencyLimit
	}
	var timeoutErr *limits.TimeoutError
	if errors.As(err, &timeoutErr) {
		return KindTimeout
	}

	switch {
	case errors.Is(err, tools.ErrNotFound):
		return KindToolNotFound
	case errors.Is(err, resources.ErrOutOfSandbox):
		return KindOutOfSandbox
	case errors.Is(err, resources.ErrNotFound):
		return KindResourceNotFound
	case errors.Is(err, prompts.ErrNotFound):
		return KindPromptNotFound
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	return KindUnknown
}

// AsCallError wraps any error as a CallError, preserving an existing
// one and lifting limiter/timeout details into the structured fields.
func AsCallError(err error) *CallError {
	if err == nil {
		return nil
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr
	}

	var limitErr *limits.LimitError
	if errors.As(err, &limitErr) {
		return &CallError{
			Kind:    KindConcurrencyLimit,
			Tool:    limitErr.Tool,
			Message: limitErr.Error(),
			Cause:   err,
			Current: limitErr.Current,
			Limit:   limitErr.Limit,
		}
	}

	var timeoutErr *limits.TimeoutError
	if errors.As(err, &timeoutErr) {
		return &CallError{
			Kind:      KindTimeout,
			Message:   timeoutErr.Error(),
			Cause:     err,
			Operation: timeoutErr.Operation,
			Duration:  timeoutErr.Timeout,
		}
	}

	return &CallError{
		Kind:    Classify(err),
		Message: err.Error(),
		Cause:   err,
	}
}
