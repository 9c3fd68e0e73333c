// Package errors defines the structured error taxonomy surfaced across the
// remediation engine's API boundary: a typed AppError carrying an HTTP
// status and an optional wrapped cause, plus the specific error types the
// playbook executor produces (see §7 of the specification this engine
// implements).
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies an AppError for status-code mapping, log filtering,
// and caller branching.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"

	// Executor-specific types (§7 of the specification).
	ErrorTypePlaybookNotFound   ErrorType = "playbook_not_found"
	ErrorTypeCircuitOpen        ErrorType = "circuit_open"
	ErrorTypeActionDisabled     ErrorType = "action_disabled"
	ErrorTypeActionFailed       ErrorType = "action_failed"
	ErrorTypeHealthCheckTimeout ErrorType = "health_check_timeout"
	ErrorTypeHealthCheckFailed  ErrorType = "health_check_failed"
	ErrorTypeRollbackFailed     ErrorType = "rollback_failed"
)

var statusCodes = map[ErrorType]int{
	ErrorTypeValidation:         http.StatusBadRequest,
	ErrorTypeAuth:               http.StatusUnauthorized,
	ErrorTypeNotFound:           http.StatusNotFound,
	ErrorTypeConflict:           http.StatusConflict,
	ErrorTypeTimeout:            http.StatusRequestTimeout,
	ErrorTypeRateLimit:          http.StatusTooManyRequests,
	ErrorTypeDatabase:           http.StatusInternalServerError,
	ErrorTypeNetwork:            http.StatusInternalServerError,
	ErrorTypeInternal:           http.StatusInternalServerError,
	ErrorTypePlaybookNotFound:   http.StatusNotFound,
	ErrorTypeCircuitOpen:        http.StatusServiceUnavailable,
	ErrorTypeActionDisabled:     http.StatusForbidden,
	ErrorTypeActionFailed:       http.StatusInternalServerError,
	ErrorTypeHealthCheckTimeout: http.StatusGatewayTimeout,
	ErrorTypeHealthCheckFailed:  http.StatusInternalServerError,
	ErrorTypeRollbackFailed:     http.StatusInternalServerError,
}

// AppError is the engine's structured error value. It is never returned
// across the Execute boundary for expected failure modes (those become a
// PlaybookExecutionResult with success=false); the executor uses it
// internally to build those results' messages.
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

func New(t ErrorType, message string) *AppError {
	code, ok := statusCodes[t]
	if !ok {
		code = http.StatusInternalServerError
	}
	return &AppError{Type: t, Message: message, StatusCode: code}
}

func Wrap(cause error, t ErrorType, message string) *AppError {
	err := New(t, message)
	err.Cause = cause
	return err
}

func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(" (")
		b.WriteString(e.Details)
		b.WriteString(")")
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// Predefined constructors for the taxonomy's generic members.

func NewValidationError(message string) *AppError { return New(ErrorTypeValidation, message) }

func NewDatabaseError(operation string, cause error) *AppError {
	return Wrap(cause, ErrorTypeDatabase, "database operation failed: "+operation)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, resource+" not found")
}

func NewAuthError(message string) *AppError { return New(ErrorTypeAuth, message) }

func NewTimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, "operation timed out: "+operation)
}

// Executor-specific constructors (§7).

func NewPlaybookNotFound(errorType string) *AppError {
	return New(ErrorTypePlaybookNotFound, "no playbook registered for error type "+errorType)
}

func NewCircuitOpen(key string) *AppError {
	return New(ErrorTypeCircuitOpen, "circuit breaker open for key "+key)
}

func NewActionDisabled(action string) *AppError {
	return New(ErrorTypeActionDisabled, "action disabled by configuration: "+action)
}

func NewActionFailed(action string, kind string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeActionFailed, "action %s failed (%s)", action, kind)
}

func NewHealthCheckTimeout(resource string) *AppError {
	return New(ErrorTypeHealthCheckTimeout, "health check timed out for "+resource)
}

func NewHealthCheckFailed(resource, reason string) *AppError {
	return New(ErrorTypeHealthCheckFailed, "health check failed for "+resource).WithDetails(reason)
}

func NewRollbackFailed(resource string, cause error) *AppError {
	return Wrap(cause, ErrorTypeRollbackFailed, "rollback failed for "+resource)
}

// IsType reports whether err is an *AppError of type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// GetType returns the AppError's type, or ErrorTypeInternal for any other
// error (including nil-safe handling upstream by the caller).
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP status code to report for err.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorMessages holds the safe, user-facing strings for error types whose
// internal Message should never reach an external caller.
var ErrorMessages = struct {
	ResourceNotFound       string
	AuthenticationFailed   string
	OperationTimeout       string
	RateLimitExceeded      string
	ConcurrentModification string
}{
	ResourceNotFound:       "The requested resource was not found",
	AuthenticationFailed:   "Authentication failed",
	OperationTimeout:       "The operation timed out",
	RateLimitExceeded:      "Rate limit exceeded, please try again later",
	ConcurrentModification: "The resource was modified concurrently",
}

// SafeErrorMessage returns a message safe to expose to an external caller:
// validation messages pass through (they describe the caller's own input),
// everything else is replaced with a generic, type-specific message.
func SafeErrorMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "An unexpected error occurred"
	}
	switch appErr.Type {
	case ErrorTypeValidation:
		return appErr.Message
	case ErrorTypeNotFound:
		return ErrorMessages.ResourceNotFound
	case ErrorTypeAuth:
		return ErrorMessages.AuthenticationFailed
	case ErrorTypeTimeout, ErrorTypeHealthCheckTimeout:
		return ErrorMessages.OperationTimeout
	case ErrorTypeRateLimit:
		return ErrorMessages.RateLimitExceeded
	case ErrorTypeConflict:
		return ErrorMessages.ConcurrentModification
	default:
		return "An internal error occurred"
	}
}

// LogFields builds structured logging fields for err, suitable for passing
// to logrus.WithFields.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{"error": err.Error()}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fields
	}
	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain combines multiple errors (skipping nils) with " -> " between them,
// preserving the order failures occurred in a chained playbook execution.
// A single error is returned unchanged; zero errors yields nil.
func Chain(errs ...error) error {
	var present []error
	for _, e := range errs {
		if e != nil {
			present = append(present, e)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	default:
		msgs := make([]string, len(present))
		for i, e := range present {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("%s", strings.Join(msgs, " -> "))
	}
}
