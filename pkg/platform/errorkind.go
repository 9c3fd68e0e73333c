package platform

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an adapter failure so the executor can decide
// whether to retry, honor a throttling delay, or escalate immediately.
type ErrorKind string

const (
	Transient  ErrorKind = "Transient"
	Permanent  ErrorKind = "Permanent"
	NotFound   ErrorKind = "NotFound"
	AuthFailure ErrorKind = "AuthFailure"
	Throttled  ErrorKind = "Throttled"
)

// AdapterError is the typed error every Adapter method returns on failure.
type AdapterError struct {
	Kind       ErrorKind
	Operation  string
	Message    string
	RetryAfter time.Duration // only meaningful when Kind == Throttled
	Cause      error
}

func (e *AdapterError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Operation, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s failed (%s)", e.Operation, e.Kind)
}

func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// NewAdapterError builds an AdapterError of the given kind.
func NewAdapterError(kind ErrorKind, operation, message string, cause error) *AdapterError {
	return &AdapterError{Kind: kind, Operation: operation, Message: message, Cause: cause}
}

// Retryable reports whether the executor's retry loop should attempt this
// action again: only Transient and Throttled errors are retryable.
func (k ErrorKind) Retryable() bool {
	return k == Transient || k == Throttled
}

// KindOf extracts the ErrorKind from err, defaulting to Permanent for any
// error that did not originate from an adapter.
func KindOf(err error) ErrorKind {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Kind
	}
	return Permanent
}
