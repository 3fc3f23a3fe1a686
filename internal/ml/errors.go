package ml

import (
	"errors"
	"fmt"
)

// FailureKind classifies scoring failures; it is stored as ml_status
type FailureKind string

// Failure kinds
const (
	KindModelNotFound            FailureKind = "model_not_found"
	KindFeatureMappingIncomplete FailureKind = "feature_mapping_incomplete"
	KindRuntimeError             FailureKind = "runtime_error"
)

// StatusOK is the ml_status of a successfully scored response
const StatusOK = "ok"

// ErrNoBinding is returned when a version carries no ml_binding
var ErrNoBinding = errors.New("version has no ml_binding")

// Error is a typed scoring failure
type Error struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func modelNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindModelNotFound, Reason: fmt.Sprintf(format, args...)}
}

func mappingIncomplete(format string, args ...any) *Error {
	return &Error{Kind: KindFeatureMappingIncomplete, Reason: fmt.Sprintf(format, args...)}
}

func runtimeError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindRuntimeError, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the failure kind of err, defaulting to KindRuntimeError
func KindOf(err error) FailureKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRuntimeError
}

// ReasonOf returns a short human readable reason for err
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return e.Reason + ": " + e.Err.Error()
		}
		return e.Reason
	}
	return err.Error()
}
