// Package apperrors defines the error taxonomy shared by the pipeline, annotation and
// publishing services.
package apperrors

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input. It is never silently corrected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports a reference to a record that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ExternalCallError wraps a failed generation, evaluation or dispatch call together with
// the stage that triggered it.
type ExternalCallError struct {
	Stage string
	Err   error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ExternalCallError) Unwrap() error {
	return e.Err
}

// ConcurrencyConflictError reports that a transition's precondition no longer holds.
// Callers must re-read the current state before retrying.
// When the state matched but the row moved on, the versions tell the two apart.
type ConcurrencyConflictError struct {
	Resource        string
	ID              string
	Expected        string
	Actual          string
	ExpectedVersion int
	ActualVersion   int
}

func (e *ConcurrencyConflictError) Error() string {
	if e.Expected == "" && e.Actual == "" {
		return fmt.Sprintf("%s %q was modified concurrently", e.Resource, e.ID)
	}
	if e.Expected == e.Actual && e.ExpectedVersion != e.ActualVersion {
		return fmt.Sprintf("%s %q: expected version %d, found %d (state %q)",
			e.Resource, e.ID, e.ExpectedVersion, e.ActualVersion, e.Actual)
	}
	return fmt.Sprintf("%s %q: expected state %q, found %q", e.Resource, e.ID, e.Expected, e.Actual)
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// External builds an ExternalCallError for the given stage.
func External(stage string, err error) error {
	return &ExternalCallError{Stage: stage, Err: err}
}

// Conflict builds a ConcurrencyConflictError.
func Conflict(resource, id, expected, actual string) error {
	return &ConcurrencyConflictError{Resource: resource, ID: id, Expected: expected, Actual: actual}
}

// StaleWrite builds the ConcurrencyConflictError of a compare-and-set on (state, version).
func StaleWrite(resource, id, expectedState, actualState string, expectedVersion, actualVersion int) error {
	return &ConcurrencyConflictError{
		Resource:        resource,
		ID:              id,
		Expected:        expectedState,
		Actual:          actualState,
		ExpectedVersion: expectedVersion,
		ActualVersion:   actualVersion,
	}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsExternal reports whether err is or wraps an ExternalCallError.
func IsExternal(err error) bool {
	var target *ExternalCallError
	return errors.As(err, &target)
}

// IsConflict reports whether err is or wraps a ConcurrencyConflictError.
func IsConflict(err error) bool {
	var target *ConcurrencyConflictError
	return errors.As(err, &target)
}
