package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyNotFound is returned when a unit needs a state key that no
	// earlier unit wrote.
	ErrKeyNotFound = errors.New("key not found")

	ErrEmptyValue           = errors.New("empty value")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrZeroTotal is returned when a group sums to zero and cannot be
	// rescaled.
	ErrZeroTotal = errors.New("group total is zero")

	ErrEmptySeries   = errors.New("empty poll series")
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrInvalidValue marks a NaN, infinite or negative poll value.
	ErrInvalidValue = errors.New("invalid poll value")
)

// StateError reports a failed read or write of a state key.
type StateError struct {
	Key       string
	Operation string
	Err       error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Key, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// NewStateError wraps err with the key and operation involved.
func NewStateError(key, operation string, err error) *StateError {
	return &StateError{Key: key, Operation: operation, Err: err}
}

// MissingKey is the error units return when an upstream unit did not
// populate the key they depend on.
func MissingKey[T any](key Key[T], operation string) *StateError {
	return NewStateError(key.name, operation, ErrKeyNotFound)
}

// ValidationError collects every problem found while validating one
// subject, so a broken poll table is reported in full rather than one
// entity at a time. errors.Is matches any of the collected errors.
type ValidationError struct {
	Subject string
	Errs    []error
}

// NewValidationError starts an empty ValidationError for subject.
func NewValidationError(subject string) *ValidationError {
	return &ValidationError{Subject: subject}
}

// Add records err. nil errors are ignored.
func (e *ValidationError) Add(err error) {
	if err != nil {
		e.Errs = append(e.Errs, err)
	}
}

// Addf records a formatted error. It supports %w.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Add(fmt.Errorf(format, args...))
}

// Err returns e when it holds errors and nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Subject, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error { return e.Errs }
