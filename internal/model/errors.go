package model

import (
	"errors"
	"fmt"
)

// ErrNotFound covers lookups of unknown document ids.
var ErrNotFound = errors.New("document not found")

// ValidationError rejects malformed input before any state mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError means the requested event has no valid transition from
// the document's current state. It carries the authoritative status so
// the caller can reconcile without a re-fetch.
type ConflictError struct {
	Current Status
	Msg     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (current status %s)", e.Msg, e.Current)
}

// CollaboratorError wraps a rendering-engine or storage failure. The
// document is moved to ERROR with a retry path; the failure is never
// terminal.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
