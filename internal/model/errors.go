package model

import (
	"errors"
	"fmt"
)

// ValidationError is a malformed task or URL. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrorScope tells callers how much work a provider error invalidates.
type ErrorScope string

const (
	ScopeRun  ErrorScope = "run"
	ScopeItem ErrorScope = "item"
)

// ProviderError is a failure from the listing provider or the extraction
// service.
type ProviderError struct {
	Provider string
	Scope    ErrorScope
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Scope, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError is a storage failure. The task must be redelivered.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsPersistence reports whether err wraps a PersistenceError.
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}
