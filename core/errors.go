package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// StoreUnavailableError wraps a transient record-store I/O failure.
// Reads and plain upserts hitting this error are safe to retry.
type StoreUnavailableError struct {
	Err error
}

func NewStoreUnavailableError(err error) error {
	return &StoreUnavailableError{Err: err}
}

func (err StoreUnavailableError) Error() string {
	if err.Err == nil {
		return "record store unavailable"
	}
	return "record store unavailable: " + err.Err.Error()
}

func (err StoreUnavailableError) Unwrap() error { return err.Err }

func IsStoreUnavailable(err error) bool {
	_, ok := errors.Cause(err).(*StoreUnavailableError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
