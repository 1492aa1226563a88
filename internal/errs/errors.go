// Package errs defines the error taxonomy shared by all components.
//
// Validation, not-found and conflict errors are caller faults and map to
// 4xx responses at the HTTP boundary. Ingestion and transport errors are
// operational failures and map to 5xx.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError indicates malformed or missing input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError indicates a referenced list, subscriber or token is absent.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// ConflictError indicates a uniqueness or state conflict: duplicate list
// title, duplicate subscriber email, already-unsubscribed token.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// IngestionError indicates the input stream could not be read or parsed.
// It aborts the whole batch; no partial report is produced.
type IngestionError struct {
	Err error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed: %v", e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// TransportError indicates mail delivery to the smarthost failed.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFoundError.
func NotFoundf(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a ConflictError.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsIngestion(err error) bool {
	var e *IngestionError
	return errors.As(err, &e)
}

func IsTransport(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}
