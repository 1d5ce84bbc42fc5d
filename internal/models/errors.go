package models

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed input. The message is
// safe to show to the caller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a reference to an entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ProviderError reports a failed call to an external chat provider.
// It carries the conversation id so the caller can retry just the
// assistant turn, and must never contain the API secret.
type ProviderError struct {
	Platform       Platform
	ConversationID int64
	RequestID      string
	Err            error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed (conversation %d, request %s): %v",
		e.Platform, e.ConversationID, e.RequestID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StorageError wraps an underlying store failure. Error() stays opaque
// so query text never reaches a caller; the wrapped error is for logs.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s", e.Op)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
