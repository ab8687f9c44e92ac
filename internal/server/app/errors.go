package app

import (
	"errors"
	"fmt"
)

// Domain error sentinels for the server application layer.
// These enable consistent HTTP status mapping via errors.Is().

var (
	// ErrValidation indicates invalid input from the caller.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates the requested account or resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotReady indicates a session exists but its provider client has not
	// reached the ready state.
	ErrNotReady = errors.New("session not ready")

	// ErrProvider indicates the delegated provider operation failed.
	ErrProvider = errors.New("provider failure")

	// ErrPersistence indicates a document-store operation failed.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError wraps ErrValidation with a descriptive message.
func ValidationError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}

// NotFoundError wraps ErrNotFound with a descriptive message.
func NotFoundError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrNotFound)
}

// NotReadyError wraps ErrNotReady with a descriptive message.
func NotReadyError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrNotReady)
}

// ProviderError wraps an underlying provider failure, preserving its
// diagnostic text for the caller.
func ProviderError(err error) error {
	return fmt.Errorf("%v: %w", err, ErrProvider)
}

// PersistenceError wraps an underlying store failure.
func PersistenceError(err error) error {
	return fmt.Errorf("%v: %w", err, ErrPersistence)
}
