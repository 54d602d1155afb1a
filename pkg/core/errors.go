// Package core provides the main memekeeper client and meme curation functionality.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
//
// These are the only error categories a caller can observe. Capability
// failures (LLM timeouts, malformed responses, security rejections) never
// surface as errors: they degrade to a neutral outcome at the call site and
// are logged, so the conversational turn always completes.
var (
	// ErrNotFound indicates that a requested meme was not found.
	ErrNotFound = errors.New("meme not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	// Configuration problems are fatal at construction, never at request time.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorageOperation indicates that a metadata store operation failed.
	// Every storage I/O failure surfaced by this package wraps it, so
	// callers can match the category with errors.Is while the underlying
	// driver error stays in the chain.
	ErrStorageOperation = errors.New("storage operation failed")
)

// MemeError wraps errors with operation context.
//
// It records which operation failed, making error messages more informative
// for debugging.
//
// Example:
//
//	err := &MemeError{
//	    Op:  "Admit",
//	    Err: ErrStorageOperation,
//	}
//	// Error() returns: "memekeeper: Admit: storage operation failed"
type MemeError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "memekeeper: <Op>: <Err>"
func (e *MemeError) Error() string {
	return fmt.Sprintf("memekeeper: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemeError.
func (e *MemeError) Unwrap() error {
	return e.Err
}

// NewMemeError creates a new MemeError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemeError("Admit", err)
//	}
func NewMemeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemeError{
		Op:  op,
		Err: err,
	}
}
