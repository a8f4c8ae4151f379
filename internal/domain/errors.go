// Package domain contains the core business entities for PixTube.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Account Errors
	// ===========================================

	// ErrAccountNotFound indicates the requested account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrHandleTaken indicates an account with the same handle exists.
	// Handles are compared case-sensitively.
	ErrHandleTaken = errors.New("handle already taken")

	// ===========================================
	// Video Errors
	// ===========================================

	// ErrVideoNotFound indicates the requested video does not exist.
	ErrVideoNotFound = errors.New("video not found")

	// ===========================================
	// Comment Errors
	// ===========================================

	// ErrCommentNotFound indicates the requested comment does not exist.
	ErrCommentNotFound = errors.New("comment not found")

	// ===========================================
	// Content Errors
	// ===========================================

	// ErrContentNotFound indicates the stored video file does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidContentHandle indicates a handle that could escape the storage root.
	ErrInvalidContentHandle = errors.New("invalid content handle")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., account handle, video id).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// WrapError wraps an error with domain context if it's not already a DomainError.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	return &DomainError{
		Err:     err,
		Message: message,
	}
}
