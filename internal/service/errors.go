// Package service provides business logic services for PixTube.
package service

import "errors"

// Common service errors.
var (
	// Account errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBanned      = errors.New("account is banned")
	ErrInvalidHandle      = errors.New("invalid handle: must be 1-80 characters")
	ErrInvalidPassword    = errors.New("invalid password: must be 1-72 bytes")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Content errors
	ErrInvalidTitle       = errors.New("invalid title: must be 1-200 characters")
	ErrMissingContent     = errors.New("missing video content")
	ErrEmptyComment       = errors.New("comment must not be empty")
	ErrCommentTooLong     = errors.New("comment is too long")
	ErrVideoNotRenderable = errors.New("video cannot be shown")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
