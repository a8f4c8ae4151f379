// Package storage defines where uploaded video files are kept.
// The storage layer persists raw bytes under generated handles; the database
// records which video owns which handle.
package storage

import (
	"context"
	"io"
	"time"
)

// StoredContent describes a file accepted by Backend.Store.
type StoredContent struct {
	// Handle identifies the file in the backend, e.g. "3f2a...c9.mp4".
	Handle string

	// Size is the number of bytes written.
	Size int64

	// SHA256 is the hex-encoded digest of the bytes written.
	SHA256 string
}

// ContentInfo describes a stored file found while walking a backend.
type ContentInfo struct {
	Handle  string
	Size    int64
	ModTime time.Time
}

// Backend defines the interface for storage backends.
// Implementations include the local filesystem and S3-compatible object stores.
type Backend interface {
	// Store copies the reader into a new file and returns its handle.
	// originalName is only used to pick a file extension; it never becomes part of a path.
	Store(ctx context.Context, reader io.Reader, originalName string) (*StoredContent, error)

	// Open returns the content of a stored file. The caller must close it.
	// Returns domain.ErrContentNotFound if the handle does not exist.
	// Filesystem readers also implement io.Seeker.
	Open(ctx context.Context, handle string) (io.ReadCloser, error)

	// Delete removes a stored file. Deleting a missing file is not an error.
	Delete(ctx context.Context, handle string) error

	// Exists checks if a file with the given handle exists.
	Exists(ctx context.Context, handle string) (bool, error)

	// Walk calls fn for every stored file. Returning an error from fn stops the walk.
	Walk(ctx context.Context, fn func(ContentInfo) error) error
}
