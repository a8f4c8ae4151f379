// Package filesystem stores uploaded video files on local disk.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/pkg/crypto"
	"github.com/prn-tf/pixtube/internal/storage"
)

// tempDirName holds partially written uploads. It is skipped by Walk.
const tempDirName = ".tmp"

// Backend implements storage.Backend on a local directory tree.
type Backend struct {
	paths  storage.PathConfig
	logger zerolog.Logger
}

// NewBackend creates the storage root if needed and returns a Backend rooted there.
func NewBackend(root string, logger zerolog.Logger) (*Backend, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, tempDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &Backend{
		paths:  storage.DefaultPathConfig(root),
		logger: logger.With().Str("component", "storage").Str("backend", "filesystem").Logger(),
	}, nil
}

// Store writes the reader to a temporary file and renames it into place.
func (b *Backend) Store(ctx context.Context, reader io.Reader, originalName string) (*storage.StoredContent, error) {
	handle := storage.NewHandle(originalName)
	finalPath := storage.ComputePath(b.paths, handle)

	tmp, err := os.CreateTemp(filepath.Join(b.paths.BasePath, tempDirName), "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	hr := crypto.NewHashReader(reader)
	if _, err := io.Copy(tmp, &contextReader{ctx: ctx, r: hr}); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("failed to move upload into place: %w", err)
	}

	b.logger.Debug().
		Str("handle", handle).
		Int64("size", hr.Size()).
		Msg("stored content")

	return &storage.StoredContent{
		Handle: handle,
		Size:   hr.Size(),
		SHA256: hr.SHA256(),
	}, nil
}

// Open returns the stored file. The returned *os.File supports seeking.
func (b *Backend) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if err := storage.ValidateHandle(handle); err != nil {
		return nil, err
	}

	f, err := os.Open(storage.ComputePath(b.paths, handle))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewDomainError(domain.ErrContentNotFound, "open", handle)
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	return f, nil
}

// Delete removes the stored file. A missing file is not an error.
func (b *Backend) Delete(ctx context.Context, handle string) error {
	if err := storage.ValidateHandle(handle); err != nil {
		return err
	}

	err := os.Remove(storage.ComputePath(b.paths, handle))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// Exists checks if the stored file exists.
func (b *Backend) Exists(ctx context.Context, handle string) (bool, error) {
	if err := storage.ValidateHandle(handle); err != nil {
		return false, err
	}

	_, err := os.Stat(storage.ComputePath(b.paths, handle))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat content: %w", err)
}

// Walk visits every stored file under the root.
func (b *Backend) Walk(ctx context.Context, fn func(storage.ContentInfo) error) error {
	return filepath.WalkDir(b.paths.BasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == tempDirName {
				return filepath.SkipDir
			}
			return nil
		}

		handle := d.Name()
		if strings.HasPrefix(handle, ".") || storage.ValidateHandle(handle) != nil {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		return fn(storage.ContentInfo{
			Handle:  handle,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
}

// contextReader stops a copy once the context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Ensure Backend implements storage.Backend.
var _ storage.Backend = (*Backend)(nil)
