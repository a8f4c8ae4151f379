// Package crypto provides hashing and token helpers for PixTube.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// HashReader wraps an io.Reader and computes a SHA-256 digest and byte count while reading.
// Uploads are hashed in the same pass that writes them to storage.
type HashReader struct {
	reader   io.Reader
	sha256   hash.Hash
	size     int64
	finished bool
}

// NewHashReader creates a new HashReader.
func NewHashReader(r io.Reader) *HashReader {
	return &HashReader{
		reader: r,
		sha256: sha256.New(),
	}
}

// Read implements io.Reader and updates the digest.
func (h *HashReader) Read(p []byte) (n int, err error) {
	n, err = h.reader.Read(p)
	if n > 0 {
		h.sha256.Write(p[:n])
		h.size += int64(n)
	}
	if err == io.EOF {
		h.finished = true
	}
	return n, err
}

// SHA256 returns the hex-encoded SHA-256 hash.
// Should only be called after reading is complete.
func (h *HashReader) SHA256() string {
	return hex.EncodeToString(h.sha256.Sum(nil))
}

// Size returns the total number of bytes read.
func (h *HashReader) Size() int64 {
	return h.size
}

// IsFinished returns true if EOF was reached.
func (h *HashReader) IsFinished() bool {
	return h.finished
}

// ComputeSHA256 computes the SHA-256 hash of a byte slice.
func ComputeSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ComputeStreamSHA256 computes the SHA-256 hash of a reader's content.
func ComputeStreamSHA256(r io.Reader) (string, int64, error) {
	h := sha256.New()
	size, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to compute SHA-256: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
