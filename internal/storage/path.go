package storage

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/prn-tf/pixtube/internal/domain"
)

// PathConfig holds configuration for storage path generation.
type PathConfig struct {
	// BasePath is the root directory (or key prefix) for stored files.
	BasePath string

	// ShardLevels is the number of directory levels for sharding.
	// Default: 2 (e.g., /ab/cd/abcdef...)
	ShardLevels int

	// ShardWidth is the number of characters per shard level.
	// Default: 2 (e.g., ab, cd)
	ShardWidth int
}

// DefaultPathConfig returns the default path configuration.
func DefaultPathConfig(basePath string) PathConfig {
	return PathConfig{
		BasePath:    basePath,
		ShardLevels: 2,
		ShardWidth:  2,
	}
}

// maxExtensionLength bounds the extension kept from a client file name.
const maxExtensionLength = 10

// handlePattern matches handles produced by NewHandle.
var handlePattern = regexp.MustCompile(`^[0-9a-f]{32}(\.[a-z0-9]{1,10})?$`)

// NewHandle generates a fresh handle for an upload. Only a sanitized
// extension survives from the client-supplied name.
//
// Example:
//
//	originalName: "../../My Clip.MP4"
//	result: "9b1deb4d3b7d4bad9bdd2b0d7b3dcb6d.mp4"
func NewHandle(originalName string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id + sanitizeExtension(originalName)
}

// sanitizeExtension returns the lowercased extension of name with any
// character outside [a-z0-9] removed, or "" when nothing usable remains.
func sanitizeExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(strings.ReplaceAll(name, `\`, "/"))))
	ext = strings.TrimPrefix(ext, ".")

	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	clean := b.String()
	if clean == "" || len(clean) > maxExtensionLength {
		return ""
	}
	return "." + clean
}

// ValidateHandle rejects anything NewHandle could not have produced,
// which keeps handles from escaping the storage root.
func ValidateHandle(handle string) error {
	if !handlePattern.MatchString(handle) {
		return domain.NewDomainError(domain.ErrInvalidContentHandle, "malformed handle", handle)
	}
	return nil
}

// Extension returns the extension part of a handle including the dot.
func Extension(handle string) string {
	return path.Ext(handle)
}

// ComputePath generates the filesystem path for a handle.
// Uses directory sharding to distribute files across directories.
//
// Example with default config (2 levels, 2 chars each):
//
//	handle: "abcdef1234567890...mp4"
//	basePath: "/data"
//	result: "/data/ab/cd/abcdef1234567890...mp4"
func ComputePath(config PathConfig, handle string) string {
	components := []string{config.BasePath}
	components = append(components, GetShardDirs(config, handle)...)
	components = append(components, handle)
	return filepath.Join(components...)
}

// ComputeKey generates the slash-separated object key for a handle,
// sharded the same way as ComputePath.
func ComputeKey(config PathConfig, handle string) string {
	components := []string{}
	if config.BasePath != "" {
		components = append(components, strings.Trim(config.BasePath, "/"))
	}
	components = append(components, GetShardDirs(config, handle)...)
	components = append(components, handle)
	return path.Join(components...)
}

// GetShardDirs returns the shard directory components for a handle.
//
// Example:
//
//	handle: "abcdef..."
//	result: ["ab", "cd"]
func GetShardDirs(config PathConfig, handle string) []string {
	minLength := config.ShardLevels * config.ShardWidth
	if len(handle) < minLength {
		return nil
	}

	dirs := make([]string, config.ShardLevels)
	offset := 0
	for i := 0; i < config.ShardLevels; i++ {
		dirs[i] = handle[offset : offset+config.ShardWidth]
		offset += config.ShardWidth
	}

	return dirs
}
