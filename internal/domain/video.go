package domain

import (
	"time"
)

// Visibility is the moderation flag carried by videos and comments.
type Visibility string

const (
	// VisibilityVisible is the default for new content.
	VisibilityVisible Visibility = "visible"

	// VisibilityBlocked content is hidden from the public by an administrator.
	VisibilityBlocked Visibility = "blocked"
)

// IsValid returns true for a known visibility value.
func (v Visibility) IsValid() bool {
	return v == VisibilityVisible || v == VisibilityBlocked
}

// MaxTitleLength is the maximum length of a video title in characters.
const MaxTitleLength = 200

// Video is an uploaded video and its metadata.
type Video struct {
	// ID is the unique identifier for the video (auto-generated).
	ID int64 `json:"id"`

	// Title is the display title given at upload.
	Title string `json:"title"`

	// ContentHandle locates the stored file in the storage backend.
	ContentHandle string `json:"content_handle"`

	// OriginalName is the client-supplied file name, kept for display only.
	OriginalName string `json:"original_name"`

	// Size is the stored file size in bytes.
	Size int64 `json:"size"`

	// Checksum is the hex-encoded SHA-256 of the stored file.
	Checksum string `json:"checksum"`

	// OwnerID is the ID of the uploading account.
	OwnerID int64 `json:"owner_id"`

	// Views counts renderable page views. It only increases.
	Views int64 `json:"views"`

	// Visibility is the moderation flag.
	Visibility Visibility `json:"visibility"`

	// CreatedAt is the timestamp of the upload.
	CreatedAt time.Time `json:"created_at"`
}

// NewVideo creates a new visible Video with zero views.
func NewVideo(ownerID int64, title, contentHandle string) *Video {
	return &Video{
		Title:         title,
		ContentHandle: contentHandle,
		OwnerID:       ownerID,
		Visibility:    VisibilityVisible,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsBlocked returns true if an administrator blocked the video.
func (v *Video) IsBlocked() bool {
	return v.Visibility == VisibilityBlocked
}
