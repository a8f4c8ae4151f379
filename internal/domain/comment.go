package domain

import (
	"time"
)

// MaxCommentLength is the maximum length of a comment body in characters.
const MaxCommentLength = 5000

// Comment is a text comment left on a video.
type Comment struct {
	ID       int64  `json:"id"`
	Body     string `json:"body"`
	AuthorID int64  `json:"author_id"`
	VideoID  int64  `json:"video_id"`

	// Visibility is the moderation flag. Blocked comments are only listed to administrators.
	Visibility Visibility `json:"visibility"`

	CreatedAt time.Time `json:"created_at"`
}

// NewComment creates a new visible Comment.
func NewComment(videoID, authorID int64, body string) *Comment {
	return &Comment{
		Body:       body,
		AuthorID:   authorID,
		VideoID:    videoID,
		Visibility: VisibilityVisible,
		CreatedAt:  time.Now().UTC(),
	}
}

// IsBlocked returns true if an administrator blocked the comment.
func (c *Comment) IsBlocked() bool {
	return c.Visibility == VisibilityBlocked
}
