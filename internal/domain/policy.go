package domain

// VideoState is the outcome of deciding how a video page may be shown.
type VideoState int

const (
	// VideoStateRenderable means the video, its visible comments and the
	// comment form may be shown, and the view counts.
	VideoStateRenderable VideoState = iota

	// VideoStateBlocked means an administrator blocked the video.
	VideoStateBlocked

	// VideoStateChannelBanned means the owning account is banned.
	VideoStateChannelBanned
)

// String returns a short name for logs and metrics labels.
func (s VideoState) String() string {
	switch s {
	case VideoStateRenderable:
		return "renderable"
	case VideoStateBlocked:
		return "blocked"
	case VideoStateChannelBanned:
		return "channel_banned"
	default:
		return "unknown"
	}
}

// DecideVideo returns how a video may be shown. The block flag wins over the
// owner's standing, and the decision is the same for every viewer.
// A nil owner is treated as banned.
func DecideVideo(video *Video, owner *Account) VideoState {
	if video.IsBlocked() {
		return VideoStateBlocked
	}
	if owner == nil || owner.IsBanned() {
		return VideoStateChannelBanned
	}
	return VideoStateRenderable
}

// CanUpload reports whether the viewer may upload a video.
// A nil viewer is anonymous.
func CanUpload(viewer *Account) bool {
	return viewer.IsActive()
}

// CanComment reports whether the viewer may comment on the video.
func CanComment(viewer *Account, video *Video, owner *Account) bool {
	return viewer.IsActive() && DecideVideo(video, owner) == VideoStateRenderable
}

// CanModerate reports whether the viewer may perform administrative actions.
func CanModerate(viewer *Account) bool {
	return viewer.IsAdmin() && !viewer.IsBanned()
}

// CanBan reports whether target may be banned. Administrators never can.
func CanBan(target *Account) bool {
	return !target.IsAdmin()
}
