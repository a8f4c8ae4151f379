package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/repository"
	"github.com/prn-tf/pixtube/internal/storage"
)

// VideoService handles uploads, the public feed and the video page.
type VideoService struct {
	videoRepo   repository.VideoRepository
	accountRepo repository.AccountRepository
	commentRepo repository.CommentRepository
	storage     storage.Backend
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewVideoService creates a new VideoService.
func NewVideoService(
	repos *repository.Repositories,
	backend storage.Backend,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *VideoService {
	return &VideoService{
		videoRepo:   repos.Video,
		accountRepo: repos.Account,
		commentRepo: repos.Comment,
		storage:     backend,
		metrics:     m,
		logger:      logger.With().Str("service", "video").Logger(),
	}
}

// UploadInput contains a submitted upload form.
type UploadInput struct {
	Title string

	// OriginalName is the client file name. Only its extension is kept.
	OriginalName string

	Content io.Reader
}

// Upload stores the content and records a new visible video owned by viewer.
func (s *VideoService) Upload(ctx context.Context, viewer *domain.Account, input UploadInput) (*domain.Video, error) {
	if !domain.CanUpload(viewer) {
		return nil, ErrForbidden
	}

	title := strings.TrimSpace(input.Title)
	if title == "" || utf8.RuneCountInString(title) > domain.MaxTitleLength {
		return nil, ErrInvalidTitle
	}
	if input.Content == nil {
		return nil, ErrMissingContent
	}

	stored, err := s.storage.Store(ctx, input.Content, input.OriginalName)
	if err != nil {
		s.logger.Error().Err(err).Int64("account_id", viewer.ID).Msg("failed to store upload")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if stored.Size == 0 {
		s.discard(ctx, stored.Handle)
		return nil, ErrMissingContent
	}

	video := domain.NewVideo(viewer.ID, title, stored.Handle)
	video.OriginalName = input.OriginalName
	video.Size = stored.Size
	video.Checksum = stored.SHA256

	if err := s.videoRepo.Create(ctx, video); err != nil {
		s.discard(ctx, stored.Handle)
		s.logger.Error().Err(err).Int64("account_id", viewer.ID).Msg("failed to record video")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.RecordUpload(video.Size)
	s.logger.Info().
		Int64("video_id", video.ID).
		Int64("owner_id", video.OwnerID).
		Str("content_handle", video.ContentHandle).
		Int64("size", video.Size).
		Msg("video uploaded")

	return video, nil
}

// discard removes a stored file that never got a video row.
// The content sweeper picks it up if this fails.
func (s *VideoService) discard(ctx context.Context, handle string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), handle); err != nil {
		s.logger.Warn().Err(err).Str("content_handle", handle).Msg("failed to discard stored upload")
	}
}

// FeedItem is one entry of the public feed.
type FeedItem struct {
	Video *domain.Video
	Owner *domain.Account
}

// Feed returns every visible video in upload order with its owner.
func (s *VideoService) Feed(ctx context.Context) ([]FeedItem, error) {
	videos, err := s.videoRepo.ListVisible(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list videos")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	owners := newAccountLookup(s.accountRepo)
	items := make([]FeedItem, 0, len(videos))
	for _, v := range videos {
		owner, err := owners.get(ctx, v.OwnerID)
		if err != nil {
			s.logger.Error().Err(err).Int64("video_id", v.ID).Msg("failed to load video owner")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		items = append(items, FeedItem{Video: v, Owner: owner})
	}
	return items, nil
}

// CommentView is a comment together with its author.
type CommentView struct {
	Comment *domain.Comment
	Author  *domain.Account
}

// ViewResult is everything the video page needs.
type ViewResult struct {
	Video *domain.Video

	// Owner is nil when the owning account no longer exists.
	Owner *domain.Account

	State domain.VideoState

	// Comments holds the visible comments; empty unless State is renderable.
	Comments []CommentView

	// CanComment reports whether the viewer may post on this page.
	CanComment bool
}

// View decides how the video page is shown to viewer and, for a renderable
// video, counts one view. Returns domain.ErrVideoNotFound for unknown ids.
func (s *VideoService) View(ctx context.Context, viewer *domain.Account, id int64) (*ViewResult, error) {
	video, owner, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &ViewResult{
		Video: video,
		Owner: owner,
		State: domain.DecideVideo(video, owner),
	}
	if result.State != domain.VideoStateRenderable {
		s.metrics.RecordVideoPage(result.State.String(), false)
		return result, nil
	}

	views, err := s.videoRepo.IncrementViews(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Int64("video_id", id).Msg("failed to count view")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	video.Views = views

	comments, err := s.commentRepo.ListVisibleByVideo(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Int64("video_id", id).Msg("failed to list comments")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	authors := newAccountLookup(s.accountRepo)
	result.Comments = make([]CommentView, 0, len(comments))
	for _, c := range comments {
		author, err := authors.get(ctx, c.AuthorID)
		if err != nil {
			s.logger.Error().Err(err).Int64("comment_id", c.ID).Msg("failed to load comment author")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		result.Comments = append(result.Comments, CommentView{Comment: c, Author: author})
	}

	result.CanComment = domain.CanComment(viewer, video, owner)
	s.metrics.RecordVideoPage(result.State.String(), true)

	return result, nil
}

// OpenContent returns the stored file of a renderable video. It never counts a view.
// The caller must close the reader.
func (s *VideoService) OpenContent(ctx context.Context, id int64) (*domain.Video, io.ReadCloser, error) {
	video, owner, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if domain.DecideVideo(video, owner) != domain.VideoStateRenderable {
		return nil, nil, ErrVideoNotRenderable
	}

	rc, err := s.storage.Open(ctx, video.ContentHandle)
	if err != nil {
		if errors.Is(err, domain.ErrContentNotFound) {
			s.logger.Warn().Int64("video_id", id).Str("content_handle", video.ContentHandle).Msg("video file is missing")
			return nil, nil, err
		}
		s.logger.Error().Err(err).Int64("video_id", id).Msg("failed to open video file")
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return video, rc, nil
}

// load fetches a video and its owner. A missing owner is returned as nil.
func (s *VideoService) load(ctx context.Context, id int64) (*domain.Video, *domain.Account, error) {
	video, err := s.videoRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			return nil, nil, err
		}
		s.logger.Error().Err(err).Int64("video_id", id).Msg("failed to get video")
		return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	owner, err := s.accountRepo.GetByID(ctx, video.OwnerID)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			s.logger.Error().Err(err).Int64("video_id", id).Msg("failed to get video owner")
			return nil, nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		owner = nil
	}
	return video, owner, nil
}

// accountLookup memoizes account reads for one listing.
type accountLookup struct {
	repo repository.AccountRepository
	seen map[int64]*domain.Account
}

func newAccountLookup(repo repository.AccountRepository) *accountLookup {
	return &accountLookup{repo: repo, seen: make(map[int64]*domain.Account)}
}

// get returns the account or nil when it does not exist.
func (l *accountLookup) get(ctx context.Context, id int64) (*domain.Account, error) {
	if a, ok := l.seen[id]; ok {
		return a, nil
	}
	a, err := l.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		a = nil
	}
	l.seen[id] = a
	return a, nil
}
