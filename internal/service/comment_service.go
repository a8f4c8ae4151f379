package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/repository"
)

// CommentService handles posting comments.
type CommentService struct {
	commentRepo repository.CommentRepository
	videoRepo   repository.VideoRepository
	accountRepo repository.AccountRepository
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewCommentService creates a new CommentService.
func NewCommentService(repos *repository.Repositories, m *metrics.Metrics, logger zerolog.Logger) *CommentService {
	return &CommentService{
		commentRepo: repos.Comment,
		videoRepo:   repos.Video,
		accountRepo: repos.Account,
		metrics:     m,
		logger:      logger.With().Str("service", "comment").Logger(),
	}
}

// Post adds a comment by viewer to the video.
//
// Returns ErrForbidden for anonymous or banned viewers, domain.ErrVideoNotFound
// for unknown videos and ErrVideoNotRenderable when the video is blocked or its
// channel is banned.
func (s *CommentService) Post(ctx context.Context, viewer *domain.Account, videoID int64, body string) (*domain.Comment, error) {
	if !viewer.IsActive() {
		return nil, ErrForbidden
	}

	video, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Int64("video_id", videoID).Msg("failed to get video")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	owner, err := s.accountRepo.GetByID(ctx, video.OwnerID)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		s.logger.Error().Err(err).Int64("video_id", videoID).Msg("failed to get video owner")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !domain.CanComment(viewer, video, owner) {
		return nil, ErrVideoNotRenderable
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyComment
	}
	if utf8.RuneCountInString(body) > domain.MaxCommentLength {
		return nil, ErrCommentTooLong
	}

	comment := domain.NewComment(videoID, viewer.ID, body)
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		// The video was removed between the check and the insert.
		if errors.Is(err, domain.ErrVideoNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Int64("video_id", videoID).Msg("failed to create comment")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.metrics.RecordComment()
	s.logger.Info().
		Int64("comment_id", comment.ID).
		Int64("video_id", videoID).
		Int64("author_id", viewer.ID).
		Msg("comment posted")

	return comment, nil
}
