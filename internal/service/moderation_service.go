package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/lock"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/repository"
	"github.com/prn-tf/pixtube/internal/storage"
)

// ErrModerationInProgress is returned when another request holds the ban lock of an account.
var ErrModerationInProgress = errors.New("account is being moderated by another request")

const (
	banLockTTL        = time.Minute
	banLockRetries    = 20
	banLockRetryDelay = 100 * time.Millisecond
)

// ModerationService performs administrative actions.
// Every method takes the acting viewer and returns ErrForbidden unless it is an administrator.
type ModerationService struct {
	repos   *repository.Repositories
	storage storage.Backend
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewModerationService creates a new ModerationService.
func NewModerationService(
	repos *repository.Repositories,
	backend storage.Backend,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ModerationService {
	return &ModerationService{
		repos:   repos,
		storage: backend,
		locker:  locker,
		metrics: m,
		logger:  logger.With().Str("service", "moderation").Logger(),
	}
}

// Overview is the full administrative listing, including blocked content.
type Overview struct {
	Accounts []*domain.Account
	Videos   []*domain.Video
	Comments []*domain.Comment
}

// Overview lists every account, video and comment in insertion order.
func (s *ModerationService) Overview(ctx context.Context, viewer *domain.Account) (*Overview, error) {
	if !domain.CanModerate(viewer) {
		return nil, ErrForbidden
	}

	accounts, err := s.repos.Account.List(ctx)
	if err != nil {
		return nil, s.internal(err, "failed to list accounts")
	}
	videos, err := s.repos.Video.ListAll(ctx)
	if err != nil {
		return nil, s.internal(err, "failed to list videos")
	}
	comments, err := s.repos.Comment.ListAll(ctx)
	if err != nil {
		return nil, s.internal(err, "failed to list comments")
	}

	return &Overview{Accounts: accounts, Videos: videos, Comments: comments}, nil
}

// BanResult describes the outcome of BanAccount.
type BanResult struct {
	Account *domain.Account

	// Skipped is true when the target is an administrator and nothing changed.
	Skipped bool

	// DeletedVideos holds the videos removed by the cascade.
	DeletedVideos []*domain.Video

	// CleanupFailures counts stored files that could not be removed.
	CleanupFailures int
}

// BanAccount bans the target and deletes every video it owns, together with
// the comments on those videos, in one transaction. The stored files are removed
// after commit; failures there are logged and counted but never undo the ban.
// Banning an administrator is a no-op.
func (s *ModerationService) BanAccount(ctx context.Context, viewer *domain.Account, targetID int64) (*BanResult, error) {
	if !domain.CanModerate(viewer) {
		return nil, ErrForbidden
	}

	lockKey := lock.Keys.BanAccount(targetID)
	acquired, err := s.locker.AcquireWithRetry(ctx, lockKey, banLockTTL, banLockRetries, banLockRetryDelay)
	if err != nil {
		return nil, s.internal(err, "failed to acquire ban lock")
	}
	if !acquired {
		return nil, ErrModerationInProgress
	}
	defer func() {
		if _, err := s.locker.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			s.logger.Error().Err(err).Str("key", lockKey).Msg("failed to release ban lock")
		}
	}()

	target, err := s.repos.Account.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		return nil, s.internal(err, "failed to get account")
	}

	result := &BanResult{Account: target}
	if !domain.CanBan(target) {
		s.logger.Info().
			Int64("actor_id", viewer.ID).
			Int64("account_id", target.ID).
			Msg("ignoring ban of administrator")
		result.Skipped = true
		return result, nil
	}

	var commentsDeleted int64
	err = s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Account.UpdateStanding(ctx, target.ID, domain.StandingBanned); err != nil {
			return err
		}
		n, err := s.repos.Comment.DeleteByVideoOwner(ctx, target.ID)
		if err != nil {
			return err
		}
		commentsDeleted = n
		deleted, err := s.repos.Video.DeleteByOwner(ctx, target.ID)
		if err != nil {
			return err
		}
		result.DeletedVideos = deleted
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		return nil, s.internal(err, "ban transaction failed")
	}
	target.Standing = domain.StandingBanned

	// The records are gone; file removal must not stop when the client hangs up.
	cleanupCtx := context.WithoutCancel(ctx)
	for _, v := range result.DeletedVideos {
		if err := s.storage.Delete(cleanupCtx, v.ContentHandle); err != nil {
			result.CleanupFailures++
			s.logger.Warn().
				Err(err).
				Int64("video_id", v.ID).
				Str("content_handle", v.ContentHandle).
				Msg("failed to delete video file after ban")
		}
	}

	s.metrics.RecordModeration("ban")
	s.metrics.RecordBanCascade(len(result.DeletedVideos), result.CleanupFailures)
	s.logger.Info().
		Int64("actor_id", viewer.ID).
		Int64("account_id", target.ID).
		Int("videos_deleted", len(result.DeletedVideos)).
		Int64("comments_deleted", commentsDeleted).
		Int("cleanup_failures", result.CleanupFailures).
		Msg("account banned")

	return result, nil
}

// UnbanAccount restores the target to active standing.
// Videos removed by the ban are not restored.
func (s *ModerationService) UnbanAccount(ctx context.Context, viewer *domain.Account, targetID int64) error {
	if !domain.CanModerate(viewer) {
		return ErrForbidden
	}

	if err := s.repos.Account.UpdateStanding(ctx, targetID, domain.StandingActive); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}
		return s.internal(err, "failed to unban account")
	}

	s.metrics.RecordModeration("unban")
	s.logger.Info().Int64("actor_id", viewer.ID).Int64("account_id", targetID).Msg("account unbanned")
	return nil
}

// SetVideoVisibility blocks or unblocks a video. Setting the current value again is a no-op.
func (s *ModerationService) SetVideoVisibility(ctx context.Context, viewer *domain.Account, videoID int64, visibility domain.Visibility) error {
	if !domain.CanModerate(viewer) {
		return ErrForbidden
	}
	if !visibility.IsValid() {
		return fmt.Errorf("unknown visibility %q", visibility)
	}

	if err := s.repos.Video.UpdateVisibility(ctx, videoID, visibility); err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			return err
		}
		return s.internal(err, "failed to update video visibility")
	}

	s.metrics.RecordModeration(actionName(visibility, "video"))
	s.logger.Info().
		Int64("actor_id", viewer.ID).
		Int64("video_id", videoID).
		Str("visibility", string(visibility)).
		Msg("video visibility changed")
	return nil
}

// SetCommentVisibility blocks or unblocks a comment. Setting the current value again is a no-op.
func (s *ModerationService) SetCommentVisibility(ctx context.Context, viewer *domain.Account, commentID int64, visibility domain.Visibility) error {
	if !domain.CanModerate(viewer) {
		return ErrForbidden
	}
	if !visibility.IsValid() {
		return fmt.Errorf("unknown visibility %q", visibility)
	}

	if err := s.repos.Comment.UpdateVisibility(ctx, commentID, visibility); err != nil {
		if errors.Is(err, domain.ErrCommentNotFound) {
			return err
		}
		return s.internal(err, "failed to update comment visibility")
	}

	s.metrics.RecordModeration(actionName(visibility, "comment"))
	s.logger.Info().
		Int64("actor_id", viewer.ID).
		Int64("comment_id", commentID).
		Str("visibility", string(visibility)).
		Msg("comment visibility changed")
	return nil
}

func (s *ModerationService) internal(err error, msg string) error {
	s.logger.Error().Err(err).Msg(msg)
	return fmt.Errorf("%w: %v", ErrInternalError, err)
}

func actionName(v domain.Visibility, kind string) string {
	if v == domain.VisibilityBlocked {
		return "block_" + kind
	}
	return "unblock_" + kind
}
