package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/lock"
)

func TestModerationService_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedAccount(t, "alice", domain.RoleStandard)
	bob := env.seedAccount(t, "bob", domain.RoleStandard)
	video := env.seedVideo(t, bob, "clip")
	comment, err := env.commentSvc.Post(ctx, alice, video.ID, "hi")
	require.NoError(t, err)

	for _, viewer := range []*domain.Account{nil, alice} {
		_, err := env.moderationSvc.Overview(ctx, viewer)
		require.ErrorIs(t, err, ErrForbidden)

		_, err = env.moderationSvc.BanAccount(ctx, viewer, bob.ID)
		require.ErrorIs(t, err, ErrForbidden)

		require.ErrorIs(t, env.moderationSvc.UnbanAccount(ctx, viewer, bob.ID), ErrForbidden)
		require.ErrorIs(t, env.moderationSvc.SetVideoVisibility(ctx, viewer, video.ID, domain.VisibilityBlocked), ErrForbidden)
		require.ErrorIs(t, env.moderationSvc.SetCommentVisibility(ctx, viewer, comment.ID, domain.VisibilityBlocked), ErrForbidden)
	}

	got, err := env.accounts.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StandingActive, got.Standing)

	videos, err := env.videos.ListByOwner(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, videos, 1)
}

func TestModerationService_BanAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin", domain.RoleAdministrator)
	alice := env.seedAccount(t, "alice", domain.RoleStandard)
	bob := env.seedAccount(t, "bob", domain.RoleStandard)

	v1 := env.seedVideo(t, alice, "one")
	v2 := env.seedVideo(t, alice, "two")
	keep := env.seedVideo(t, bob, "bob's")

	_, err := env.commentSvc.Post(ctx, bob, v1.ID, "on alice's video")
	require.NoError(t, err)
	aliceOnBob, err := env.commentSvc.Post(ctx, alice, keep.ID, "alice on bob's video")
	require.NoError(t, err)

	result, err := env.moderationSvc.BanAccount(ctx, admin, alice.ID)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Len(t, result.DeletedVideos, 2)
	assert.Zero(t, result.CleanupFailures)

	got, err := env.accounts.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StandingBanned, got.Standing)

	owned, err := env.videos.ListByOwner(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, owned)

	for _, v := range []*domain.Video{v1, v2} {
		exists, err := env.storage.Exists(ctx, v.ContentHandle)
		require.NoError(t, err)
		assert.False(t, exists, "file of video %d should be gone", v.ID)

		_, err = env.videoSvc.View(ctx, nil, v.ID)
		require.ErrorIs(t, err, domain.ErrVideoNotFound)
	}

	// Other channels are untouched, including comments the banned account left there.
	_, err = env.videos.GetByID(ctx, keep.ID)
	require.NoError(t, err)
	comments, err := env.comments.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, aliceOnBob.ID, comments[0].ID)

	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.CascadeVideosDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ModerationActions.WithLabelValues("ban")))
}

func TestModerationService_BanAccount_Administrator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin", domain.RoleAdministrator)
	video := env.seedVideo(t, admin, "admin's clip")

	result, err := env.moderationSvc.BanAccount(ctx, admin, admin.ID)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, result.DeletedVideos)

	got, err := env.accounts.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StandingActive, got.Standing)

	_, err = env.videos.GetByID(ctx, video.ID)
	require.NoError(t, err)
}

func TestModerationService_BanAccount_UnknownTarget(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedAccount(t, "admin", domain.RoleAdministrator)

	_, err := env.moderationSvc.BanAccount(context.Background(), admin, 999)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestModerationService_BanAccount_CleanupFailure(t *testing.T) {
	backend := new(MockBackend)
	env := newTestEnvWithBackend(t, backend)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin", domain.RoleAdministrator)
	alice := env.seedAccount(t, "alice", domain.RoleStandard)

	// Insert rows directly; the mock backend holds no files.
	for _, handle := range []string{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.mp4", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb.mp4", "cccccccccccccccccccccccccccccccc.mp4"} {
		require.NoError(t, env.videos.Create(ctx, domain.NewVideo(alice.ID, handle, handle)))
	}

	backend.On("Delete", mock.Anything, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.mp4").Return(nil)
	backend.On("Delete", mock.Anything, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb.mp4").Return(errors.New("permission denied"))
	backend.On("Delete", mock.Anything, "cccccccccccccccccccccccccccccccc.mp4").Return(nil)

	result, err := env.moderationSvc.BanAccount(ctx, admin, alice.ID)
	require.NoError(t, err, "file cleanup failures never fail the ban")
	assert.Len(t, result.DeletedVideos, 3)
	assert.Equal(t, 1, result.CleanupFailures)

	// Every file was attempted even after a failure.
	backend.AssertExpectations(t)

	owned, err := env.videos.ListByOwner(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, owned)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.CascadeFileFailures))
}

func TestModerationService_BanAccount_TransactionFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin", domain.RoleAdministrator)
	alice := env.seedAccount(t, "alice", domain.RoleStandard)
	video := env.seedVideo(t, alice, "clip")

	env.videos.deleteErr = errors.New("database is locked")

	_, err := env.moderationSvc.BanAccount(ctx, admin, alice.ID)
	require.ErrorIs(t, err, ErrInternalError)

	// Files are only touched after a successful commit.
	exists, err := env.storage.Exists(ctx, video.ContentHandle)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestModerationService_BanAccount_Locked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin", domain.RoleAdministrator)
	alice := env.seedAccount(t, "alice", domain.RoleStandard)

	acquired, err := env.locker.Acquire(ctx, lock.Keys.BanAccount(alice.ID), banLockTTL)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = env.moderationSvc.BanAccount(ctx, admin, alice.ID)
	require.ErrorIs(t, err, ErrModerationInProgress)
}

func TestModerationService_Unban(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin", domain.RoleAdministrator)
	alice := env.seedAccount(t, "alice", domain.RoleStandard)
	env.seedVideo(t, alice, "clip")

	_, err := env.moderationSvc.BanAccount(ctx, admin, alice.ID)
	require.NoError(t, err)
	require.NoError(t, env.moderationSvc.UnbanAccount(ctx, admin, alice.ID))

	got, err := env.accounts.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StandingActive, got.Standing)

	// Cascaded videos stay gone.
	owned, err := env.videos.ListByOwner(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, owned)

	require.ErrorIs(t, env.moderationSvc.UnbanAccount(ctx, admin, 999), domain.ErrAccountNotFound)
}

func TestModerationService_SetVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedAccount(t, "admin", domain.RoleAdministrator)
	alice := env.seedAccount(t, "alice", domain.RoleStandard)
	video := env.seedVideo(t, alice, "clip")
	comment, err := env.commentSvc.Post(ctx, alice, video.ID, "hello")
	require.NoError(t, err)

	// Blocking twice is harmless.
	for i := 0; i < 2; i++ {
		require.NoError(t, env.moderationSvc.SetCommentVisibility(ctx, admin, comment.ID, domain.VisibilityBlocked))
	}

	result, err := env.videoSvc.View(ctx, alice, video.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Comments)

	overview, err := env.moderationSvc.Overview(ctx, admin)
	require.NoError(t, err)
	require.Len(t, overview.Comments, 1)
	assert.True(t, overview.Comments[0].IsBlocked())

	require.NoError(t, env.moderationSvc.SetVideoVisibility(ctx, admin, video.ID, domain.VisibilityBlocked))
	result, err = env.videoSvc.View(ctx, alice, video.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStateBlocked, result.State)

	_, err = env.commentSvc.Post(ctx, alice, video.ID, "still here?")
	require.ErrorIs(t, err, ErrVideoNotRenderable)

	require.NoError(t, env.moderationSvc.SetVideoVisibility(ctx, admin, video.ID, domain.VisibilityVisible))
	result, err = env.videoSvc.View(ctx, alice, video.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VideoStateRenderable, result.State)

	overview, err = env.moderationSvc.Overview(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, overview.Accounts, 2)
	assert.Len(t, overview.Videos, 1)

	require.ErrorIs(t, env.moderationSvc.SetVideoVisibility(ctx, admin, 999, domain.VisibilityBlocked), domain.ErrVideoNotFound)
	require.ErrorIs(t, env.moderationSvc.SetCommentVisibility(ctx, admin, 999, domain.VisibilityBlocked), domain.ErrCommentNotFound)
	require.Error(t, env.moderationSvc.SetVideoVisibility(ctx, admin, video.ID, domain.Visibility("hidden")))
}
