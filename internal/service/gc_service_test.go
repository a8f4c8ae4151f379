package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/lock"
	"github.com/prn-tf/pixtube/internal/storage"
)

func newTestSweeper(env *testEnv, cfg SweeperConfig) *ContentSweeper {
	return NewContentSweeper(env.videos, env.storage, env.locker, env.metrics, zerolog.Nop(), cfg)
}

func storeOrphan(t *testing.T, env *testEnv, body string) string {
	t.Helper()
	stored, err := env.storage.Store(context.Background(), strings.NewReader(body), "orphan.mp4")
	require.NoError(t, err)
	return stored.Handle
}

func TestContentSweeper_RemovesOrphans(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedAccount(t, "alice", domain.RoleStandard)
	video := env.seedVideo(t, alice, "kept")
	orphan := storeOrphan(t, env, "left behind")

	result := newTestSweeper(env, SweeperConfig{BatchSize: 10}).RunOnce(ctx)
	assert.Equal(t, 1, result.FilesDeleted)
	assert.Equal(t, int64(len("left behind")), result.BytesFreed)
	assert.Zero(t, result.Errors)
	assert.False(t, result.HasMore)

	exists, err := env.storage.Exists(ctx, orphan)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = env.storage.Exists(ctx, video.ContentHandle)
	require.NoError(t, err)
	assert.True(t, exists, "referenced files are never swept")
}

func TestContentSweeper_GracePeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orphan := storeOrphan(t, env, "fresh upload")

	result := newTestSweeper(env, SweeperConfig{BatchSize: 10, GracePeriod: time.Hour}).RunOnce(ctx)
	assert.Zero(t, result.FilesDeleted)

	exists, err := env.storage.Exists(ctx, orphan)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestContentSweeper_DryRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orphan := storeOrphan(t, env, "x")

	result := newTestSweeper(env, SweeperConfig{BatchSize: 10, DryRun: true}).RunOnce(ctx)
	assert.Equal(t, 1, result.FilesDeleted)

	exists, err := env.storage.Exists(ctx, orphan)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestContentSweeper_BatchSize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		storeOrphan(t, env, "x")
	}

	sweeper := newTestSweeper(env, SweeperConfig{BatchSize: 2})

	result := sweeper.RunOnce(ctx)
	assert.Equal(t, 2, result.FilesDeleted)
	assert.True(t, result.HasMore)

	result = sweeper.RunOnce(ctx)
	assert.Equal(t, 1, result.FilesDeleted)
	assert.False(t, result.HasMore)
}

func TestContentSweeper_SkipsWhenLocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	storeOrphan(t, env, "x")

	acquired, err := env.locker.Acquire(ctx, lock.Keys.ContentGC(), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	result := newTestSweeper(env, SweeperConfig{BatchSize: 10}).RunOnce(ctx)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.FilesDeleted)
}

func TestContentSweeper_DeleteFailure(t *testing.T) {
	backend := new(MockBackend)
	env := newTestEnvWithBackend(t, backend)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	backend.On("Walk", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		fn := args.Get(1).(func(storage.ContentInfo) error)
		_ = fn(storage.ContentInfo{Handle: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.mp4", Size: 10, ModTime: old})
		_ = fn(storage.ContentInfo{Handle: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb.mp4", Size: 20, ModTime: old})
	}).Return(nil)
	backend.On("Delete", mock.Anything, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.mp4").Return(errors.New("access denied"))
	backend.On("Delete", mock.Anything, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb.mp4").Return(nil)

	result := newTestSweeper(env, SweeperConfig{BatchSize: 10}).RunOnce(ctx)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.FilesDeleted)
	assert.Equal(t, int64(20), result.BytesFreed)
	backend.AssertExpectations(t)
}

func TestContentSweeper_StartStop(t *testing.T) {
	env := newTestEnv(t)
	orphan := storeOrphan(t, env, "x")

	sweeper := newTestSweeper(env, SweeperConfig{BatchSize: 10, Interval: time.Hour})
	sweeper.Start()
	sweeper.Start()

	require.Eventually(t, func() bool {
		exists, err := env.storage.Exists(context.Background(), orphan)
		return err == nil && !exists
	}, 5*time.Second, 20*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
}
