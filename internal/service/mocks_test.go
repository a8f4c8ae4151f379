package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/pixtube/internal/cache/memory"
	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/lock"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/repository"
	"github.com/prn-tf/pixtube/internal/storage"
	"github.com/prn-tf/pixtube/internal/storage/filesystem"
)

// MockAccountRepository is an in-memory repository.AccountRepository.
type MockAccountRepository struct {
	mu       sync.Mutex
	accounts []*domain.Account
	nextID   int64
	getErr   error
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{nextID: 1}
}

func (m *MockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Handle == account.Handle {
			return domain.NewDomainError(domain.ErrHandleTaken, "cannot register", account.Handle)
		}
	}
	account.ID = m.nextID
	m.nextID++
	cp := *account
	m.accounts = append(m.accounts, &cp)
	return nil
}

func (m *MockAccountRepository) find(id int64) *domain.Account {
	for _, a := range m.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if a := m.find(id); a != nil {
		cp := *a
		return &cp, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.accounts {
		if a.Handle == handle {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockAccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MockAccountRepository) ExistsByHandle(ctx context.Context, handle string) (bool, error) {
	_, err := m.GetByHandle(ctx, handle)
	return err == nil, nil
}

func (m *MockAccountRepository) UpdateStanding(ctx context.Context, id int64, standing domain.Standing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.find(id)
	if a == nil {
		return domain.ErrAccountNotFound
	}
	a.Standing = standing
	return nil
}

func (m *MockAccountRepository) CountByRole(ctx context.Context, role domain.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.accounts {
		if a.Role == role {
			n++
		}
	}
	return n, nil
}

// MockVideoRepository is an in-memory repository.VideoRepository.
type MockVideoRepository struct {
	mu        sync.Mutex
	videos    []*domain.Video
	nextID    int64
	accounts  *MockAccountRepository
	deleteErr error
}

func NewMockVideoRepository(accounts *MockAccountRepository) *MockVideoRepository {
	return &MockVideoRepository{nextID: 1, accounts: accounts}
}

func (m *MockVideoRepository) Create(ctx context.Context, video *domain.Video) error {
	if _, err := m.accounts.GetByID(ctx, video.OwnerID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	video.ID = m.nextID
	m.nextID++
	cp := *video
	m.videos = append(m.videos, &cp)
	return nil
}

func (m *MockVideoRepository) find(id int64) *domain.Video {
	for _, v := range m.videos {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func (m *MockVideoRepository) GetByID(ctx context.Context, id int64) (*domain.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v := m.find(id); v != nil {
		cp := *v
		return &cp, nil
	}
	return nil, domain.ErrVideoNotFound
}

func (m *MockVideoRepository) filter(keep func(*domain.Video) bool) []*domain.Video {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Video
	for _, v := range m.videos {
		if keep(v) {
			cp := *v
			result = append(result, &cp)
		}
	}
	return result
}

func (m *MockVideoRepository) ListVisible(ctx context.Context) ([]*domain.Video, error) {
	return m.filter(func(v *domain.Video) bool { return !v.IsBlocked() }), nil
}

func (m *MockVideoRepository) ListAll(ctx context.Context) ([]*domain.Video, error) {
	return m.filter(func(*domain.Video) bool { return true }), nil
}

func (m *MockVideoRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Video, error) {
	return m.filter(func(v *domain.Video) bool { return v.OwnerID == ownerID }), nil
}

func (m *MockVideoRepository) IncrementViews(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.find(id)
	if v == nil {
		return 0, domain.ErrVideoNotFound
	}
	v.Views++
	return v.Views, nil
}

func (m *MockVideoRepository) UpdateVisibility(ctx context.Context, id int64, visibility domain.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.find(id)
	if v == nil {
		return domain.ErrVideoNotFound
	}
	v.Visibility = visibility
	return nil
}

func (m *MockVideoRepository) DeleteByOwner(ctx context.Context, ownerID int64) ([]*domain.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	var kept, deleted []*domain.Video
	for _, v := range m.videos {
		if v.OwnerID == ownerID {
			deleted = append(deleted, v)
		} else {
			kept = append(kept, v)
		}
	}
	m.videos = kept
	return deleted, nil
}

func (m *MockVideoRepository) ExistsByContentHandle(ctx context.Context, handle string) (bool, error) {
	return len(m.filter(func(v *domain.Video) bool { return v.ContentHandle == handle })) > 0, nil
}

// MockCommentRepository is an in-memory repository.CommentRepository.
type MockCommentRepository struct {
	mu       sync.Mutex
	comments []*domain.Comment
	nextID   int64
	videos   *MockVideoRepository
}

func NewMockCommentRepository(videos *MockVideoRepository) *MockCommentRepository {
	return &MockCommentRepository{nextID: 1, videos: videos}
}

func (m *MockCommentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	if _, err := m.videos.GetByID(ctx, comment.VideoID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	comment.ID = m.nextID
	m.nextID++
	cp := *comment
	m.comments = append(m.comments, &cp)
	return nil
}

func (m *MockCommentRepository) find(id int64) *domain.Comment {
	for _, c := range m.comments {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *MockCommentRepository) GetByID(ctx context.Context, id int64) (*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.find(id); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrCommentNotFound
}

func (m *MockCommentRepository) ListVisibleByVideo(ctx context.Context, videoID int64) ([]*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Comment
	for _, c := range m.comments {
		if c.VideoID == videoID && !c.IsBlocked() {
			cp := *c
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MockCommentRepository) ListAll(ctx context.Context) ([]*domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Comment, 0, len(m.comments))
	for _, c := range m.comments {
		cp := *c
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MockCommentRepository) UpdateVisibility(ctx context.Context, id int64, visibility domain.Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.find(id)
	if c == nil {
		return domain.ErrCommentNotFound
	}
	c.Visibility = visibility
	return nil
}

func (m *MockCommentRepository) DeleteByVideoOwner(ctx context.Context, ownerID int64) (int64, error) {
	owned := make(map[int64]bool)
	videos, _ := m.videos.ListByOwner(ctx, ownerID)
	for _, v := range videos {
		owned[v.ID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.Comment
	var n int64
	for _, c := range m.comments {
		if owned[c.VideoID] {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.comments = kept
	return n, nil
}

// MockTxManager runs fn directly. Rollback is covered by the SQLite repository tests.
type MockTxManager struct{}

func (MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MockBackend is a testify mock of storage.Backend.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Store(ctx context.Context, reader io.Reader, originalName string) (*storage.StoredContent, error) {
	args := m.Called(ctx, reader, originalName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.StoredContent), args.Error(1)
}

func (m *MockBackend) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockBackend) Delete(ctx context.Context, handle string) error {
	return m.Called(ctx, handle).Error(0)
}

func (m *MockBackend) Exists(ctx context.Context, handle string) (bool, error) {
	args := m.Called(ctx, handle)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) Walk(ctx context.Context, fn func(storage.ContentInfo) error) error {
	return m.Called(ctx, fn).Error(0)
}

// testEnv wires every service against in-memory fakes and a temp-dir filesystem backend.
type testEnv struct {
	accounts *MockAccountRepository
	videos   *MockVideoRepository
	comments *MockCommentRepository
	repos    *repository.Repositories
	storage  storage.Backend
	locker   lock.Locker
	metrics  *metrics.Metrics

	accountSvc    *AccountService
	sessionSvc    *SessionService
	videoSvc      *VideoService
	commentSvc    *CommentService
	moderationSvc *ModerationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend, err := filesystem.NewBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return newTestEnvWithBackend(t, backend)
}

func newTestEnvWithBackend(t *testing.T, backend storage.Backend) *testEnv {
	t.Helper()

	accounts := NewMockAccountRepository()
	videos := NewMockVideoRepository(accounts)
	comments := NewMockCommentRepository(videos)
	repos := &repository.Repositories{
		Account: accounts,
		Video:   videos,
		Comment: comments,
		Tx:      MockTxManager{},
	}

	cache := memory.NewCache()
	t.Cleanup(cache.Stop)

	logger := zerolog.Nop()
	m := metrics.New()
	locker := lock.NewMemoryLocker()
	t.Cleanup(locker.Stop)

	accountSvc := NewAccountService(accounts, m, logger)
	accountSvc.bcryptCost = bcrypt.MinCost

	return &testEnv{
		accounts:      accounts,
		videos:        videos,
		comments:      comments,
		repos:         repos,
		storage:       backend,
		locker:        locker,
		metrics:       m,
		accountSvc:    accountSvc,
		sessionSvc:    NewSessionService(accountSvc, cache, time.Hour, m, logger),
		videoSvc:      NewVideoService(repos, backend, m, logger),
		commentSvc:    NewCommentService(repos, m, logger),
		moderationSvc: NewModerationService(repos, backend, locker, m, logger),
	}
}

// seedAccount inserts an account directly, skipping password hashing.
func (e *testEnv) seedAccount(t *testing.T, handle string, role domain.Role) *domain.Account {
	t.Helper()
	a := domain.NewAccount(handle, "unused")
	a.Role = role
	require.NoError(t, e.accounts.Create(context.Background(), a))
	return a
}

// seedVideo uploads a small video through the video service.
func (e *testEnv) seedVideo(t *testing.T, owner *domain.Account, title string) *domain.Video {
	t.Helper()
	v, err := e.videoSvc.Upload(context.Background(), owner, UploadInput{
		Title:        title,
		OriginalName: "clip.mp4",
		Content:      strings.NewReader("video bytes of " + title),
	})
	require.NoError(t, err)
	return v
}
