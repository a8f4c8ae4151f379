package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pixtube/internal/cache/memory"
	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/lock"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/repository"
	"github.com/prn-tf/pixtube/internal/repository/sqlite"
	"github.com/prn-tf/pixtube/internal/service"
	"github.com/prn-tf/pixtube/internal/storage/filesystem"
)

const testCookie = "pixtube_session"

type testApp struct {
	handler  http.Handler
	repos    *repository.Repositories
	backend  *filesystem.Backend
	sessions *service.SessionService
	videos   *service.VideoService
	comments *service.CommentService
	metrics  *metrics.Metrics
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()
	dir := t.TempDir()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(filepath.Join(dir, "pixtube.db")), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))
	repos := sqlite.NewRepositories(db)

	backend, err := filesystem.NewBackend(filepath.Join(dir, "videos"), logger)
	require.NoError(t, err)

	cache := memory.NewCache()
	t.Cleanup(cache.Stop)
	locker := lock.NewMemoryLocker()
	t.Cleanup(locker.Stop)

	m := metrics.New()
	accounts := service.NewAccountService(repos.Account, m, logger)
	sessions := service.NewSessionService(accounts, cache, time.Hour, m, logger)
	videos := service.NewVideoService(repos, backend, m, logger)
	comments := service.NewCommentService(repos, m, logger)

	router, err := NewRouter(RouterConfig{
		Accounts:   accounts,
		Sessions:   sessions,
		Videos:     videos,
		Comments:   comments,
		Moderation: service.NewModerationService(repos, backend, locker, m, logger),
		Database:   db,
		Metrics:    m,
		Session: config.SessionConfig{
			CookieName: testCookie,
			TTL:        time.Hour,
		},
		MaxUploadSize: 1 << 20,
		Logger:        logger,
	})
	require.NoError(t, err)

	return &testApp{
		handler:  router.Handler(),
		repos:    repos,
		backend:  backend,
		sessions: sessions,
		videos:   videos,
		comments: comments,
		metrics:  m,
	}
}

// seedAccount inserts an account directly; its password is never checked.
func (a *testApp) seedAccount(t *testing.T, handle string, role domain.Role) *domain.Account {
	t.Helper()
	account := domain.NewAccount(handle, "unused")
	account.Role = role
	require.NoError(t, a.repos.Account.Create(context.Background(), account))
	return account
}

func (a *testApp) cookieFor(t *testing.T, account *domain.Account) *http.Cookie {
	t.Helper()
	session, err := a.sessions.Start(context.Background(), account.ID)
	require.NoError(t, err)
	return &http.Cookie{Name: testCookie, Value: session.Token}
}

func (a *testApp) seedVideo(t *testing.T, owner *domain.Account, title string) *domain.Video {
	t.Helper()
	video, err := a.videos.Upload(context.Background(), owner, service.UploadInput{
		Title:        title,
		OriginalName: "clip.mp4",
		Content:      strings.NewReader("bytes of " + title),
	})
	require.NoError(t, err)
	return video
}

func (a *testApp) do(t *testing.T, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) get(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

func (a *testApp) postForm(t *testing.T, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(t, req, cookie)
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == testCookie {
			return c
		}
	}
	return nil
}

func path(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","database":"ok"}`, rec.Body.String())
}

func TestRegisterLoginLogout(t *testing.T) {
	app := newTestApp(t)

	form := url.Values{"username": {"alice"}, "password": {"s3cret"}}
	rec := app.postForm(t, "/register", form, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	registered := sessionCookie(rec)
	require.NotNil(t, registered)
	assert.True(t, registered.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, registered.SameSite)

	rec = app.get(t, "/", registered)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	assert.Contains(t, rec.Body.String(), `href="/upload"`)

	rec = app.postForm(t, "/register", form, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already taken")

	rec = app.postForm(t, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	rec = app.postForm(t, "/login", form, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loggedIn := sessionCookie(rec)
	require.NotNil(t, loggedIn)

	rec = app.get(t, "/logout", loggedIn)
	require.Equal(t, http.StatusFound, rec.Code)
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	// The old token no longer resolves.
	rec = app.get(t, "/upload", loggedIn)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestRegister_Invalid(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm(t, "/register", url.Values{"username": {"  "}, "password": {"pw"}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, sessionCookie(rec))
}

func TestLogin_Banned(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm(t, "/register", url.Values{"username": {"bob"}, "password": {"pw"}}, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	bob, err := app.repos.Account.GetByHandle(context.Background(), "bob")
	require.NoError(t, err)
	require.NoError(t, app.repos.Account.UpdateStanding(context.Background(), bob.ID, domain.StandingBanned))

	rec = app.postForm(t, "/login", url.Values{"username": {"bob"}, "password": {"pw"}}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your channel is banned")
	assert.Nil(t, sessionCookie(rec))
}

func TestUpload(t *testing.T) {
	app := newTestApp(t)
	alice := app.seedAccount(t, "alice", domain.RoleStandard)
	cookie := app.cookieFor(t, alice)

	newUpload := func(title, fileName, content string) *http.Request {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("title", title))
		if fileName != "" {
			fw, err := mw.CreateFormFile("video", fileName)
			require.NoError(t, err)
			_, err = fw.Write([]byte(content))
			require.NoError(t, err)
		}
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req
	}

	t.Run("anonymous", func(t *testing.T) {
		rec := app.do(t, newUpload("Cats", "cats.mp4", "data"), nil)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("missing file", func(t *testing.T) {
		rec := app.do(t, newUpload("Cats", "", ""), cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing title", func(t *testing.T) {
		rec := app.do(t, newUpload("  ", "cats.mp4", "data"), cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		rec := app.do(t, newUpload("Cats", "cats.mp4", "cat video data"), cookie)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/video/"))

		videos, err := app.repos.Video.ListVisible(context.Background())
		require.NoError(t, err)
		require.Len(t, videos, 1)
		assert.Equal(t, "Cats", videos[0].Title)
		assert.Equal(t, alice.ID, videos[0].OwnerID)

		rec = app.get(t, path("/video/", videos[0].ID)+"/content", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "cat video data", rec.Body.String())
		assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	})
}

func TestVideoPage_CountsViews(t *testing.T) {
	app := newTestApp(t)
	alice := app.seedAccount(t, "alice", domain.RoleStandard)
	video := app.seedVideo(t, alice, "Cats")

	for i := 0; i < 3; i++ {
		rec := app.get(t, path("/video/", video.ID), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := app.get(t, path("/video/", video.ID), nil)
	assert.Contains(t, rec.Body.String(), "4 views")
	assert.Contains(t, rec.Body.String(), "Log in</a> to comment")

	stored, err := app.repos.Video.GetByID(context.Background(), video.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stored.Views)
}

func TestVideoPage_NotFound(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, http.StatusNotFound, app.get(t, "/video/999", nil).Code)
	assert.Equal(t, http.StatusNotFound, app.get(t, "/video/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, app.get(t, "/no/such/page", nil).Code)
}

func TestVideoPage_Blocked(t *testing.T) {
	app := newTestApp(t)
	admin := app.seedAccount(t, "root", domain.RoleAdministrator)
	alice := app.seedAccount(t, "alice", domain.RoleStandard)
	video := app.seedVideo(t, alice, "Cats")
	adminCookie := app.cookieFor(t, admin)

	rec := app.get(t, path("/admin/block_video/", video.ID), adminCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	for _, cookie := range []*http.Cookie{nil, adminCookie, app.cookieFor(t, alice)} {
		rec = app.get(t, path("/video/", video.ID), cookie)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "Video blocked")
	}

	assert.Equal(t, http.StatusForbidden, app.get(t, path("/video/", video.ID)+"/content", nil).Code)
	assert.NotContains(t, app.get(t, "/", nil).Body.String(), "Cats")

	stored, err := app.repos.Video.GetByID(context.Background(), video.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Views)

	rec = app.get(t, path("/admin/unblock_video/", video.ID), adminCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, http.StatusOK, app.get(t, path("/video/", video.ID), nil).Code)
}

func TestComments(t *testing.T) {
	app := newTestApp(t)
	admin := app.seedAccount(t, "root", domain.RoleAdministrator)
	alice := app.seedAccount(t, "alice", domain.RoleStandard)
	bob := app.seedAccount(t, "bob", domain.RoleStandard)
	video := app.seedVideo(t, alice, "Cats")
	bobCookie := app.cookieFor(t, bob)
	videoURL := path("/video/", video.ID)

	rec := app.postForm(t, path("/comment/", video.ID), url.Values{"content": {"  nice cats  "}}, bobCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, videoURL, rec.Header().Get("Location"))

	rec = app.postForm(t, path("/comment/", video.ID), url.Values{"content": {"   "}}, bobCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, videoURL, rec.Header().Get("Location"))

	rec = app.postForm(t, path("/comment/", video.ID), url.Values{"content": {"drive-by"}}, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = app.postForm(t, "/comment/999", url.Values{"content": {"lost"}}, bobCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/video/999", rec.Header().Get("Location"))

	all, err := app.repos.Comment.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "nice cats", all[0].Body)

	page := app.get(t, videoURL, bobCookie).Body.String()
	assert.Contains(t, page, "nice cats")
	assert.Contains(t, page, `action="/comment/`)

	// Blocking from the video page returns there.
	req := httptest.NewRequest(http.MethodGet, path("/admin/block_comment/", all[0].ID), nil)
	req.Header.Set("Referer", "http://example.com"+videoURL)
	rec = app.do(t, req, app.cookieFor(t, admin))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, videoURL, rec.Header().Get("Location"))

	assert.NotContains(t, app.get(t, videoURL, nil).Body.String(), "nice cats")

	// A foreign referer falls back to the console.
	req = httptest.NewRequest(http.MethodGet, path("/admin/unblock_comment/", all[0].ID), nil)
	req.Header.Set("Referer", "https://evil.test/phish")
	rec = app.do(t, req, app.cookieFor(t, admin))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	assert.Contains(t, app.get(t, videoURL, nil).Body.String(), "nice cats")
}

func TestAdmin_RequiresAdministrator(t *testing.T) {
	app := newTestApp(t)
	alice := app.seedAccount(t, "alice", domain.RoleStandard)
	bob := app.seedAccount(t, "bob", domain.RoleStandard)
	app.seedVideo(t, bob, "Dogs")

	for _, cookie := range []*http.Cookie{nil, app.cookieFor(t, alice)} {
		for _, p := range []string{"/admin", path("/admin/ban/", bob.ID), "/admin/ban/not-a-number"} {
			rec := app.get(t, p, cookie)
			assert.Equal(t, http.StatusFound, rec.Code, p)
			assert.Equal(t, "/", rec.Header().Get("Location"), p)
		}
	}

	stored, err := app.repos.Account.GetByID(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive())

	videos, err := app.repos.Video.ListByOwner(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Len(t, videos, 1)
}

func TestAdmin_Overview(t *testing.T) {
	app := newTestApp(t)
	admin := app.seedAccount(t, "root", domain.RoleAdministrator)
	alice := app.seedAccount(t, "alice", domain.RoleStandard)
	video := app.seedVideo(t, alice, "Cats")
	_, err := app.comments.Post(context.Background(), alice, video.ID, "first")
	require.NoError(t, err)

	rec := app.get(t, "/admin", app.cookieFor(t, admin))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "alice")
	assert.Contains(t, body, "Cats")
	assert.Contains(t, body, "first")
	assert.Contains(t, body, path("/admin/ban/", alice.ID))
	assert.NotContains(t, body, path("/admin/ban/", admin.ID))
}

func TestAdmin_BanCascade(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	admin := app.seedAccount(t, "root", domain.RoleAdministrator)
	alice := app.seedAccount(t, "alice", domain.RoleStandard)
	bob := app.seedAccount(t, "bob", domain.RoleStandard)
	v1 := app.seedVideo(t, alice, "Cats")
	v2 := app.seedVideo(t, bob, "Dogs")
	_, err := app.comments.Post(ctx, bob, v1.ID, "on alice's video")
	require.NoError(t, err)
	_, err = app.comments.Post(ctx, alice, v2.ID, "on bob's video")
	require.NoError(t, err)
	adminCookie := app.cookieFor(t, admin)
	aliceCookie := app.cookieFor(t, alice)

	rec := app.get(t, path("/admin/ban/", alice.ID), adminCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, app.get(t, path("/video/", v1.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, app.get(t, path("/video/", v1.ID)+"/content", nil).Code)

	exists, err := app.backend.Exists(ctx, v1.ContentHandle)
	require.NoError(t, err)
	assert.False(t, exists)

	// Alice's comment on another channel survives.
	page := app.get(t, path("/video/", v2.ID), nil)
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "on bob&#39;s video")

	// A banned viewer can browse but not upload or comment.
	rec = app.get(t, "/upload", aliceCookie)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	rec = app.postForm(t, path("/comment/", v2.ID), url.Values{"content": {"again"}}, aliceCookie)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	// Banning again and banning an administrator are harmless.
	assert.Equal(t, http.StatusFound, app.get(t, path("/admin/ban/", alice.ID), adminCookie).Code)
	assert.Equal(t, http.StatusFound, app.get(t, path("/admin/ban/", admin.ID), adminCookie).Code)
	stored, err := app.repos.Account.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive())

	rec = app.get(t, path("/admin/unban/", alice.ID), adminCookie)
	require.Equal(t, http.StatusFound, rec.Code)
	stored, err = app.repos.Account.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive())
	assert.Equal(t, http.StatusNotFound, app.get(t, path("/video/", v1.ID), nil).Code)
}

func TestAdmin_UnknownTargets(t *testing.T) {
	app := newTestApp(t)
	admin := app.seedAccount(t, "root", domain.RoleAdministrator)
	cookie := app.cookieFor(t, admin)

	for _, p := range []string{
		"/admin/ban/999",
		"/admin/unban/999",
		"/admin/block_video/999",
		"/admin/unblock_video/999",
		"/admin/block_comment/999",
		"/admin/ban/abc",
	} {
		rec := app.get(t, p, cookie)
		assert.Equal(t, http.StatusFound, rec.Code, p)
		assert.Equal(t, "/admin", rec.Header().Get("Location"), p)
	}
}

func TestSameOriginReferer(t *testing.T) {
	tests := []struct {
		name    string
		referer string
		want    string
	}{
		{"empty", "", "/admin"},
		{"same host", "http://example.com/video/3", "/video/3"},
		{"keeps query", "http://example.com/video/3?x=1", "/video/3?x=1"},
		{"relative", "/video/4", "/video/4"},
		{"other host", "https://evil.test/video/3", "/admin"},
		{"scheme relative", "//evil.test/x", "/admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/admin/block_comment/1", nil)
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			assert.Equal(t, tt.want, sameOriginReferer(req, "/admin"))
		})
	}
}
