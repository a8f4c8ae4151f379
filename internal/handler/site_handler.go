package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/service"
	"github.com/prn-tf/pixtube/internal/storage"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 32 << 20

// SiteHandler serves the public pages: accounts, feed, uploads and video pages.
type SiteHandler struct {
	accounts      *service.AccountService
	sessions      *service.SessionService
	videos        *service.VideoService
	comments      *service.CommentService
	cookies       cookieJar
	maxUploadSize int64
	pages         *renderer
	logger        zerolog.Logger
}

// RegisterRoutes mounts the site routes.
func (h *SiteHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)

	r.Get("/register", h.handleRegisterPage)
	r.Post("/register", h.handleRegister)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)

	r.Get("/upload", h.handleUploadPage)
	r.Post("/upload", h.handleUpload)

	r.Get("/video/{id}", h.handleVideo)
	r.Get("/video/{id}/content", h.handleContent)
	r.Post("/comment/{id}", h.handleComment)
}

// =============================================================================
// Feed
// =============================================================================

func (h *SiteHandler) handleIndex(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFrom(r.Context())

	items, err := h.videos.Feed(r.Context())
	if err != nil {
		h.pages.renderError(w, viewer)
		return
	}

	h.pages.render(w, http.StatusOK, "index.html", IndexPageData{
		PageData: PageData{Title: "Home", Viewer: viewer},
		Items:    items,
	})
}

func (h *SiteHandler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.pages.renderNotFound(w, ViewerFrom(r.Context()))
}

// =============================================================================
// Accounts
// =============================================================================

func (h *SiteHandler) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, http.StatusOK, "register.html", PageData{Title: "Register", Viewer: ViewerFrom(r.Context())})
}

// handleRegister creates the account and logs it in straight away.
func (h *SiteHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		h.renderForm(w, http.StatusBadRequest, "register.html", "Register", viewer, "Invalid form submission")
		return
	}

	account, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Handle:   r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrHandleTaken):
			h.renderForm(w, http.StatusConflict, "register.html", "Register", viewer, "That handle is already taken")
		case errors.Is(err, service.ErrInvalidHandle), errors.Is(err, service.ErrInvalidPassword):
			h.renderForm(w, http.StatusBadRequest, "register.html", "Register", viewer, err.Error())
		default:
			h.pages.renderError(w, viewer)
		}
		return
	}

	session, err := h.sessions.Start(r.Context(), account.ID)
	if err != nil {
		h.logger.Error().Err(err).Int64("account_id", account.ID).Msg("failed to start session after registration")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	h.cookies.set(w, session.Token)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *SiteHandler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, http.StatusOK, "login.html", PageData{Title: "Log in", Viewer: ViewerFrom(r.Context())})
}

func (h *SiteHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		h.renderForm(w, http.StatusBadRequest, "login.html", "Log in", viewer, "Invalid form submission")
		return
	}

	session, err := h.sessions.Login(r.Context(), service.LoginInput{
		Handle:   r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			h.renderForm(w, http.StatusUnauthorized, "login.html", "Log in", viewer, "Invalid handle or password")
		case errors.Is(err, service.ErrAccountBanned):
			h.renderForm(w, http.StatusForbidden, "login.html", "Log in", viewer, "Your channel is banned")
		default:
			h.pages.renderError(w, viewer)
		}
		return
	}

	h.cookies.set(w, session.Token)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *SiteHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := h.cookies.token(r); token != "" {
		if err := h.sessions.Logout(r.Context(), token); err != nil {
			h.logger.Warn().Err(err).Msg("failed to drop session")
		}
	}
	h.cookies.clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// =============================================================================
// Uploads
// =============================================================================

func (h *SiteHandler) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFrom(r.Context())
	if !domain.CanUpload(viewer) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.pages.render(w, http.StatusOK, "upload.html", PageData{Title: "Upload", Viewer: viewer})
}

func (h *SiteHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFrom(r.Context())
	if !domain.CanUpload(viewer) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderForm(w, http.StatusRequestEntityTooLarge, "upload.html", "Upload", viewer, "The file is too large")
			return
		}
		h.renderForm(w, http.StatusBadRequest, "upload.html", "Upload", viewer, "Invalid upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	input := service.UploadInput{Title: r.PostFormValue("title")}
	file, header, err := r.FormFile("video")
	if err == nil {
		defer file.Close()
		input.Content = file
		input.OriginalName = header.Filename
	} else if !errors.Is(err, http.ErrMissingFile) {
		h.renderForm(w, http.StatusBadRequest, "upload.html", "Upload", viewer, "Invalid upload")
		return
	}

	video, err := h.videos.Upload(r.Context(), viewer, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			http.Redirect(w, r, "/", http.StatusFound)
		case errors.Is(err, service.ErrInvalidTitle):
			h.renderForm(w, http.StatusBadRequest, "upload.html", "Upload", viewer, "A title of 1-200 characters is required")
		case errors.Is(err, service.ErrMissingContent):
			h.renderForm(w, http.StatusBadRequest, "upload.html", "Upload", viewer, "Choose a video file to upload")
		default:
			h.pages.renderError(w, viewer)
		}
		return
	}

	http.Redirect(w, r, videoPath(video.ID), http.StatusFound)
}

// =============================================================================
// Video page
// =============================================================================

func (h *SiteHandler) handleVideo(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFrom(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.pages.renderNotFound(w, viewer)
		return
	}

	result, err := h.videos.View(r.Context(), viewer, id)
	if err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			h.pages.renderNotFound(w, viewer)
			return
		}
		h.pages.renderError(w, viewer)
		return
	}

	switch result.State {
	case domain.VideoStateBlocked:
		h.pages.render(w, http.StatusForbidden, "blocked.html", PageData{Title: "Video blocked", Viewer: viewer})
	case domain.VideoStateChannelBanned:
		h.pages.render(w, http.StatusForbidden, "banned.html", PageData{Title: "Channel banned", Viewer: viewer})
	default:
		h.pages.render(w, http.StatusOK, "video.html", VideoPageData{
			PageData:   PageData{Title: result.Video.Title, Viewer: viewer},
			Video:      result.Video,
			Owner:      result.Owner,
			Comments:   result.Comments,
			CanComment: result.CanComment,
			IsAdmin:    domain.CanModerate(viewer),
		})
	}
}

// handleContent streams the stored file of a renderable video.
func (h *SiteHandler) handleContent(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}

	video, content, err := h.videos.OpenContent(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrVideoNotFound), errors.Is(err, domain.ErrContentNotFound):
			http.NotFound(w, r)
		case errors.Is(err, service.ErrVideoNotRenderable):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	defer content.Close()

	if ctype := contentType(video.ContentHandle); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}

	if seeker, ok := content.(io.ReadSeeker); ok {
		http.ServeContent(w, r, video.ContentHandle, time.Time{}, seeker)
		return
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if _, err := io.Copy(w, content); err != nil {
		h.logger.Debug().Err(err).Int64("video_id", id).Msg("content stream interrupted")
	}
}

// handleComment posts a comment and returns to the video page.
func (h *SiteHandler) handleComment(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFrom(r.Context())
	id, ok := idParam(r, "id")
	if !ok {
		h.pages.renderNotFound(w, viewer)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, videoPath(id), http.StatusFound)
		return
	}

	_, err := h.comments.Post(r.Context(), viewer, id, r.PostFormValue("content"))
	switch {
	case err == nil:
		http.Redirect(w, r, videoPath(id), http.StatusFound)
	case errors.Is(err, service.ErrForbidden):
		http.Redirect(w, r, "/", http.StatusFound)
	case errors.Is(err, domain.ErrVideoNotFound),
		errors.Is(err, service.ErrVideoNotRenderable),
		errors.Is(err, service.ErrEmptyComment),
		errors.Is(err, service.ErrCommentTooLong):
		http.Redirect(w, r, videoPath(id), http.StatusFound)
	default:
		h.pages.renderError(w, viewer)
	}
}

// videoTypes covers containers the system MIME table often lacks.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".ogv":  "video/ogg",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
}

func contentType(handle string) string {
	ext := storage.Extension(handle)
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}

func (h *SiteHandler) renderForm(w http.ResponseWriter, status int, name, title string, viewer *domain.Account, message string) {
	h.pages.render(w, status, name, PageData{Title: title, Viewer: viewer, Error: message})
}
