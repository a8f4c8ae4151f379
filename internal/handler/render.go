package handler

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/service"
)

// =============================================================================
// Template Data Structs
// =============================================================================

// PageData contains common page data.
type PageData struct {
	Title  string
	Viewer *domain.Account
	Error  string
}

// IndexPageData contains the feed page data.
type IndexPageData struct {
	PageData
	Items []service.FeedItem
}

// VideoPageData contains the video page data.
type VideoPageData struct {
	PageData
	Video      *domain.Video
	Owner      *domain.Account
	Comments   []service.CommentView
	CanComment bool
	IsAdmin    bool
}

// AdminPageData contains the administration page data.
type AdminPageData struct {
	PageData
	Accounts []*domain.Account
	Videos   []*domain.Video
	Comments []*domain.Comment

	// Handles maps account ids to handles for the listings.
	Handles map[int64]string
}

// =============================================================================
// Rendering
// =============================================================================

type renderer struct {
	templates *template.Template
	logger    zerolog.Logger
}

// render executes the template into a buffer first so a failing template
// never leaves a half-written page behind.
func (p *renderer) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := p.templates.ExecuteTemplate(&buf, name, data); err != nil {
		p.logger.Error().Err(err).Str("template", name).Msg("failed to render template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (p *renderer) renderError(w http.ResponseWriter, viewer *domain.Account) {
	p.render(w, http.StatusInternalServerError, "error.html", PageData{Title: "Error", Viewer: viewer})
}

func (p *renderer) renderNotFound(w http.ResponseWriter, viewer *domain.Account) {
	p.render(w, http.StatusNotFound, "notfound.html", PageData{Title: "Not found", Viewer: viewer})
}

// =============================================================================
// Helpers
// =============================================================================

// cookieJar issues and clears the session cookie.
type cookieJar struct {
	cfg config.SessionConfig
}

// set stores the session token. SameSite=Strict keeps cross-site
// navigations anonymous, which guards the GET admin actions.
func (c cookieJar) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(c.cfg.TTL.Seconds()),
	})
}

func (c cookieJar) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func (c cookieJar) token(r *http.Request) string {
	cookie, err := r.Cookie(c.cfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// idParam parses a positive integer URL parameter.
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// sameOriginReferer returns the path of a same-origin Referer, or fallback.
func sameOriginReferer(r *http.Request, fallback string) string {
	ref := r.Referer()
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) || len(u.Path) == 0 || u.Path[0] != '/' {
		return fallback
	}
	// Reject "//host" which browsers treat as another origin.
	if len(u.Path) > 1 && u.Path[1] == '/' {
		return fallback
	}
	return u.RequestURI()
}

func videoPath(id int64) string {
	return "/video/" + strconv.FormatInt(id, 10)
}
