package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/service"
)

// AdminHandler serves the moderation console and its actions.
// Every route sends non-administrators back to the feed.
type AdminHandler struct {
	moderation *service.ModerationService
	pages      *renderer
	logger     zerolog.Logger
}

// RegisterRoutes mounts the admin routes.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin)

		r.Get("/", h.handleOverview)
		r.Get("/ban/{id}", h.handleBan)
		r.Get("/unban/{id}", h.handleUnban)
		r.Get("/block_video/{id}", h.videoVisibility(domain.VisibilityBlocked))
		r.Get("/unblock_video/{id}", h.videoVisibility(domain.VisibilityVisible))
		r.Get("/block_comment/{id}", h.commentVisibility(domain.VisibilityBlocked))
		r.Get("/unblock_comment/{id}", h.commentVisibility(domain.VisibilityVisible))
	})
}

// requireAdmin redirects anyone but an administrator to the feed before any work is done.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !domain.CanModerate(ViewerFrom(r.Context())) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	viewer := ViewerFrom(r.Context())

	overview, err := h.moderation.Overview(r.Context(), viewer)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		h.pages.renderError(w, viewer)
		return
	}

	handles := make(map[int64]string, len(overview.Accounts))
	for _, a := range overview.Accounts {
		handles[a.ID] = a.Handle
	}

	h.pages.render(w, http.StatusOK, "admin.html", AdminPageData{
		PageData: PageData{Title: "Administration", Viewer: viewer},
		Accounts: overview.Accounts,
		Videos:   overview.Videos,
		Comments: overview.Comments,
		Handles:  handles,
	})
}

func (h *AdminHandler) handleBan(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return
	}

	result, err := h.moderation.BanAccount(r.Context(), ViewerFrom(r.Context()), id)
	if err != nil {
		h.finish(w, r, err, "/admin", zerolog.Dict().Int64("account_id", id))
		return
	}
	if result.Skipped {
		h.logger.Info().Int64("account_id", id).Msg("administrator accounts cannot be banned")
	}
	http.Redirect(w, r, "/admin", http.StatusFound)
}

func (h *AdminHandler) handleUnban(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return
	}

	err := h.moderation.UnbanAccount(r.Context(), ViewerFrom(r.Context()), id)
	h.finish(w, r, err, "/admin", zerolog.Dict().Int64("account_id", id))
}

func (h *AdminHandler) videoVisibility(visibility domain.Visibility) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			http.Redirect(w, r, "/admin", http.StatusFound)
			return
		}

		err := h.moderation.SetVideoVisibility(r.Context(), ViewerFrom(r.Context()), id, visibility)
		h.finish(w, r, err, "/admin", zerolog.Dict().Int64("video_id", id))
	}
}

// commentVisibility returns to the page the action was taken from,
// which is usually the video page.
func (h *AdminHandler) commentVisibility(visibility domain.Visibility) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		back := sameOriginReferer(r, "/admin")
		id, ok := idParam(r, "id")
		if !ok {
			http.Redirect(w, r, back, http.StatusFound)
			return
		}

		err := h.moderation.SetCommentVisibility(r.Context(), ViewerFrom(r.Context()), id, visibility)
		h.finish(w, r, err, back, zerolog.Dict().Int64("comment_id", id))
	}
}

// finish maps the outcome of an action to a redirect. Unknown targets are
// logged and treated like success; failures render the error page.
func (h *AdminHandler) finish(w http.ResponseWriter, r *http.Request, err error, target string, fields *zerolog.Event) {
	switch {
	case err == nil:
		http.Redirect(w, r, target, http.StatusFound)
	case errors.Is(err, service.ErrForbidden):
		http.Redirect(w, r, "/", http.StatusFound)
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrVideoNotFound),
		errors.Is(err, domain.ErrCommentNotFound):
		h.logger.Warn().Err(err).Dict("target", fields).Msg("moderation target not found")
		http.Redirect(w, r, target, http.StatusFound)
	case errors.Is(err, service.ErrModerationInProgress):
		h.logger.Warn().Dict("target", fields).Msg("moderation already in progress")
		http.Redirect(w, r, target, http.StatusFound)
	default:
		h.pages.renderError(w, ViewerFrom(r.Context()))
	}
}
