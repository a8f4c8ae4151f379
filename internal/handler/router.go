// Package handler provides the HTTP surface of PixTube.
package handler

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pixtube/internal/config"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// DatabaseChecker reports database reachability for the health endpoint.
type DatabaseChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig contains everything the router needs.
type RouterConfig struct {
	Accounts   *service.AccountService
	Sessions   *service.SessionService
	Videos     *service.VideoService
	Comments   *service.CommentService
	Moderation *service.ModerationService
	Database   DatabaseChecker
	Metrics    *metrics.Metrics

	Session       config.SessionConfig
	MaxUploadSize int64

	Logger zerolog.Logger
}

// Router serves the site.
type Router struct {
	site  *SiteHandler
	admin *AdminHandler
	db    DatabaseChecker
	m     *metrics.Metrics
	cfg   RouterConfig

	logger zerolog.Logger
}

// NewRouter parses the templates and builds the handlers.
func NewRouter(cfg RouterConfig) (*Router, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.With().Str("component", "router").Logger()
	pages := &renderer{templates: tmpl, logger: logger}

	return &Router{
		site: &SiteHandler{
			accounts:      cfg.Accounts,
			sessions:      cfg.Sessions,
			videos:        cfg.Videos,
			comments:      cfg.Comments,
			cookies:       cookieJar{cfg: cfg.Session},
			maxUploadSize: cfg.MaxUploadSize,
			pages:         pages,
			logger:        cfg.Logger.With().Str("handler", "site").Logger(),
		},
		admin: &AdminHandler{
			moderation: cfg.Moderation,
			pages:      pages,
			logger:     cfg.Logger.With().Str("handler", "admin").Logger(),
		},
		db:     cfg.Database,
		m:      cfg.Metrics,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(rt.cfg.Logger)...)
	if rt.m != nil {
		r.Use(instrument(rt.m))
	}
	r.Use(middleware.Recoverer)

	// Health check (no session)
	r.Get("/health", rt.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(withViewer(rt.cfg.Sessions, rt.cfg.Session.CookieName))
		rt.site.RegisterRoutes(r)
		rt.admin.RegisterRoutes(r)
		r.NotFound(rt.site.handleNotFound)
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Database: "ok"}
	status := http.StatusOK
	if rt.db != nil {
		if err := rt.db.Health(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("database health check failed")
			resp = healthResponse{Status: "unhealthy", Database: "unreachable"}
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
