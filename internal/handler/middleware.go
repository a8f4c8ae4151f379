package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/prn-tf/pixtube/internal/domain"
	"github.com/prn-tf/pixtube/internal/metrics"
	"github.com/prn-tf/pixtube/internal/service"
)

type viewerKey struct{}

// ViewerFrom returns the account resolved for the request, or nil for anonymous viewers.
func ViewerFrom(ctx context.Context) *domain.Account {
	viewer, _ := ctx.Value(viewerKey{}).(*domain.Account)
	return viewer
}

// withViewer resolves the session cookie into the viewing account.
// Handlers read it once with ViewerFrom and pass it to services explicitly.
func withViewer(sessions *service.SessionService, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			viewer, err := sessions.Resolve(r.Context(), cookie.Value)
			if err != nil {
				// A broken session store degrades to anonymous browsing.
				hlog.FromRequest(r).Error().Err(err).Msg("failed to resolve session")
				next.ServeHTTP(w, r)
				return
			}
			if viewer == nil {
				next.ServeHTTP(w, r)
				return
			}

			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Int64("viewer_id", viewer.ID)
			})
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewerKey{}, viewer)))
		})
	}
}

// requestLogger attaches a request-scoped logger and writes one access log line per request.
func requestLogger(logger zerolog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		hlog.NewHandler(logger),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if id := middleware.GetReqID(r.Context()); id != "" {
					hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
						return c.Str("request_id", id)
					})
				}
				next.ServeHTTP(w, r)
			})
		},
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			level := zerolog.InfoLevel
			if status >= http.StatusInternalServerError {
				level = zerolog.ErrorLevel
			}
			hlog.FromRequest(r).WithLevel(level).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		}),
	}
}

// instrument records request counts and latency by chi route pattern.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(r.Method, route, status, time.Since(start))
		})
	}
}
