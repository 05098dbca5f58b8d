package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-files/pkg/filestore"
)

// RouterConfig wires the HTTP surface
type RouterConfig struct {
	Service filestore.Service
	Logger  *slog.Logger

	// Ready backs /healthz/ready. Nil means always ready.
	Ready func(ctx context.Context) error

	// Auth wraps the file routes when set. Health and metrics stay open.
	Auth func(http.Handler) http.Handler

	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

// NewRouter returns the chi router serving the file API
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)

	RoutesHealthz(r)
	RoutesHealthzReady(r, cfg.Ready)
	r.Handle("/metrics", promhttp.Handler())

	files := NewFilesHandler(cfg.Service,
		WithLogger(logger),
		WithIdleTimeout(cfg.IdleTimeout),
		WithMaxUploadBytes(cfg.MaxUploadBytes),
	)
	r.Group(func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth)
		}
		files.Routes(r)
	})

	return r
}

func RoutesHealthz(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
}

func RoutesHealthzReady(r chi.Router, ready func(ctx context.Context) error) {
	r.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				render.Status(r, http.StatusServiceUnavailable)
				render.PlainText(w, r, err.Error())
				return
			}
		}
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
}
